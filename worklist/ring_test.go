package worklist

import "testing"

func TestRingPushPop(t *testing.T) {
	r := MakeRing(make([]int, 4))
	if r.Empty() == false {
		t.Errorf("expected empty")
	} else if r.Len() != 0 {
		t.Errorf("expected %v, got %v", 0, r.Len())
	}
	for i := 1; i <= 4; i++ {
		if r.Pushback(i) == false {
			t.Fatalf("push %v failed", i)
		}
	}
	if r.Full() == false {
		t.Errorf("expected full")
	} else if r.Pushback(5) {
		t.Errorf("push into full ring")
	} else if x := *r.Front(); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if x := *r.Back(); x != 4 {
		t.Errorf("expected %v, got %v", 4, x)
	}

	// fifo from the front.
	for i := 1; i <= 4; i++ {
		v, ok := r.Popfront()
		if !ok || v != i {
			t.Fatalf("expected %v, got %v,%v", i, v, ok)
		}
	}
	if _, ok := r.Popfront(); ok {
		t.Errorf("pop from empty ring")
	}

	// lifo from the back, wrapping around the buffer.
	for i := 1; i <= 4; i++ {
		r.Pushback(i)
	}
	r.Popfront()
	r.Pushback(5)
	for i := 5; i >= 2; i-- {
		v, ok := r.Popback()
		if !ok || v != i {
			t.Fatalf("expected %v, got %v,%v", i, v, ok)
		}
	}
}

func TestRingFrontBack(t *testing.T) {
	r := MakeRing(make([]uint64, 8))
	if r.Front() != nil || r.Back() != nil {
		t.Errorf("expected nil on empty ring")
	}
	r.Pushfront(10)
	r.Pushfront(20)
	if x := *r.Front(); x != 20 {
		t.Errorf("expected %v, got %v", 20, x)
	} else if x := *r.Back(); x != 10 {
		t.Errorf("expected %v, got %v", 10, x)
	}
	v, ok := r.Popback()
	if !ok || v != 10 {
		t.Errorf("expected %v, got %v,%v", 10, v, ok)
	}
}

func TestRingEmplace(t *testing.T) {
	r := MakeRing(make([]int32, 2))
	slot := r.Emplaceback()
	if slot == nil {
		t.Fatalf("nil slot")
	}
	*slot = 42
	if v, ok := r.Popfront(); !ok || v != 42 {
		t.Errorf("expected %v, got %v,%v", 42, v, ok)
	}
	r.Emplaceback()
	r.Emplaceback()
	if r.Emplaceback() != nil {
		t.Errorf("emplace into full ring")
	}
}
