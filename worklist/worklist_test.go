package worklist

import "sort"
import "sync"
import "testing"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/malloc"
import s "github.com/bnclabs/gosettings"

func testregistry(nworkers int) (*malloc.Pages, *malloc.Registry) {
	setts := malloc.Defaultsettings().Mixin(s.Settings{
		"numa.interleave": false,
	})
	pg := malloc.NewPages(nworkers, setts)
	return pg, malloc.NewRegistry(pg, nworkers)
}

func seqsettings(chunksize int64, discipline string) s.Settings {
	return Defaultsettings().Mixin(s.Settings{
		"chunksize": chunksize, "discipline": discipline,
		"distribution": "global", "concurrent": false,
	})
}

func TestInvalidConfig(t *testing.T) {
	pg, reg := testregistry(1)
	defer pg.Release()

	// chunk size not a power of two.
	if _, err := New[int](reg, 1, nil, seqsettings(3, "fifo")); err != api.ErrorInvalidConfig {
		t.Errorf("expected %v, got %v", api.ErrorInvalidConfig, err)
	}
	if _, err := New[int](reg, 1, nil, seqsettings(2048, "fifo")); err != api.ErrorInvalidConfig {
		t.Errorf("expected %v, got %v", api.ErrorInvalidConfig, err)
	}
	if _, err := New[int](reg, 1, nil, seqsettings(4, "rand")); err != api.ErrorInvalidConfig {
		t.Errorf("expected %v, got %v", api.ErrorInvalidConfig, err)
	}
	// task types holding go pointers cannot live in chunk memory.
	if _, err := New[*int](reg, 1, nil, seqsettings(4, "fifo")); err != api.ErrorInvalidConfig {
		t.Errorf("expected %v, got %v", api.ErrorInvalidConfig, err)
	}
	if _, err := New[string](reg, 1, nil, seqsettings(4, "fifo")); err != api.ErrorInvalidConfig {
		t.Errorf("expected %v, got %v", api.ErrorInvalidConfig, err)
	}
	// mismatched package map.
	setts := Defaultsettings().Mixin(s.Settings{"chunksize": int64(4)})
	if _, err := New[int](reg, 2, []int{0}, setts); err != api.ErrorInvalidConfig {
		t.Errorf("expected %v, got %v", api.ErrorInvalidConfig, err)
	}
}

func TestChunkedFIFOOrder(t *testing.T) {
	pg, reg := testregistry(1)
	defer pg.Release()

	wl, err := New[int](reg, 1, nil, seqsettings(4, "fifo"))
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	for i := 1; i <= 10; i++ {
		if err := wl.Push(0, i); err != nil {
			t.Fatalf("unexpected %v", err)
		}
	}
	// pop order equals push order.
	for i := 1; i <= 10; i++ {
		v, ok := wl.Pop(0)
		if !ok || v != i {
			t.Fatalf("expected %v, got %v,%v", i, v, ok)
		}
	}
	if _, ok := wl.Pop(0); ok {
		t.Errorf("pop from drained worklist")
	}
	wl.Release(0)
}

func TestChunkedLIFOOrder(t *testing.T) {
	pg, reg := testregistry(1)
	defer pg.Release()

	wl, err := New[int](reg, 1, nil, seqsettings(4, "lifo"))
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	for i := 1; i <= 10; i++ {
		if err := wl.Push(0, i); err != nil {
			t.Fatalf("unexpected %v", err)
		}
	}
	// lifo across chunks: 10,9 from the partial next chunk, then
	// 8,7,6,5 and 4,3,2,1 from the published ones.
	expected := []int{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	for _, x := range expected {
		v, ok := wl.Pop(0)
		if !ok || v != x {
			t.Fatalf("expected %v, got %v,%v", x, v, ok)
		}
	}
	if _, ok := wl.Pop(0); ok {
		t.Errorf("pop from drained worklist")
	}
	wl.Release(0)
}

func TestBagConservation(t *testing.T) {
	pg, reg := testregistry(1)
	defer pg.Release()

	wl, err := New[int](reg, 1, nil, seqsettings(8, "bag"))
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	pushed := make([]int, 0, 100)
	for i := 0; i < 100; i++ {
		wl.Push(0, i)
		pushed = append(pushed, i)
	}
	popped := make([]int, 0, 100)
	for {
		v, ok := wl.Pop(0)
		if !ok {
			break
		}
		popped = append(popped, v)
	}
	sort.Ints(popped)
	if len(popped) != len(pushed) {
		t.Fatalf("expected %v, got %v", len(pushed), len(popped))
	}
	for i := range pushed {
		if pushed[i] != popped[i] {
			t.Fatalf("multiset mismatch at %v", i)
		}
	}
	wl.Release(0)
}

func TestPushinitialConservation(t *testing.T) {
	pg, reg := testregistry(4)
	defer pg.Release()

	wl, err := NewdChunkedFIFO[int](reg, 4, []int{0, 0, 1, 1}, 8)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	all := make([]int, 1000)
	for i := range all {
		all[i] = i
	}
	var wg sync.WaitGroup
	wg.Add(4)
	for tid := 0; tid < 4; tid++ {
		go func(tid int) {
			defer wg.Done()
			if err := wl.Pushinitial(tid, all); err != nil {
				panic(err)
			}
			if _, err := wl.Flush(tid); err != nil {
				panic(err)
			}
		}(tid)
	}
	wg.Wait()

	// drain everything from one worker, every task arrives exactly
	// once even across package containers.
	popped := make([]int, 0, 1000)
	for {
		v, ok := wl.Pop(0)
		if !ok {
			break
		}
		popped = append(popped, v)
	}
	sort.Ints(popped)
	if len(popped) != 1000 {
		t.Fatalf("expected %v, got %v", 1000, len(popped))
	}
	for i := range popped {
		if popped[i] != i {
			t.Fatalf("multiset mismatch at %v", i)
		}
	}
	wl.Release(0)
}

func TestFlushEpoch(t *testing.T) {
	pg, reg := testregistry(2)
	defer pg.Release()

	wl, err := NewChunkedFIFO[int](reg, 2, 8)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	if e := wl.Epoch(); e != 0 {
		t.Errorf("expected %v, got %v", 0, e)
	}
	wl.Push(0, 1)
	// partial next chunk is unpublished until flush.
	if e := wl.Epoch(); e != 0 {
		t.Errorf("expected %v, got %v", 0, e)
	}
	published, err := wl.Flush(0)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	} else if published == false {
		t.Errorf("expected publication")
	} else if e := wl.Epoch(); e != 1 {
		t.Errorf("expected %v, got %v", 1, e)
	}
	// flushed work is visible to the other worker.
	if v, ok := wl.Pop(1); !ok || v != 1 {
		t.Errorf("expected %v, got %v,%v", 1, v, ok)
	}
	// nothing in flight, flush is a no-op.
	if published, _ := wl.Flush(0); published {
		t.Errorf("unexpected publication")
	}
	wl.Release(0)
}

func TestPeek(t *testing.T) {
	pg, reg := testregistry(1)
	defer pg.Release()

	wl, err := New[int](reg, 1, nil, seqsettings(4, "fifo"))
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	for i := 1; i <= 6; i++ {
		wl.Push(0, i)
	}
	for i := 1; i <= 6; i++ {
		slot := wl.Peek(0)
		if slot == nil || *slot != i {
			t.Fatalf("expected %v, got %v", i, slot)
		}
		wl.Poppeeked(0)
	}
	if wl.Peek(0) != nil {
		t.Errorf("peek on drained worklist")
	}
	wl.Release(0)
}
