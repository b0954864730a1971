package malloc

import "testing"
import "unsafe"

import s "github.com/bnclabs/gosettings"

func testsettings(pagesize int64) s.Settings {
	return Defaultsettings().Mixin(s.Settings{
		"page.size": pagesize, "numa.interleave": false,
	})
}

func TestPagesAlloc(t *testing.T) {
	pg := NewPages(2, testsettings(Pagesize))
	defer pg.Release()

	ptr, err := pg.Alloc(0)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	} else if ptr == nil {
		t.Fatalf("nil page")
	} else if x := pg.Allocated(); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	} else if x := pg.Allocatedfor(0); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}

	// a freed page is reused before the OS is asked again.
	pg.Free(ptr)
	again, err := pg.Alloc(1)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	} else if again != ptr {
		t.Errorf("expected %p, got %p", ptr, again)
	} else if x := pg.Allocated(); x != 1 {
		t.Errorf("expected %v, got %v", 1, x)
	}
}

func TestPagesPrealloc(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	if err := pg.Prealloc(4, 0); err != nil {
		t.Fatalf("unexpected %v", err)
	} else if x := pg.Allocated(); x != 4 {
		t.Errorf("expected %v, got %v", 4, x)
	}
	seen := map[unsafe.Pointer]bool{}
	for i := 0; i < 4; i++ {
		ptr, err := pg.Alloc(0)
		if err != nil {
			t.Fatalf("unexpected %v", err)
		} else if seen[ptr] {
			t.Errorf("duplicate page %p", ptr)
		}
		seen[ptr] = true
	}
	if x := pg.Allocated(); x != 4 {
		t.Errorf("expected %v, got %v", 4, x)
	}
}

func TestPagesBadsize(t *testing.T) {
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewPages(1, testsettings(3000))
	}()
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		NewPages(1, testsettings(1024))
	}()
}

func TestPageheap(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	ph := pg.For(0)
	if x := ph.Allocsize(); x != Pagesize {
		t.Errorf("expected %v, got %v", Pagesize, x)
	}
	ptr, err := ph.Allocate(Pagesize)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	ph.Deallocate(ptr, Pagesize)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("expected panic")
			}
		}()
		ph.Allocate(Pagesize + 1)
	}()
}

func TestInterleavedAlloc(t *testing.T) {
	bytes := int64(4 * Subpagesize)
	ptr, err := InterleavedAlloc(bytes, true, 0)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	} else if ptr == nil {
		t.Fatalf("nil block")
	}
	InterleavedFree(ptr, bytes)
}
