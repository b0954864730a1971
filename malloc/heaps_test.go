package malloc

import "sync"
import "testing"
import "unsafe"

// countingheap counts delegate calls, for verifying which layer
// served an allocation.
type countingheap struct {
	inner  *Pageheap
	nalloc int
	nfree  int
}

func (h *countingheap) Allocate(size int64) (unsafe.Pointer, error) {
	h.nalloc++
	return h.inner.Allocate(size)
}

func (h *countingheap) Deallocate(ptr unsafe.Pointer, size int64) {
	h.nfree++
	h.inner.Deallocate(ptr, size)
}

func (h *countingheap) Clear() {
	h.inner.Clear()
}

func (h *countingheap) Allocsize() int64 {
	return h.inner.Allocsize()
}

func TestFreelist(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	counter := &countingheap{inner: pg.For(0)}
	fl := NewFreelist[*countingheap](counter)

	ptr, err := fl.Allocate(Pagesize)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	} else if counter.nalloc != 1 {
		t.Errorf("expected %v, got %v", 1, counter.nalloc)
	}

	// a deallocated block comes back with the same address.
	fl.Deallocate(ptr, Pagesize)
	again, _ := fl.Allocate(Pagesize)
	if again != ptr {
		t.Errorf("expected %p, got %p", ptr, again)
	} else if counter.nalloc != 1 {
		t.Errorf("expected %v, got %v", 1, counter.nalloc)
	}

	// after clear the next allocate reaches the inner heap.
	fl.Deallocate(again, Pagesize)
	fl.Clear()
	if counter.nfree != 1 {
		t.Errorf("expected %v, got %v", 1, counter.nfree)
	}
	if _, err := fl.Allocate(Pagesize); err != nil {
		t.Fatalf("unexpected %v", err)
	} else if counter.nalloc != 2 {
		t.Errorf("expected %v, got %v", 2, counter.nalloc)
	}
}

func TestSelflock(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	sl := NewSelflock[*Pageheap](pg.For(0))

	nroutines, repeat := 8, 1000
	var wg sync.WaitGroup
	wg.Add(nroutines)
	for n := 0; n < nroutines; n++ {
		go func() {
			defer wg.Done()
			for i := 0; i < repeat; i++ {
				ptr, err := sl.Allocate(Pagesize)
				if err != nil {
					panic(err)
				}
				sl.Deallocate(ptr, Pagesize)
			}
		}()
	}
	wg.Wait()

	sl.Clear()
	// every pooled page went home to the source freelist.
	n := pg.Allocated()
	seen := map[unsafe.Pointer]bool{}
	for i := int64(0); i < n; i++ {
		ptr, _ := pg.Alloc(0)
		seen[ptr] = true
	}
	if x := pg.Allocated(); x != n {
		t.Errorf("expected %v, got %v", n, x)
	} else if int64(len(seen)) != n {
		t.Errorf("expected %v, got %v", n, len(seen))
	}
}

func TestLocked(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	lh := NewLocked[*Pageheap](pg.For(0))
	if x := lh.Allocsize(); x != Pagesize {
		t.Errorf("expected %v, got %v", Pagesize, x)
	}
	ptr, err := lh.Allocate(Pagesize)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	lh.Deallocate(ptr, Pagesize)
	lh.Clear()
}

func TestHeader(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	bump := NewBumpptr[*Pageheap](pg.For(0))
	hh := NewHeader[*Bumpptr[*Pageheap]](bump, 12)

	ptr, err := hh.Allocate(64)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	hdr := hh.Headerof(ptr)
	if x := uintptr(ptr) - uintptr(hdr); x != 16 {
		t.Errorf("expected %v, got %v", 16, x)
	} else if (uintptr(ptr) & 7) != 0 {
		t.Errorf("pointer %p not aligned", ptr)
	}
	hh.Deallocate(ptr, 64)
	hh.Clear()
}

func TestOwnertag(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	bump := NewBumpptr[*Pageheap](pg.For(0))
	ot := NewOwnertag[*Bumpptr[*Pageheap]](bump)

	for i := 0; i < 100; i++ {
		ptr, err := ot.Allocate(24)
		if err != nil {
			t.Fatalf("unexpected %v", err)
		}
		if x := Ownerof(ptr); x != unsafe.Pointer(ot) {
			t.Errorf("expected %p, got %p", ot, x)
		}
		ot.Deallocate(ptr, 24)
	}
	ot.Clear()
}

func TestZeroout(t *testing.T) {
	pg := NewPages(1, testsettings(Pagesize))
	defer pg.Release()

	bump := NewBumpptr[*Pageheap](pg.For(0))
	zh := NewZeroout[*Bumpptr[*Pageheap]](bump)

	ptr, err := zh.Allocate(128)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	block := unsafe.Slice((*byte)(ptr), 128)
	for i, c := range block {
		if c != 0 {
			t.Fatalf("byte %v is %x", i, c)
		}
	}
	// dirty it before handing it back.
	for i := range block {
		block[i] = 0xaa
	}
	zh.Deallocate(ptr, 128)
	zh.Clear()
}

func TestSysheap(t *testing.T) {
	var sh Sysheap
	if x := sh.Allocsize(); x != 0 {
		t.Errorf("expected %v, got %v", 0, x)
	}
	ptr, err := sh.Allocate(1 << 20)
	if err != nil {
		t.Fatalf("unexpected %v", err)
	}
	sh.Deallocate(ptr, 1<<20)
}
