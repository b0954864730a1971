package malloc

import "sync/atomic"
import "unsafe"

import "golang.org/x/sys/unix"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/lib"
import s "github.com/bnclabs/gosettings"

// freepage intrusive link threaded through pages parked on the
// page-source freelist.
type freepage struct {
	next *freepage
}

// Pages is the page source, the leaf of every heap chain. It owns a
// freelist of large OS pages, shared by all its workers, behind a
// short spinlock.
// Pages pulled from the OS are committed upfront and are not returned
// to the OS until Release.
type Pages struct {
	npages    int64   // total pages mapped, atomic
	perthread []int64 // pages mapped, by worker

	spin lib.Spinlock
	head *freepage

	pagesize   int64
	interleave bool
	nodes      int

	mapspin lib.Spinlock
	maps    [][]byte
}

// NewPages create a page source for `nworkers` workers. Settings
// are as described in Defaultsettings.
func NewPages(nworkers int, setts s.Settings) *Pages {
	pagesize := setts.Int64("page.size")
	if lib.Ispowerof2(pagesize) == false {
		panicerr("page.size %v is not a power of 2", pagesize)
	} else if pagesize < Subpagesize {
		panicerr("page.size %v smaller than %v", pagesize, Subpagesize)
	}
	pg := &Pages{
		perthread:  make([]int64, nworkers),
		pagesize:   pagesize,
		interleave: setts.Bool("numa.interleave"),
		nodes:      Numanodes(),
	}
	if pg.nodes <= 1 {
		pg.interleave = false
	}
	if n := setts.Int64("page.prealloc"); n > 0 {
		pg.Prealloc(n, 0)
	}
	return pg
}

// Pagesize served by this source.
func (pg *Pages) Pagesize() int64 {
	return pg.pagesize
}

// Alloc a page, from the freelist if possible, from the OS
// otherwise. Allocation is attributed to worker `tid`.
func (pg *Pages) Alloc(tid int) (unsafe.Pointer, error) {
	pg.spin.Lock()
	if fp := pg.head; fp != nil {
		pg.head = fp.next
		pg.spin.Unlock()
		return unsafe.Pointer(fp), nil
	}
	pg.spin.Unlock()
	return pg.mapone(tid)
}

// Free a page back to the freelist. Never returned to the OS.
func (pg *Pages) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		panicerr("pages.free(): nil pointer")
	}
	fp := (*freepage)(ptr)
	pg.spin.Lock()
	fp.next = pg.head
	pg.head = fp
	pg.spin.Unlock()
}

// Prealloc populate the freelist with `n` pages, attributed to
// worker `tid`. The request is clamped so committed pages leave at
// least half of free RAM untouched.
func (pg *Pages) Prealloc(n int64, tid int) error {
	if _, _, free := getsysmem(); n*pg.pagesize > int64(free)/2 {
		n = (int64(free) / 2) / pg.pagesize
		warnf("malloc: prealloc clamped to %v pages\n", n)
	}
	for i := int64(0); i < n; i++ {
		ptr, err := pg.mapone(tid)
		if err != nil {
			return err
		}
		pg.Free(ptr)
	}
	debugf("malloc: preallocated %v pages for worker %v\n", n, tid)
	return nil
}

// Pagein force `size` bytes at `ptr` into physical memory, touching
// one byte every `stride` bytes.
func Pagein(ptr unsafe.Pointer, size, stride int64) {
	if stride <= 0 {
		stride = Subpagesize
	}
	block := unsafe.Slice((*byte)(ptr), size)
	sink := byte(0)
	for off := int64(0); off < size; off += stride {
		sink += block[off]
	}
	_ = sink
}

// Allocated total number of pages pulled from the OS.
func (pg *Pages) Allocated() int64 {
	return atomic.LoadInt64(&pg.npages)
}

// Allocatedfor number of pages pulled from the OS by worker `tid`.
func (pg *Pages) Allocatedfor(tid int) int64 {
	return atomic.LoadInt64(&pg.perthread[tid])
}

// Release unmap every page obtained from the OS. No heap composed
// over this source shall be used afterwards.
func (pg *Pages) Release() {
	pg.spin.Lock()
	pg.head = nil
	pg.spin.Unlock()

	pg.mapspin.Lock()
	maps := pg.maps
	pg.maps = nil
	pg.mapspin.Unlock()
	for _, b := range maps {
		if err := unix.Munmap(b); err != nil {
			panicerr("munmap failed: %v", err)
		}
	}
	atomic.StoreInt64(&pg.npages, 0)
}

// For an api.Heap view of this source, attributing allocations to
// worker `tid`. The view is what per-worker heap chains compose
// over.
func (pg *Pages) For(tid int) *Pageheap {
	return &Pageheap{pages: pg, tid: tid}
}

func (pg *Pages) mapone(tid int) (unsafe.Pointer, error) {
	prot, flags := unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON
	b, err := unix.Mmap(-1, 0, int(pg.pagesize), prot, flags)
	if err != nil {
		return nil, api.ErrorOutofMemory
	}
	advisehuge(b)
	if pg.interleave {
		if err := interleave(b, pg.nodes); err != nil {
			debugf("malloc: interleave: %v\n", err)
		}
	}
	// touch one byte per sub-page to commit physical memory.
	for off := int64(0); off < pg.pagesize; off += Subpagesize {
		b[off] = 0
	}
	pg.mapspin.Lock()
	pg.maps = append(pg.maps, b)
	pg.mapspin.Unlock()

	atomic.AddInt64(&pg.npages, 1)
	if tid >= 0 && tid < len(pg.perthread) {
		atomic.AddInt64(&pg.perthread[tid], 1)
	}
	return unsafe.Pointer(&b[0]), nil
}

// Pageheap routes api.Heap calls to a page source, attributing
// allocations to one worker.
type Pageheap struct {
	pages *Pages
	tid   int
}

// Allocate implement api.Heap{} interface. Always serves one full
// page, `size` shall not exceed the page size.
func (ph *Pageheap) Allocate(size int64) (unsafe.Pointer, error) {
	if size > ph.pages.pagesize {
		panicerr("allocate size %v exceeds page size %v", size, ph.pages.pagesize)
	}
	return ph.pages.Alloc(ph.tid)
}

// Deallocate implement api.Heap{} interface.
func (ph *Pageheap) Deallocate(ptr unsafe.Pointer, size int64) {
	ph.pages.Free(ptr)
}

// Clear implement api.Heap{} interface. Pages go back to the OS only
// on Release, so this is a no-op.
func (ph *Pageheap) Clear() {
}

// Allocsize implement api.Heap{} interface.
func (ph *Pageheap) Allocsize() int64 {
	return ph.pages.pagesize
}
