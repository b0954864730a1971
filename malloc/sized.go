package malloc

import "unsafe"

import "github.com/bnclabs/gopar/lib"

// sizedheap the composition backing one size class.
type sizedheap = Freelist[*Bumpptr[*Pageheap]]

// Fixed allocator for one size class, the unit worklists allocate
// their chunks from. Composed as perthread(freelist(bumpptr(pages))),
// so the hot path is lock free.
type Fixed struct {
	size  int64
	heaps *Perthread[*sizedheap]
}

// Slabsize the size class served by this allocator.
func (f *Fixed) Slabsize() int64 {
	return f.size
}

// Allocptr a block of the size class, from worker `tid`'s freelist
// or bump page.
func (f *Fixed) Allocptr(tid int) (unsafe.Pointer, error) {
	return f.heaps.Allocate(tid, f.size)
}

// Free a block back to worker `tid`'s freelist. The same address
// comes back on a later Allocptr from that worker.
func (f *Fixed) Free(tid int, ptr unsafe.Pointer) {
	f.heaps.Deallocate(tid, ptr, f.size)
}

// Clear every per-worker freelist and bump chain, returning all
// pages to the page source.
func (f *Fixed) Clear() {
	f.heaps.Clear()
}

// Registry is the mapping, shared by all workers of a page source,
// from size class to its Fixed
// allocator. Allocators are created lazily under a lock and kept for
// the registry lifetime. Lookups go through a per-worker cache first
// with no synchronization, entries are never evicted.
type Registry struct {
	pages    *Pages
	nworkers int
	spin     lib.Spinlock
	shared   map[int64]*Fixed
	locals   []map[int64]*Fixed
}

// NewRegistry create a registry over `pages` for `nworkers` workers.
func NewRegistry(pages *Pages, nworkers int) *Registry {
	locals := make([]map[int64]*Fixed, nworkers)
	for i := range locals {
		locals[i] = make(map[int64]*Fixed)
	}
	return &Registry{
		pages:    pages,
		nworkers: nworkers,
		shared:   make(map[int64]*Fixed),
		locals:   locals,
	}
}

// Fixedfor the allocator serving `size`, called by worker `tid`.
// Sizes are rounded up to Alignment, the block shall fit a page
// after the bump header.
func (reg *Registry) Fixedfor(tid int, size int64) *Fixed {
	if size <= 0 {
		panicerr("registry size %v", size)
	}
	size = lib.AlignUp(size, Alignment)
	if size > reg.pages.pagesize-linksize {
		panicerr("size %v exceeds page payload %v", size, reg.pages.pagesize-linksize)
	}
	if f, ok := reg.locals[tid][size]; ok {
		return f
	}
	reg.spin.Lock()
	f, ok := reg.shared[size]
	if !ok {
		f = reg.newfixed(size)
		reg.shared[size] = f
		debugf("malloc: new size class %v\n", size)
	}
	reg.spin.Unlock()
	reg.locals[tid][size] = f
	return f
}

func (reg *Registry) newfixed(size int64) *Fixed {
	heaps := NewPerthread[*sizedheap](reg.nworkers, func(tid int) *sizedheap {
		return NewFreelist[*Bumpptr[*Pageheap]](NewBumpptr[*Pageheap](reg.pages.For(tid)))
	})
	return &Fixed{size: size, heaps: heaps}
}

// Sizes the size classes instantiated so far.
func (reg *Registry) Sizes() []int64 {
	reg.spin.Lock()
	sizes := make([]int64, 0, len(reg.shared))
	for size := range reg.shared {
		sizes = append(sizes, size)
	}
	reg.spin.Unlock()
	return sizes
}

// Clear every allocator in the registry, returning all pages to the
// page source. Shall not race with allocations.
func (reg *Registry) Clear() {
	reg.spin.Lock()
	for _, f := range reg.shared {
		f.Clear()
	}
	reg.spin.Unlock()
}

// Variable scalable variable-size allocations, composed as
// perthread(bumpptr(pages)). Requests larger than a page payload
// shall be split by the caller with Allocsome.
type Variable struct {
	heaps *Perthread[*Bumpptr[*Pageheap]]
}

// NewVariable create a variable-size allocator over `pages`.
func NewVariable(pages *Pages, nworkers int) *Variable {
	heaps := NewPerthread[*Bumpptr[*Pageheap]](nworkers, func(tid int) *Bumpptr[*Pageheap] {
		return NewBumpptr[*Pageheap](pages.For(tid))
	})
	return &Variable{heaps: heaps}
}

// Alloc `size` bytes on worker `tid`.
func (va *Variable) Alloc(tid int, size int64) (unsafe.Pointer, error) {
	return va.heaps.Local(tid).Allocate(size)
}

// Allocsome up to `size` bytes on worker `tid`, reporting how many
// bytes are usable. Callers split large requests over several calls.
func (va *Variable) Allocsome(tid int, size int64) (unsafe.Pointer, int64, error) {
	return va.heaps.Local(tid).Allocatesome(size)
}

// Clear every per-worker bump chain.
func (va *Variable) Clear() {
	va.heaps.Clear()
}
