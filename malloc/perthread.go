package malloc

import "unsafe"

import "github.com/bnclabs/gopar/api"

// Perthread holds one heap instance per worker and routes each call
// to the caller's instance, identified by its logical worker-id. No
// locking anywhere, the per-worker instance is touched only by its
// owning worker.
type Perthread[H api.Heap] struct {
	heaps []H
}

// NewPerthread build `n` instances with the `mk` factory, one per
// worker.
func NewPerthread[H api.Heap](n int, mk func(tid int) H) *Perthread[H] {
	heaps := make([]H, n)
	for i := range heaps {
		heaps[i] = mk(i)
	}
	return &Perthread[H]{heaps: heaps}
}

// Local the heap instance owned by worker `tid`.
func (h *Perthread[H]) Local(tid int) H {
	return h.heaps[tid]
}

// Allocate from worker `tid`'s instance. A pointer allocated on one
// worker shall be deallocated on the same worker, unless an inner
// locked or selflock layer permits otherwise.
func (h *Perthread[H]) Allocate(tid int, size int64) (unsafe.Pointer, error) {
	return h.heaps[tid].Allocate(size)
}

// Deallocate to worker `tid`'s instance.
func (h *Perthread[H]) Deallocate(tid int, ptr unsafe.Pointer, size int64) {
	h.heaps[tid].Deallocate(ptr, size)
}

// Clear every instance. Shall not race with allocations.
func (h *Perthread[H]) Clear() {
	for _, lh := range h.heaps {
		lh.Clear()
	}
}
