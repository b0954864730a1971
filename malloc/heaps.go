package malloc

import "sync/atomic"
import "unsafe"

import "golang.org/x/sys/unix"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/lib"

// The decorators in this file compose over any api.Heap and are
// instantiated with concrete inner types, so a full chain is a
// single flat object without interface dispatch on the hot path.

// freenode intrusive link threaded through freed blocks, blocks
// pooled by a freelist shall be at least 8 bytes.
type freenode struct {
	next *freenode
}

// Freelist intercepts Deallocate and links the block into a LIFO
// list, Allocate pops from the list before delegating. Single
// threaded.
type Freelist[H api.Heap] struct {
	inner H
	head  *freenode
}

// NewFreelist compose a freelist over `inner`.
func NewFreelist[H api.Heap](inner H) *Freelist[H] {
	return &Freelist[H]{inner: inner}
}

// Allocate implement api.Heap{} interface.
func (h *Freelist[H]) Allocate(size int64) (unsafe.Pointer, error) {
	if nd := h.head; nd != nil {
		h.head = nd.next
		return unsafe.Pointer(nd), nil
	}
	return h.inner.Allocate(size)
}

// Deallocate implement api.Heap{} interface.
func (h *Freelist[H]) Deallocate(ptr unsafe.Pointer, size int64) {
	if ptr == nil {
		return
	}
	nd := (*freenode)(ptr)
	nd.next = h.head
	h.head = nd
}

// Clear implement api.Heap{} interface. Pooled blocks go back to the
// inner heap before it is cleared in turn.
func (h *Freelist[H]) Clear() {
	for h.head != nil {
		nd := h.head
		h.head = nd.next
		h.inner.Deallocate(unsafe.Pointer(nd), h.inner.Allocsize())
	}
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Freelist[H]) Allocsize() int64 {
	return h.inner.Allocsize()
}

// Selflock is a freelist safe for concurrent push and pop.
// Deallocate is a pure CAS push. Allocate runs its CAS loop under a
// lock that serializes readers of head.next, which keeps a popped
// node from being recycled while another popper still holds its
// link. The lock does not cover the inner heap.
type Selflock[H api.Heap] struct {
	inner H
	head  unsafe.Pointer // *freenode
	spin  lib.Spinlock
}

// NewSelflock compose a concurrent freelist over `inner`.
func NewSelflock[H api.Heap](inner H) *Selflock[H] {
	return &Selflock[H]{inner: inner}
}

// Allocate implement api.Heap{} interface.
func (h *Selflock[H]) Allocate(size int64) (unsafe.Pointer, error) {
	h.spin.Lock()
	for {
		oh := atomic.LoadPointer(&h.head)
		if oh == nil {
			h.spin.Unlock()
			return h.inner.Allocate(size)
		}
		nh := unsafe.Pointer((*freenode)(oh).next) // the lock protects this read
		if atomic.CompareAndSwapPointer(&h.head, oh, nh) {
			h.spin.Unlock()
			return oh, nil
		}
	}
}

// Deallocate implement api.Heap{} interface. Safe from any thread.
func (h *Selflock[H]) Deallocate(ptr unsafe.Pointer, size int64) {
	if ptr == nil {
		return
	}
	nd := (*freenode)(ptr)
	for {
		oh := atomic.LoadPointer(&h.head)
		nd.next = (*freenode)(oh)
		if atomic.CompareAndSwapPointer(&h.head, oh, ptr) {
			return
		}
	}
}

// Clear implement api.Heap{} interface. Steals the whole list with a
// CAS and returns it to the inner heap.
func (h *Selflock[H]) Clear() {
	var oh unsafe.Pointer
	for {
		oh = atomic.LoadPointer(&h.head)
		if atomic.CompareAndSwapPointer(&h.head, oh, nil) {
			break
		}
	}
	for nd := (*freenode)(oh); nd != nil; {
		next := nd.next
		h.inner.Deallocate(unsafe.Pointer(nd), h.inner.Allocsize())
		nd = next
	}
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Selflock[H]) Allocsize() int64 {
	return h.inner.Allocsize()
}

// Locked wraps the inner heap in a spinlock.
type Locked[H api.Heap] struct {
	inner H
	spin  lib.Spinlock
}

// NewLocked compose a lock over `inner`.
func NewLocked[H api.Heap](inner H) *Locked[H] {
	return &Locked[H]{inner: inner}
}

// Allocate implement api.Heap{} interface.
func (h *Locked[H]) Allocate(size int64) (unsafe.Pointer, error) {
	h.spin.Lock()
	ptr, err := h.inner.Allocate(size)
	h.spin.Unlock()
	return ptr, err
}

// Deallocate implement api.Heap{} interface.
func (h *Locked[H]) Deallocate(ptr unsafe.Pointer, size int64) {
	h.spin.Lock()
	h.inner.Deallocate(ptr, size)
	h.spin.Unlock()
}

// Clear implement api.Heap{} interface.
func (h *Locked[H]) Clear() {
	h.spin.Lock()
	h.inner.Clear()
	h.spin.Unlock()
}

// Allocsize implement api.Heap{} interface.
func (h *Locked[H]) Allocsize() int64 {
	return h.inner.Allocsize()
}

// Header prepends an aligned header of `hdrsize` bytes to every
// allocation.
type Header[H api.Heap] struct {
	inner  H
	offset int64
}

// NewHeader compose a header of `hdrsize` bytes over `inner`.
func NewHeader[H api.Heap](inner H, hdrsize int64) *Header[H] {
	return &Header[H]{inner: inner, offset: lib.AlignUp(hdrsize, Alignment)}
}

// Allocate implement api.Heap{} interface.
func (h *Header[H]) Allocate(size int64) (unsafe.Pointer, error) {
	ptr, err := h.inner.Allocate(size + h.offset)
	if err != nil {
		return nil, err
	}
	return unsafe.Add(ptr, h.offset), nil
}

// Deallocate implement api.Heap{} interface.
func (h *Header[H]) Deallocate(ptr unsafe.Pointer, size int64) {
	h.inner.Deallocate(unsafe.Add(ptr, -h.offset), size+h.offset)
}

// Headerof the header for an allocation returned by this heap.
func (h *Header[H]) Headerof(ptr unsafe.Pointer) unsafe.Pointer {
	return unsafe.Add(ptr, -h.offset)
}

// Clear implement api.Heap{} interface.
func (h *Header[H]) Clear() {
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Header[H]) Allocsize() int64 {
	return 0
}

const owneroffset = int64(8) // AlignUp(sizeof(pointer), Alignment)

// Ownertag stores a pointer to the owning heap in a header before
// each allocation, so any address can be traced back home with
// Ownerof.
type Ownertag[H api.Heap] struct {
	inner  H
	offset int64
}

// NewOwnertag compose an owner tag over `inner`.
func NewOwnertag[H api.Heap](inner H) *Ownertag[H] {
	return &Ownertag[H]{inner: inner, offset: owneroffset}
}

// Allocate implement api.Heap{} interface.
func (h *Ownertag[H]) Allocate(size int64) (unsafe.Pointer, error) {
	ptr, err := h.inner.Allocate(size + h.offset)
	if err != nil {
		return nil, err
	}
	*(*unsafe.Pointer)(ptr) = unsafe.Pointer(h)
	return unsafe.Add(ptr, h.offset), nil
}

// Deallocate implement api.Heap{} interface. A mismatched owner is a
// programmer bug, checked on debug builds.
func (h *Ownertag[H]) Deallocate(ptr unsafe.Pointer, size int64) {
	hdr := unsafe.Add(ptr, -h.offset)
	if debugcheck && *(*unsafe.Pointer)(hdr) != unsafe.Pointer(h) {
		panicerr("ownertag.deallocate(%p): owner mismatch", ptr)
	}
	h.inner.Deallocate(hdr, size+h.offset)
}

// Ownerof the heap that allocated `ptr`, valid for any pointer
// returned by an Ownertag heap.
func Ownerof(ptr unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Add(ptr, -owneroffset))
}

// Clear implement api.Heap{} interface.
func (h *Ownertag[H]) Clear() {
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Ownertag[H]) Allocsize() int64 {
	return 0
}

// Zeroout fills allocations with zeros before returning them.
type Zeroout[H api.Heap] struct {
	inner H
}

// NewZeroout compose zero-fill over `inner`.
func NewZeroout[H api.Heap](inner H) *Zeroout[H] {
	return &Zeroout[H]{inner: inner}
}

// Allocate implement api.Heap{} interface.
func (h *Zeroout[H]) Allocate(size int64) (unsafe.Pointer, error) {
	ptr, err := h.inner.Allocate(size)
	if err != nil {
		return nil, err
	}
	lib.Memzero(ptr, int(size))
	return ptr, nil
}

// Deallocate implement api.Heap{} interface.
func (h *Zeroout[H]) Deallocate(ptr unsafe.Pointer, size int64) {
	h.inner.Deallocate(ptr, size)
}

// Clear implement api.Heap{} interface.
func (h *Zeroout[H]) Clear() {
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Zeroout[H]) Allocsize() int64 {
	return h.inner.Allocsize()
}

// Sysheap allocates straight from the OS, one mapping per block.
// The third-party-allocator example of heap composition, and the
// fallback target for oversize bump allocations.
type Sysheap struct {
}

// Allocate implement api.Heap{} interface.
func (h *Sysheap) Allocate(size int64) (unsafe.Pointer, error) {
	prot, flags := unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON
	b, err := unix.Mmap(-1, 0, int(size), prot, flags)
	if err != nil {
		return nil, api.ErrorOutofMemory
	}
	return unsafe.Pointer(&b[0]), nil
}

// Deallocate implement api.Heap{} interface.
func (h *Sysheap) Deallocate(ptr unsafe.Pointer, size int64) {
	if err := unix.Munmap(unsafe.Slice((*byte)(ptr), size)); err != nil {
		panicerr("munmap failed: %v", err)
	}
}

// Clear implement api.Heap{} interface.
func (h *Sysheap) Clear() {
}

// Allocsize implement api.Heap{} interface.
func (h *Sysheap) Allocsize() int64 {
	return 0
}
