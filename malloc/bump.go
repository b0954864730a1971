package malloc

import "unsafe"

import "github.com/bnclabs/gopar/api"
import "github.com/bnclabs/gopar/lib"

// pagelink header at the head of every page owned by a bump or block
// heap, links the heap's pages into an intrusive chain.
type pagelink struct {
	next unsafe.Pointer
}

const linksize = int64(8) // sizeof(pagelink) rounded to Alignment

// Bumpptr carves aligned slices out of the current page and refills
// by pulling a new page from the inner heap. Deallocate is a no-op,
// Clear returns every page at once. Single threaded.
type Bumpptr[H api.Heap] struct {
	inner    H
	head     unsafe.Pointer
	offset   int64
	pagesize int64
}

// NewBumpptr compose a bump pointer over `inner`, which shall serve
// fixed size pages.
func NewBumpptr[H api.Heap](inner H) *Bumpptr[H] {
	pagesize := inner.Allocsize()
	if pagesize <= linksize {
		panicerr("bumpptr inner heap serves %v bytes", pagesize)
	}
	return &Bumpptr[H]{inner: inner, pagesize: pagesize}
}

func (h *Bumpptr[H]) refill() error {
	ptr, err := h.inner.Allocate(h.pagesize)
	if err != nil {
		return err
	}
	(*pagelink)(ptr).next = h.head
	h.head = ptr
	h.offset = linksize
	return nil
}

// Allocate implement api.Heap{} interface.
func (h *Bumpptr[H]) Allocate(size int64) (unsafe.Pointer, error) {
	size = lib.AlignUp(size, Alignment)
	if size > h.pagesize-linksize {
		panicerr("bump allocation %v exceeds page payload %v", size, h.pagesize-linksize)
	}
	if h.head == nil || h.offset+size > h.pagesize {
		if err := h.refill(); err != nil {
			return nil, err
		}
	}
	ptr := unsafe.Add(h.head, h.offset)
	h.offset += size
	initblock(ptr, size)
	return ptr, nil
}

// Allocatesome allocate up to `size` bytes, possibly less when the
// current page is short. Returns how many bytes are usable, for
// callers that can split a large request over pages.
func (h *Bumpptr[H]) Allocatesome(size int64) (unsafe.Pointer, int64, error) {
	asize := lib.AlignUp(size, Alignment)
	if max := h.pagesize - linksize; asize > max {
		asize = max
	}
	if h.head == nil || h.offset == h.pagesize {
		if err := h.refill(); err != nil {
			return nil, 0, err
		}
	}
	if remaining := h.pagesize - h.offset; asize > remaining {
		asize = remaining
	}
	ptr := unsafe.Add(h.head, h.offset)
	h.offset += asize
	if asize > size {
		asize = size
	}
	return ptr, asize, nil
}

// Deallocate implement api.Heap{} interface. A no-op, memory is
// reclaimed wholesale by Clear.
func (h *Bumpptr[H]) Deallocate(ptr unsafe.Pointer, size int64) {
}

// Clear implement api.Heap{} interface. Returns every linked page to
// the inner heap.
func (h *Bumpptr[H]) Clear() {
	for h.head != nil {
		page := h.head
		h.head = (*pagelink)(page).next
		h.inner.Deallocate(page, h.pagesize)
	}
	h.offset = 0
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Bumpptr[H]) Allocsize() int64 {
	return 0
}

// fallbacklink header on oversize blocks mapped straight from the
// OS, carries the mapping length for the unmap on Clear.
type fallbacklink struct {
	next unsafe.Pointer
	size int64
}

const fallbacksize = int64(16) // sizeof(fallbacklink) rounded to Alignment

// Bumpfallback bump pointer that serves requests exceeding the page
// payload from the system allocator, linking oversize blocks into a
// separate chain.
type Bumpfallback[H api.Heap] struct {
	inner    H
	sys      Sysheap
	head     unsafe.Pointer
	fallback unsafe.Pointer
	offset   int64
	pagesize int64
}

// NewBumpfallback compose a bump pointer with fallback over `inner`.
func NewBumpfallback[H api.Heap](inner H) *Bumpfallback[H] {
	pagesize := inner.Allocsize()
	if pagesize <= linksize {
		panicerr("bumpfallback inner heap serves %v bytes", pagesize)
	}
	return &Bumpfallback[H]{inner: inner, pagesize: pagesize}
}

// Allocate implement api.Heap{} interface.
func (h *Bumpfallback[H]) Allocate(size int64) (unsafe.Pointer, error) {
	asize := lib.AlignUp(size, Alignment)
	if asize+linksize > h.pagesize {
		blk, err := h.sys.Allocate(asize + fallbacksize)
		if err != nil {
			return nil, err
		}
		fl := (*fallbacklink)(blk)
		fl.next, fl.size = h.fallback, asize+fallbacksize
		h.fallback = blk
		return unsafe.Add(blk, fallbacksize), nil
	}
	if h.head == nil || h.offset+asize > h.pagesize {
		ptr, err := h.inner.Allocate(h.pagesize)
		if err != nil {
			return nil, err
		}
		(*pagelink)(ptr).next = h.head
		h.head = ptr
		h.offset = linksize
	}
	ptr := unsafe.Add(h.head, h.offset)
	h.offset += asize
	return ptr, nil
}

// Deallocate implement api.Heap{} interface. A no-op, memory is
// reclaimed wholesale by Clear.
func (h *Bumpfallback[H]) Deallocate(ptr unsafe.Pointer, size int64) {
}

// Clear implement api.Heap{} interface. Pages go back to the inner
// heap, oversize blocks back to the OS.
func (h *Bumpfallback[H]) Clear() {
	for h.head != nil {
		page := h.head
		h.head = (*pagelink)(page).next
		h.inner.Deallocate(page, h.pagesize)
	}
	for h.fallback != nil {
		blk := h.fallback
		fl := (*fallbacklink)(blk)
		h.fallback = fl.next
		h.sys.Deallocate(blk, fl.size)
	}
	h.offset = 0
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Bumpfallback[H]) Allocsize() int64 {
	return 0
}

// Blockalloc returns successive elemsize-aligned slots out of pages
// laid out as [link; slot[N]]. Slots are never reused, a companion
// freelist layer handles reuse. Single threaded.
type Blockalloc[H api.Heap] struct {
	inner    H
	elemsize int64
	head     unsafe.Pointer
	index    int64
	fit      int64
	pagesize int64
}

// NewBlockalloc compose a block allocator of `elemsize` slots over
// `inner`.
func NewBlockalloc[H api.Heap](inner H, elemsize int64) *Blockalloc[H] {
	elemsize = lib.AlignUp(elemsize, Alignment)
	pagesize := inner.Allocsize()
	fit := (pagesize - linksize) / elemsize
	if fit < 1 {
		panicerr("elemsize %v does not fit a %v byte page", elemsize, pagesize)
	}
	return &Blockalloc[H]{
		inner: inner, elemsize: elemsize, fit: fit, pagesize: pagesize,
	}
}

// Allocate implement api.Heap{} interface, `size` shall not exceed
// the configured elemsize.
func (h *Blockalloc[H]) Allocate(size int64) (unsafe.Pointer, error) {
	if debugcheck && size > h.elemsize {
		panicerr("blockalloc request %v exceeds elemsize %v", size, h.elemsize)
	}
	if h.head == nil || h.index == h.fit {
		ptr, err := h.inner.Allocate(h.pagesize)
		if err != nil {
			return nil, err
		}
		(*pagelink)(ptr).next = h.head
		h.head = ptr
		h.index = 0
	}
	ptr := unsafe.Add(h.head, linksize+h.index*h.elemsize)
	h.index++
	return ptr, nil
}

// Deallocate implement api.Heap{} interface. A no-op, slots are not
// reused.
func (h *Blockalloc[H]) Deallocate(ptr unsafe.Pointer, size int64) {
}

// Clear implement api.Heap{} interface.
func (h *Blockalloc[H]) Clear() {
	for h.head != nil {
		page := h.head
		h.head = (*pagelink)(page).next
		h.inner.Deallocate(page, h.pagesize)
	}
	h.index = 0
	h.inner.Clear()
}

// Allocsize implement api.Heap{} interface.
func (h *Blockalloc[H]) Allocsize() int64 {
	return h.elemsize
}
