package api

import "unsafe"

// Heap interface for composable memory management. Heaps are stacked
// as decorators, each layer owning its inner heap, with the page
// source as the final leaf of every chain.
type Heap interface {
	// Allocate a block of `size` bytes. Allocated memory is always
	// 64-bit aligned. Fails only when the page source cannot obtain
	// memory from the OS.
	Allocate(size int64) (unsafe.Pointer, error)

	// Deallocate a block obtained from this heap. Layers that batch
	// reclamation, like bump heaps, treat this as a no-op.
	Deallocate(ptr unsafe.Pointer, size int64)

	// Clear return every resource held by this heap to its inner
	// heap. The page source keeps its pages until it is released.
	Clear()

	// Allocsize natural block size served by this heap, zero for
	// variable sized heaps.
	Allocsize() int64
}
