// Package malloc supplies custom memory management for the parallel
// runtime, with a limited scope:
//
//   - Heaps compose as decorators, each layer owning its inner heap,
//     with a page source as the leaf of every chain.
//   - Memory is obtained from the OS in large pages, 2MB by default,
//     and once mapped is never returned until the page source is
//     released.
//   - Memory-chunks allocated by this package will always be 64-bit
//     aligned.
//   - Per-thread layers are indexed by a logical worker-id handed out
//     by the engine, not the OS thread id. Unless a layer states
//     otherwise its methods are not thread safe.
//
// The sized-allocator registry maps a size class to a shared
// allocator composed as perthread(freelist(bumpptr(pagesource))),
// which is the hot path for worklist chunk allocation.
package malloc
