// Package worklist implements chunked, work-stealing worklists for
// the parallel runtime. Tasks live inside fixed-capacity chunks,
// the unit of locality and of inter-thread hand-off. Each worker
// owns a {cur, next} pair of chunk handles, full chunks are
// published to a shared per-package container where idle workers
// steal them.
//
// Chunks are carved out of the sized-allocator registry, not the go
// heap, so task types shall not contain pointers into go managed
// memory. Push, Pop and Flush take the caller's logical worker-id
// and touch only that worker's record outside of publish and steal.
package worklist
