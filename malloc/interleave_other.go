//go:build !linux

package malloc

import "unsafe"

import "golang.org/x/sys/unix"

import "github.com/bnclabs/gopar/api"

func advisehuge(b []byte) {
}

// Numanodes number of NUMA nodes, always 1 off linux.
func Numanodes() int {
	return 1
}

func interleave(b []byte, nodes int) error {
	return nil
}

// InterleavedAlloc map `bytes` of memory. Interleaving needs linux,
// elsewhere this is a plain anonymous mapping.
func InterleavedAlloc(bytes int64, full bool, active uint64) (unsafe.Pointer, error) {
	prot, flags := unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON
	b, err := unix.Mmap(-1, 0, int(bytes), prot, flags)
	if err != nil {
		return nil, api.ErrorOutofMemory
	}
	for off := int64(0); off < bytes; off += Subpagesize {
		b[off] = 0
	}
	return unsafe.Pointer(&b[0]), nil
}

// InterleavedFree unmap memory obtained from InterleavedAlloc.
func InterleavedFree(ptr unsafe.Pointer, bytes int64) {
	if err := unix.Munmap(unsafe.Slice((*byte)(ptr), bytes)); err != nil {
		panicerr("munmap failed: %v", err)
	}
}
