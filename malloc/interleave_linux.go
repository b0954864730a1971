//go:build linux

package malloc

import "fmt"
import "os"
import "unsafe"

import "golang.org/x/sys/unix"

import "github.com/bnclabs/gopar/api"

const mpolInterleave = 3

func advisehuge(b []byte) {
	// advisory, older kernels without THP reject it.
	unix.Madvise(b, unix.MADV_HUGEPAGE)
}

// Numanodes number of NUMA nodes on this machine.
func Numanodes() int {
	n := 0
	for {
		_, err := os.Stat(fmt.Sprintf("/sys/devices/system/node/node%d", n))
		if err != nil {
			break
		}
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// interleave bind `b` with an interleave policy across the first
// `nodes` NUMA nodes. The kernel round-robins backing pages.
func interleave(b []byte, nodes int) error {
	if nodes <= 1 {
		return nil
	}
	mask := nodemask(nodes)
	return mbind(unsafe.Pointer(&b[0]), uintptr(len(b)), mask)
}

func nodemask(nodes int) uint64 {
	mask := uint64(0)
	for i := 0; i < nodes && i < 64; i++ {
		mask |= uint64(1) << uint(i)
	}
	return mask
}

func mbind(addr unsafe.Pointer, length uintptr, mask uint64) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_MBIND,
		uintptr(addr), length, mpolInterleave,
		uintptr(unsafe.Pointer(&mask)), 64, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// InterleavedAlloc map `bytes` of memory interleaved across NUMA
// nodes. If `full` is false interleave only across the nodes in
// `active`, a bitmask of nodes hosting running workers.
func InterleavedAlloc(bytes int64, full bool, active uint64) (unsafe.Pointer, error) {
	prot, flags := unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON
	b, err := unix.Mmap(-1, 0, int(bytes), prot, flags)
	if err != nil {
		return nil, api.ErrorOutofMemory
	}
	mask := nodemask(Numanodes())
	if full == false && active != 0 {
		mask = active
	}
	if err := mbind(unsafe.Pointer(&b[0]), uintptr(len(b)), mask); err != nil {
		debugf("malloc: interleaved mbind: %v\n", err)
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
