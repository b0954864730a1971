//go:build debug

package malloc

import "unsafe"

const debugcheck = true

var poolblkinit = make([]byte, 1024)

func init() {
	for i := 0; i < len(poolblkinit); i++ {
		poolblkinit[i] = 0xff
	}
}

// poison freshly allocated blocks so stale reads show up.
func initblock(block unsafe.Pointer, size int64) {
	dst := unsafe.Slice((*byte)(block), size)
	for len(dst) > len(poolblkinit) {
		copy(dst, poolblkinit)
		dst = dst[len(poolblkinit):]
	}
	copy(dst, poolblkinit)
}
