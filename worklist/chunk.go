package worklist

import "reflect"
import "unsafe"

import "github.com/bnclabs/gopar/lib"
import "github.com/bnclabs/gopar/malloc"

// chunk header placed at the head of every chunk block, the task
// ring's storage follows inline. The next link at offset zero
// threads chunks through the shared containers. Chunks live in
// registry memory, outside the go heap.
type chunk[T any] struct {
	next unsafe.Pointer
	ring Ring[T]
}

func tochunk[T any](ptr unsafe.Pointer) *chunk[T] {
	return (*chunk[T])(ptr)
}

// chunknext the intrusive link of any chunk or queue node, always
// the first word of the block.
func chunknext(ptr unsafe.Pointer) *unsafe.Pointer {
	return (*unsafe.Pointer)(ptr)
}

func chunkhdrsize[T any]() int64 {
	var c chunk[T]
	return lib.AlignUp(int64(unsafe.Sizeof(c)), malloc.Alignment)
}

// footprint bytes a chunk of `chunksize` tasks occupies, the size
// class its allocator is configured for.
func footprint[T any](chunksize int64) int64 {
	var zero T
	return chunkhdrsize[T]() + chunksize*int64(unsafe.Sizeof(zero))
}

// initchunk lay a chunk over a raw block from the registry.
func initchunk[T any](ptr unsafe.Pointer, chunksize int64) *chunk[T] {
	c := tochunk[T](ptr)
	buf := unsafe.Slice((*T)(unsafe.Add(ptr, chunkhdrsize[T]())), chunksize)
	c.next = nil
	c.ring = MakeRing(buf)
	return c
}

// haspointers report whether a task type holds pointers into go
// managed memory, which must never be stored in chunk storage.
func haspointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Func, reflect.UnsafePointer:
		return true
	case reflect.Array:
		return haspointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if haspointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}
