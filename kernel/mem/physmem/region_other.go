//go:build !unix

package physmem

import (
	"unsafe"

	"kmem/kernel/mem"
)

var (
	reserveFn = heapReserve
	releaseFn = func([]byte) error { return nil }
)

// heapReserve over-allocates a byte slice by one page and returns the first
// page-aligned address inside it.
func heapReserve(size mem.Size) ([]byte, uintptr, error) {
	data := make([]byte, size+mem.PageSize)
	start := mem.PageRoundUp(uintptr(unsafe.Pointer(&data[0])))
	return data, start, nil
}
