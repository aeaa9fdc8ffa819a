//go:build unix

package physmem

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"kmem/kernel/mem"
)

var (
	// Both are mocked by tests.
	reserveFn = mmapReserve
	releaseFn = munmapRelease
)

// mmapReserve backs a region with a private anonymous mapping. Mappings are
// aligned to the host page size, which is a multiple of mem.PageSize on every
// supported platform.
func mmapReserve(size mem.Size) ([]byte, uintptr, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, 0, err
	}

	return data, uintptr(unsafe.Pointer(&data[0])), nil
}

func munmapRelease(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
