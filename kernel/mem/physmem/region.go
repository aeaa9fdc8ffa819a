// Package physmem provides the block of memory that plays the role of
// physical RAM when the memory subsystem runs as a hosted process.
//
// A Region is page-aligned and lives outside the Go heap whenever the host
// supports anonymous mappings, so the page allocator can treat the addresses
// inside it exactly like physical addresses.
package physmem

import (
	"errors"
	"fmt"
	"unsafe"

	"kmem/kernel/mem"
)

var (
	// ErrInvalidSize is returned by Reserve when asked for less than a page.
	ErrInvalidSize = errors.New("physmem: region size must be at least one page")

	// ErrOutOfRegion is returned by Bytes for ranges that are not fully
	// contained in the region.
	ErrOutOfRegion = errors.New("physmem: range outside of region")
)

// Region describes a contiguous, page-aligned block of memory: [Start, End).
type Region struct {
	Start uintptr
	End   uintptr

	// backing keeps the memory reachable for as long as the region is.
	backing  []byte
	released bool
}

// Reserve obtains a zero-filled region of at least size bytes. The size is
// rounded up to a whole number of pages.
func Reserve(size mem.Size) (*Region, error) {
	if size < mem.PageSize {
		return nil, ErrInvalidSize
	}

	size = mem.Size(size.Pages()) * mem.PageSize
	backing, start, err := reserveFn(size)
	if err != nil {
		return nil, fmt.Errorf("physmem: reserve %d bytes: %w", size, err)
	}

	return &Region{
		Start:   start,
		End:     start + uintptr(size),
		backing: backing,
	}, nil
}

// Size returns the region length in bytes.
func (r *Region) Size() mem.Size {
	return mem.Size(r.End - r.Start)
}

// Contains returns true if [addr, addr+n) lies inside the region.
func (r *Region) Contains(addr uintptr, n mem.Size) bool {
	return addr >= r.Start && addr <= r.End && uint64(r.End-addr) >= uint64(n)
}

// Bytes returns a slice overlaying n bytes of the region starting at addr.
func (r *Region) Bytes(addr uintptr, n mem.Size) ([]byte, error) {
	if r.released || !r.Contains(addr, n) {
		return nil, ErrOutOfRegion
	}
	if n == 0 {
		return []byte{}, nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(n)), nil
}

// Release returns the region to the host. Calling Release more than once has
// no effect. Addresses inside a released region must not be accessed.
func (r *Region) Release() error {
	if r.released {
		return nil
	}
	r.released = true

	err := releaseFn(r.backing)
	r.backing = nil
	if err != nil {
		return fmt.Errorf("physmem: release: %w", err)
	}
	return nil
}
