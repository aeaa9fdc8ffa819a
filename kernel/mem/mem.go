// Package mem defines the memory size units and page geometry shared by the
// physical memory subsystem.
package mem

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)
)

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// Pages returns the number of pages that are required for storing this size.
func (s Size) Pages() uint64 {
	return uint64((s + PageSize - 1) >> PageShift)
}

// PageRoundUp rounds addr up to the nearest page boundary.
func PageRoundUp(addr uintptr) uintptr {
	return (addr + uintptr(PageSize-1)) &^ uintptr(PageSize-1)
}

// PageRoundDown rounds addr down to the nearest page boundary.
func PageRoundDown(addr uintptr) uintptr {
	return addr &^ uintptr(PageSize-1)
}

// PageAligned returns true if addr falls on a page boundary.
func PageAligned(addr uintptr) bool {
	return addr&uintptr(PageSize-1) == 0
}
