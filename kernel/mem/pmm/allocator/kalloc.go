// Package allocator implements the physical page allocator used for user
// memory, kernel stacks, page-table pages and pipe buffers, together with the
// per-page reference counts that allow pages to be shared by copy-on-write
// mappings.
package allocator

import (
	"kmem/kernel"
	"kmem/kernel/kfmt"
	"kmem/kernel/mem"
	"kmem/kernel/mem/pmm"
)

const (
	// AllocFillByte is written over every byte of a page when it is handed
	// out so that reads of uninitialized data are easy to spot.
	AllocFillByte = byte(0x05)

	// FreeFillByte is written over every byte of a page once its last
	// owner releases it so that dangling references are easy to spot.
	FreeFillByte = byte(0x01)
)

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errKallocOutOfMemory        = &kernel.Error{Module: "kalloc", Message: "out of memory"}
	errKallocInvalidRange       = &kernel.Error{Module: "kalloc", Message: "memory range does not contain any pages"}
	errKallocRangeTooLarge      = &kernel.Error{Module: "kalloc", Message: "memory range contains too many pages"}
	errKallocAlreadyInitialized = &kernel.Error{Module: "kalloc", Message: "allocator already initialized"}
	errKallocMisaligned         = &kernel.Error{Module: "kalloc", Message: "page address is not page-aligned"}
	errKallocBelowRange         = &kernel.Error{Module: "kalloc", Message: "page address below managed range"}
	errKallocAboveRange         = &kernel.Error{Module: "kalloc", Message: "page address above managed range"}
	errKallocDoubleFree         = &kernel.Error{Module: "kalloc", Message: "page freed while not in use"}
	errKallocRefOverflow        = &kernel.Error{Module: "kalloc", Message: "page reference count overflow"}
	errKallocRefFreePage        = &kernel.Error{Module: "kalloc", Message: "reference taken on a free page"}
)

// PageAllocator hands out and reclaims the pages in the range
// [startAddr, endAddr). A page returns to the free list only when its
// reference count drops to zero.
//
// Two locks protect the allocator state: one for the free list and one for
// the reference counts. No method ever holds both at the same time.
type PageAllocator struct {
	// kernelEndAddr is the first address after the kernel image as
	// reported at boot; startAddr is that address rounded up to a page.
	kernelEndAddr uintptr
	startAddr     uintptr

	// endAddr is the end of the last page that fits below the top of
	// physical memory.
	endAddr uintptr

	pageCount   uint32
	initialized bool

	refs  refTable
	pages freeList
}

// Stats describes the state of a PageAllocator.
type Stats struct {
	// Start and End delimit the managed range.
	Start, End uintptr

	// TotalPages is the number of pages in the managed range.
	TotalPages uint32

	// FreePages is the number of pages currently in the free list.
	FreePages uint32
}

// Init sets up the allocator to manage every page that lies between
// kernelEnd (the first address after kernel code and data) and physTop (the
// top of physical memory). Init must be called exactly once, before any other
// method.
func (alloc *PageAllocator) Init(kernelEnd, physTop uintptr) *kernel.Error {
	if alloc.initialized {
		return errKallocAlreadyInitialized
	}

	start := mem.PageRoundUp(kernelEnd)
	if start < kernelEnd || physTop <= start || physTop-start < uintptr(mem.PageSize) {
		return errKallocInvalidRange
	}

	pageCount := uint64(physTop-start) >> mem.PageShift
	if pageCount > maxListPages {
		return errKallocRangeTooLarge
	}

	alloc.kernelEndAddr = kernelEnd
	alloc.startAddr = start
	alloc.endAddr = start + uintptr(pageCount<<mem.PageShift)
	alloc.pageCount = uint32(pageCount)
	alloc.refs.reset(alloc.pageCount)
	alloc.pages.reset(alloc.pageCount)
	alloc.initialized = true

	alloc.printMemoryMap()
	alloc.freeRange()
	return nil
}

// freeRange releases every managed page through Free so that boot-time pages
// go through the same validation and fill as any other page. Boot is recorded
// as the single owner of each page right before it is released.
func (alloc *PageAllocator) freeRange() {
	for index := uint32(0); index < alloc.pageCount; index++ {
		alloc.refs.set(index, 1)
		alloc.Free(alloc.pageAddress(index))
	}
}

// Alloc reserves a page and returns its address. The returned page has a
// reference count of 1 and its contents are filled with AllocFillByte.
//
// Alloc never blocks; if no page is available it returns an error.
func (alloc *PageAllocator) Alloc() (uintptr, *kernel.Error) {
	index, ok := alloc.pages.pop()
	if !ok {
		return 0, errKallocOutOfMemory
	}

	// The page is off the free list and its count is zero so no other
	// task can observe it until we hand it out.
	alloc.refs.set(index, 1)

	addr := alloc.pageAddress(index)
	mem.Memset(addr, AllocFillByte, mem.PageSize)
	return addr, nil
}

// Free drops a reference to the page at addr. The page is filled with
// FreeFillByte and placed back in the free list once its last reference is
// dropped.
//
// Passing an address that is not page-aligned or lies outside the managed
// range, or freeing a page that is not in use, triggers a kernel panic.
func (alloc *PageAllocator) Free(addr uintptr) {
	index, err := alloc.pageIndex(addr)
	if err != nil {
		panicFn(err)
		return
	}

	zero, underflow := alloc.refs.release(index)
	switch {
	case underflow:
		panicFn(errKallocDoubleFree)
		return
	case !zero:
		// still in use by other owners
		return
	}

	mem.Memset(addr, FreeFillByte, mem.PageSize)
	alloc.pages.push(index)
}

// IncRef registers an additional owner for the allocated page at addr. The
// caller must already hold a reference to the page.
func (alloc *PageAllocator) IncRef(addr uintptr) {
	index, err := alloc.pageIndex(addr)
	if err != nil {
		panicFn(err)
		return
	}

	if prev, ok := alloc.refs.increment(index); !ok {
		if prev == 0 {
			panicFn(errKallocRefFreePage)
		} else {
			panicFn(errKallocRefOverflow)
		}
	}
}

// RefCount returns the number of owners of the page at addr.
func (alloc *PageAllocator) RefCount(addr uintptr) uint8 {
	index, err := alloc.pageIndex(addr)
	if err != nil {
		panicFn(err)
		return 0
	}

	return alloc.refs.count(index)
}

// AllocFrame reserves a page and returns the frame that contains it.
func (alloc *PageAllocator) AllocFrame() (pmm.Frame, *kernel.Error) {
	addr, err := alloc.Alloc()
	if err != nil {
		return pmm.InvalidFrame, err
	}
	return pmm.FrameFromAddress(addr), nil
}

// FreeFrame drops a reference to the page that corresponds to frame.
func (alloc *PageAllocator) FreeFrame(frame pmm.Frame) {
	alloc.Free(frame.Address())
}

// Stats returns a snapshot of the allocator state.
func (alloc *PageAllocator) Stats() Stats {
	return Stats{
		Start:      alloc.startAddr,
		End:        alloc.endAddr,
		TotalPages: alloc.pageCount,
		FreePages:  alloc.pages.freeCount(),
	}
}

// VisitFreePages invokes visitor for the address of each free page, most
// recently freed first, until visitor returns false. The free list is locked
// during the traversal so visitor must not call into the allocator.
func (alloc *PageAllocator) VisitFreePages(visitor func(addr uintptr) bool) {
	alloc.pages.visit(func(index uint32) bool {
		return visitor(alloc.pageAddress(index))
	})
}

// pageIndex validates addr and returns the index of its page.
func (alloc *PageAllocator) pageIndex(addr uintptr) (uint32, *kernel.Error) {
	switch {
	case !mem.PageAligned(addr):
		return 0, errKallocMisaligned
	case addr < alloc.startAddr:
		return 0, errKallocBelowRange
	case addr >= alloc.endAddr:
		return 0, errKallocAboveRange
	}

	return uint32((addr - alloc.startAddr) >> mem.PageShift), nil
}

func (alloc *PageAllocator) pageAddress(index uint32) uintptr {
	return alloc.startAddr + uintptr(index)<<mem.PageShift
}

// printMemoryMap reports the managed range.
func (alloc *PageAllocator) printMemoryMap() {
	kfmt.Printf("[kalloc] kernel image ends at 0x%x\n", alloc.kernelEndAddr)
	kfmt.Printf("[kalloc] managed range: [0x%x - 0x%x), pages: %d, size: %dKb\n",
		alloc.startAddr,
		alloc.endAddr,
		alloc.pageCount,
		uint64(mem.Size(alloc.endAddr-alloc.startAddr)/mem.Kb),
	)
}
