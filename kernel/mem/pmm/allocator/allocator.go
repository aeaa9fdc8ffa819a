package allocator

import (
	"kmem/kernel"
	"kmem/kernel/mem/pmm"
)

var (
	// Kernel is the PageAllocator instance that manages the physical pages
	// available to the kernel. It is set up once by Init and lives for as
	// long as the kernel runs.
	Kernel PageAllocator
)

// Init sets up the kernel page allocator for the range between kernelEnd and
// physTop and registers it as the active pmm frame allocator. Init must be
// invoked exactly once while the kernel boots.
func Init(kernelEnd, physTop uintptr) *kernel.Error {
	if err := Kernel.Init(kernelEnd, physTop); err != nil {
		return err
	}

	pmm.SetFrameAllocator(AllocFrame)
	return nil
}

// Alloc reserves a page using the kernel page allocator.
func Alloc() (uintptr, *kernel.Error) { return Kernel.Alloc() }

// Free drops a reference to a page owned by the kernel page allocator.
func Free(addr uintptr) { Kernel.Free(addr) }

// IncRef registers an additional owner for a page.
func IncRef(addr uintptr) { Kernel.IncRef(addr) }

// RefCount returns the number of owners of a page.
func RefCount(addr uintptr) uint8 { return Kernel.RefCount(addr) }

// AllocFrame reserves a page using the kernel page allocator and returns its
// frame. This function is passed to pmm.SetFrameAllocator instead of
// Kernel.AllocFrame; taking the method value would make Kernel escape.
func AllocFrame() (pmm.Frame, *kernel.Error) { return Kernel.AllocFrame() }
