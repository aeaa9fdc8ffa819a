// Package kmain contains the boot entrypoint of the memory subsystem.
package kmain

import (
	"kmem/kernel/kfmt"
	"kmem/kernel/mem/pmm/allocator"
)

var (
	// The following functions are mocked by tests.
	allocInitFn = allocator.Init
	panicFn     = kfmt.Panic
)

// Kmain brings up the physical page allocator for the memory between the end
// of the kernel image and the top of physical memory. Both addresses are
// computed by the boot code, which invokes Kmain exactly once.
//
// A failure to initialize the allocator leaves the kernel without memory so it
// causes a kernel panic.
//
//go:noinline
func Kmain(kernelEnd, physTop uintptr) {
	kfmt.Printf("[kmain] starting memory subsystem\n")

	if err := allocInitFn(kernelEnd, physTop); err != nil {
		panicFn(err)
		return
	}

	kfmt.Printf("[kmain] page allocator online\n")
}
