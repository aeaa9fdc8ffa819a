// Command kallocsim boots the physical page allocator on top of a block of
// host memory and drives it with concurrent workloads.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"kmem/kernel"
	"kmem/kernel/kfmt"
	"kmem/kernel/kmain"
	"kmem/kernel/mem"
	"kmem/kernel/mem/physmem"
	"kmem/kernel/mem/pmm/allocator"
)

// pageAllocator is the allocator surface exercised by the workloads.
type pageAllocator interface {
	Alloc() (uintptr, *kernel.Error)
	Free(addr uintptr)
	IncRef(addr uintptr)
	RefCount(addr uintptr) uint8
	Stats() allocator.Stats
	VisitFreePages(visitor func(addr uintptr) bool)
}

type config struct {
	memKb      uint64
	imageSize  uint64
	workers    int
	iterations int
	maxShares  int
	maxHeld    int
	seed       uint64
	scenario   bool
}

var errBadConfig = errors.New("invalid configuration")

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[kallocsim] error: %s\n", err.Error())
	os.Exit(1)
}

func main() {
	var cfg config
	flag.Uint64Var(&cfg.memKb, "mem", 4096, "simulated physical memory in KiB")
	flag.Uint64Var(&cfg.imageSize, "image", 0x21abc, "simulated kernel image size in bytes")
	flag.IntVar(&cfg.workers, "workers", 4, "number of concurrent workers")
	flag.IntVar(&cfg.iterations, "iterations", 10000, "operations per worker")
	flag.IntVar(&cfg.maxShares, "share", 3, "maximum number of extra owners per page")
	flag.IntVar(&cfg.maxHeld, "held", 8, "maximum number of references held by a worker")
	flag.Uint64Var(&cfg.seed, "seed", 1, "workload random seed")
	flag.BoolVar(&cfg.scenario, "scenario", false, "run the three page walkthrough before the workload")
	flag.Parse()

	if err := run(os.Stdout, cfg); err != nil {
		exit(err)
	}
}

func (cfg config) validate() error {
	switch {
	case cfg.memKb == 0:
		return fmt.Errorf("%w: -mem must be positive", errBadConfig)
	case cfg.imageSize >= cfg.memKb*uint64(mem.Kb):
		return fmt.Errorf("%w: kernel image does not fit in %dKb", errBadConfig, cfg.memKb)
	case cfg.workers <= 0 || cfg.iterations < 0:
		return fmt.Errorf("%w: need at least one worker and a non-negative iteration count", errBadConfig)
	case cfg.maxShares < 0 || cfg.maxShares >= allocator.MaxRefCount:
		return fmt.Errorf("%w: -share must be in [0, %d)", errBadConfig, allocator.MaxRefCount)
	case cfg.maxHeld <= 0:
		return fmt.Errorf("%w: -held must be positive", errBadConfig)
	}
	return nil
}

// run boots the kernel page allocator inside a reserved region and runs the
// configured workloads against it. It may only be called once per process.
func run(w io.Writer, cfg config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: w, Prefix: []byte("kernel | ")})
	defer kfmt.SetOutputSink(nil)

	if cfg.scenario {
		if err := runScenario(w); err != nil {
			return err
		}
	}

	region, err := physmem.Reserve(mem.Size(cfg.memKb) * mem.Kb)
	if err != nil {
		return err
	}
	defer region.Release()

	kmain.Kmain(region.Start+uintptr(cfg.imageSize), region.End)

	res, err := runStress(&allocator.Kernel, region, cfg)
	if err != nil {
		return err
	}

	printReport(w, allocator.Kernel.Stats(), res)
	return nil
}

func printReport(w io.Writer, stats allocator.Stats, res stressResult) {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "managed range:  [0x%x - 0x%x)\n", stats.Start, stats.End)
	p.Fprintf(w, "pages managed:  %d (%d KiB)\n", stats.TotalPages, uint64(stats.TotalPages)*uint64(mem.PageSize/mem.Kb))
	p.Fprintf(w, "pages free:     %d\n", stats.FreePages)
	p.Fprintf(w, "allocations:    %d\n", res.allocs)
	p.Fprintf(w, "shares:         %d\n", res.shares)
	p.Fprintf(w, "frees:          %d\n", res.frees)
	p.Fprintf(w, "out of memory:  %d\n", res.outOfMemory)
	p.Fprintf(w, "peak in use:    %d pages\n", res.peakInUse)
}
