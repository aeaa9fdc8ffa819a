package main

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"kmem/kernel/mem"
	"kmem/kernel/mem/physmem"
	"kmem/kernel/mem/pmm/allocator"
)

var allocFill = []byte{allocator.AllocFillByte}

type stressResult struct {
	allocs, shares, frees, outOfMemory uint64
	peakInUse                          uint32
}

func (r *stressResult) add(other stressResult) {
	r.allocs += other.allocs
	r.shares += other.shares
	r.frees += other.frees
	r.outOfMemory += other.outOfMemory
	if other.peakInUse > r.peakInUse {
		r.peakInUse = other.peakInUse
	}
}

// runStress starts cfg.workers workers that randomly allocate, share and free
// pages managed by alloc inside region. Each worker only touches references
// it holds. Once all workers are done every page must be back in the free
// list.
func runStress(alloc pageAllocator, region *physmem.Region, cfg config) (stressResult, error) {
	var (
		wg      sync.WaitGroup
		results = make([]stressResult, cfg.workers)
		errs    = make([]error, cfg.workers)
	)

	wg.Add(cfg.workers)
	for worker := 0; worker < cfg.workers; worker++ {
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.seed, uint64(worker)))
			results[worker], errs[worker] = stressWorker(alloc, region, cfg, rng)
		}(worker)
	}
	wg.Wait()

	var total stressResult
	for worker := range results {
		if errs[worker] != nil {
			return total, fmt.Errorf("worker %d: %w", worker, errs[worker])
		}
		total.add(results[worker])
	}

	return total, verifyConservation(alloc)
}

func stressWorker(alloc pageAllocator, region *physmem.Region, cfg config, rng *rand.Rand) (stressResult, error) {
	var (
		res  stressResult
		held = make([]uintptr, 0, cfg.maxHeld)
	)

	release := func(i int) {
		addr := held[i]
		held[i] = held[len(held)-1]
		held = held[:len(held)-1]
		alloc.Free(addr)
		res.frees++
	}

	for i := 0; i < cfg.iterations; i++ {
		switch op := rng.IntN(3); {
		case op == 0 && len(held) < cfg.maxHeld:
			addr, err := alloc.Alloc()
			if err != nil {
				res.outOfMemory++
				continue
			}
			res.allocs++

			if cnt := alloc.RefCount(addr); cnt != 1 {
				return res, fmt.Errorf("page 0x%x allocated with refcount %d", addr, cnt)
			}
			page, viewErr := region.Bytes(addr, mem.PageSize)
			if viewErr != nil {
				return res, fmt.Errorf("page 0x%x: %w", addr, viewErr)
			}
			if n := bytes.Count(page, allocFill); n != len(page) {
				return res, fmt.Errorf("page 0x%x allocated with %d unfilled bytes", addr, len(page)-n)
			}
			held = append(held, addr)

			stats := alloc.Stats()
			if inUse := stats.TotalPages - stats.FreePages; inUse > res.peakInUse {
				res.peakInUse = inUse
			}
		case op == 1 && len(held) > 0 && len(held) < cfg.maxHeld:
			addr := held[rng.IntN(len(held))]
			if int(alloc.RefCount(addr)) > cfg.maxShares {
				continue
			}
			alloc.IncRef(addr)
			held = append(held, addr)
			res.shares++
		case op == 2 && len(held) > 0:
			release(rng.IntN(len(held)))
		}
	}

	for len(held) > 0 {
		release(len(held) - 1)
	}

	return res, nil
}

// verifyConservation checks that every managed page is in the free list
// exactly once and has no owners.
func verifyConservation(alloc pageAllocator) error {
	stats := alloc.Stats()
	if stats.FreePages != stats.TotalPages {
		return fmt.Errorf("%d of %d pages leaked", stats.TotalPages-stats.FreePages, stats.TotalPages)
	}

	var (
		seen = make(map[uintptr]struct{}, stats.TotalPages)
		err  error
	)
	alloc.VisitFreePages(func(addr uintptr) bool {
		if _, dup := seen[addr]; dup {
			err = fmt.Errorf("page 0x%x appears twice in the free list", addr)
			return false
		}
		seen[addr] = struct{}{}
		return true
	})
	if err != nil {
		return err
	}

	if uint32(len(seen)) != stats.TotalPages {
		return fmt.Errorf("free list holds %d pages; expected %d", len(seen), stats.TotalPages)
	}

	for addr := range seen {
		if cnt := alloc.RefCount(addr); cnt != 0 {
			return fmt.Errorf("free page 0x%x has refcount %d", addr, cnt)
		}
	}
	return nil
}

// runScenario walks a dedicated three page allocator through allocation
// exhaustion, LIFO reuse and sharing.
func runScenario(w io.Writer) error {
	region, err := physmem.Reserve(4 * mem.PageSize)
	if err != nil {
		return err
	}
	defer region.Release()

	alloc := new(allocator.PageAllocator)
	if kerr := alloc.Init(region.Start+uintptr(mem.PageSize/2), region.End); kerr != nil {
		return kerr
	}

	fail := func(format string, args ...interface{}) error {
		return fmt.Errorf("scenario: "+format, args...)
	}

	var pages [3]uintptr
	for i := range pages {
		addr, kerr := alloc.Alloc()
		if kerr != nil {
			return fail("allocation %d failed: %v", i+1, kerr)
		}
		pages[i] = addr
		fmt.Fprintf(w, "scenario: page %d -> 0x%x\n", i+1, addr)
	}
	if pages[0] == pages[1] || pages[0] == pages[2] || pages[1] == pages[2] {
		return fail("duplicate page handed out")
	}

	if _, kerr := alloc.Alloc(); kerr == nil {
		return fail("fourth allocation succeeded")
	}
	fmt.Fprintf(w, "scenario: fourth allocation reports out of memory\n")

	alloc.Free(pages[1])
	if addr, kerr := alloc.Alloc(); kerr != nil || addr != pages[1] {
		return fail("expected page 2 to be reused; got 0x%x (%v)", addr, kerr)
	}
	fmt.Fprintf(w, "scenario: freed page 2 is handed out again\n")

	alloc.IncRef(pages[0])
	alloc.Free(pages[0])
	if alloc.Stats().FreePages != 0 || alloc.RefCount(pages[0]) != 1 {
		return fail("shared page 1 released after its first free")
	}
	alloc.Free(pages[0])
	if alloc.Stats().FreePages != 1 || alloc.RefCount(pages[0]) != 0 {
		return fail("shared page 1 not released after its second free")
	}
	fmt.Fprintf(w, "scenario: shared page 1 released after its last owner\n")

	return nil
}
