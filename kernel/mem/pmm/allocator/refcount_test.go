package allocator

import "testing"

func TestRefTable(t *testing.T) {
	var table refTable
	table.reset(4)

	for index := uint32(0); index < 4; index++ {
		if got := table.count(index); got != 0 {
			t.Fatalf("[page %d] expected count to be 0 after reset; got %d", index, got)
		}
	}

	table.set(1, 1)
	for i := 0; i < 3; i++ {
		if prev, ok := table.increment(1); !ok || prev != uint8(1+i) {
			t.Fatalf("[inc %d] expected increment to succeed with prev %d; got %d, %t", i, 1+i, prev, ok)
		}
	}

	if exp, got := uint8(4), table.count(1); got != exp {
		t.Fatalf("expected count to be %d; got %d", exp, got)
	}

	for i := 0; i < 3; i++ {
		if zero, underflow := table.release(1); zero || underflow {
			t.Fatalf("[release %d] expected page to remain in use; got zero: %t, underflow: %t", i, zero, underflow)
		}
	}

	if zero, underflow := table.release(1); !zero || underflow {
		t.Fatalf("expected last release to report zero; got zero: %t, underflow: %t", zero, underflow)
	}

	// releasing a page without owners must be detected and never wrap
	if zero, underflow := table.release(1); zero || !underflow {
		t.Fatalf("expected release of an unused page to report underflow; got zero: %t, underflow: %t", zero, underflow)
	}

	if got := table.count(1); got != 0 {
		t.Fatalf("expected count to stay at 0 after an underflow; got %d", got)
	}
}

func TestRefTableIncrementLimits(t *testing.T) {
	var table refTable
	table.reset(2)

	if prev, ok := table.increment(0); ok || prev != 0 {
		t.Fatalf("expected increment on a page without owners to fail; got %d, %t", prev, ok)
	}

	table.set(1, MaxRefCount)
	if prev, ok := table.increment(1); ok || prev != MaxRefCount {
		t.Fatalf("expected increment past MaxRefCount to fail; got %d, %t", prev, ok)
	}

	if got := table.count(1); got != MaxRefCount {
		t.Fatalf("expected count to stay at %d; got %d", MaxRefCount, got)
	}
}

func TestRefTableReset(t *testing.T) {
	var table refTable
	table.reset(8)
	table.set(7, 3)

	// resetting reuses the backing array and must still clear it
	table.reset(8)
	if got := table.count(7); got != 0 {
		t.Fatalf("expected reset to clear all counters; got %d", got)
	}

	table.reset(16)
	if exp, got := 16, len(table.counts); got != exp {
		t.Fatalf("expected table to hold %d counters; got %d", exp, got)
	}
}
