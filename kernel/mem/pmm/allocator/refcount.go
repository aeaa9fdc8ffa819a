package allocator

import (
	"math"

	"kmem/kernel/sync"
)

// MaxRefCount is the largest number of owners that may share a single page.
// The counter is sized after the maximum number of processes that can run
// simultaneously, which bounds how widely a copy-on-write page is shared.
const MaxRefCount = math.MaxUint8

// refTable tracks the number of owners of each managed page. Entry i
// corresponds to the page at (startAddr + i*mem.PageSize).
//
// The table does not validate indices; callers translate and check addresses
// before reaching it. Its lock is only held for the duration of a single
// table access and is never held while the free list lock is held.
type refTable struct {
	lock   sync.Spinlock
	counts []uint8
}

// reset sizes the table for pageCount pages and zeroes every entry.
func (t *refTable) reset(pageCount uint32) {
	t.lock.Acquire()
	if uint32(cap(t.counts)) >= pageCount {
		t.counts = t.counts[:pageCount]
		for i := range t.counts {
			t.counts[i] = 0
		}
	} else {
		t.counts = make([]uint8, pageCount)
	}
	t.lock.Release()
}

// set overwrites the counter for page index.
func (t *refTable) set(index uint32, value uint8) {
	t.lock.Acquire()
	t.counts[index] = value
	t.lock.Release()
}

// count returns the current counter for page index.
func (t *refTable) count(index uint32) uint8 {
	t.lock.Acquire()
	cnt := t.counts[index]
	t.lock.Release()
	return cnt
}

// increment adds an owner to page index. The counter is left untouched and
// false is returned if the page has no owners or is already shared by
// MaxRefCount owners.
func (t *refTable) increment(index uint32) (prev uint8, ok bool) {
	t.lock.Acquire()
	prev = t.counts[index]
	if ok = prev != 0 && prev != MaxRefCount; ok {
		t.counts[index]++
	}
	t.lock.Release()
	return prev, ok
}

// release drops an owner from page index. It reports whether the page has no
// owners left and whether the counter was already zero; a zero counter is
// never decremented.
func (t *refTable) release(index uint32) (zero, underflow bool) {
	t.lock.Acquire()
	switch t.counts[index] {
	case 0:
		underflow = true
	case 1:
		t.counts[index] = 0
		zero = true
	default:
		t.counts[index]--
	}
	t.lock.Release()
	return zero, underflow
}
