package allocator

import (
	"math"

	"kmem/kernel/sync"
)

const (
	// endOfList terminates the free list. Links store page index + 1 so
	// that a zero-value list is empty.
	endOfList = uint32(0)

	// maxListPages is the largest number of pages the list can track.
	maxListPages = math.MaxUint32
)

// freeList is a LIFO list of free page indices. Instead of storing the link
// inside the free page itself, the list is threaded through the next array so
// that free pages keep their debug fill intact.
type freeList struct {
	lock sync.Spinlock

	// head is the index + 1 of the most recently freed page or endOfList.
	head uint32

	// next[i] holds the index + 1 of the page that follows page i in the
	// list. Entries for pages that are not in the list are meaningless.
	next []uint32

	// free tracks the number of pages in the list.
	free uint32
}

// reset sizes the list for pageCount pages and empties it.
func (l *freeList) reset(pageCount uint32) {
	l.lock.Acquire()
	if uint32(cap(l.next)) >= pageCount {
		l.next = l.next[:pageCount]
	} else {
		l.next = make([]uint32, pageCount)
	}
	l.head = endOfList
	l.free = 0
	l.lock.Release()
}

// push places page index at the head of the list.
func (l *freeList) push(index uint32) {
	l.lock.Acquire()
	l.next[index] = l.head
	l.head = index + 1
	l.free++
	l.lock.Release()
}

// pop removes the page at the head of the list. It returns false if the list
// is empty.
func (l *freeList) pop() (uint32, bool) {
	l.lock.Acquire()
	link := l.head
	if link == endOfList {
		l.lock.Release()
		return 0, false
	}
	l.head = l.next[link-1]
	l.free--
	l.lock.Release()
	return link - 1, true
}

// freeCount returns the number of pages in the list.
func (l *freeList) freeCount() uint32 {
	l.lock.Acquire()
	n := l.free
	l.lock.Release()
	return n
}

// visit invokes fn for every page index in the list starting from the head.
// The list lock is held for the whole traversal so fn must not call back
// into the allocator. Iteration stops early if fn returns false.
func (l *freeList) visit(fn func(index uint32) bool) {
	l.lock.Acquire()
	defer l.lock.Release()

	for link := l.head; link != endOfList; link = l.next[link-1] {
		if !fn(link - 1) {
			return
		}
	}
}
