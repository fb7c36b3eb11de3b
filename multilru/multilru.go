// Package multilru implements a multilevel LRU: a fixed number of
// priority levels threaded through a single shared doubly linked list
// with one sentinel per level, giving O(1) insert, promote, and
// evict-minimum.
//
// github.com/intuitivelabs/wtimer has no direct equivalent to this —
// its intrusive lists (timer_lst.go) are a single flat ring per wheel
// slot, not a multi-segment ring with sentinels — so the list mechanics
// here are built fresh, in the same plain-struct, manual prev/next
// splicing style (no container/list use) rather than lifted from a
// specific file. See DESIGN.md for the ring topology.
package multilru

import (
	"github.com/intuitivelabs/corekit/internal/xlog"
	"github.com/intuitivelabs/corekit/internal/xrand"
)

// LruPtr is a compact index into the LRU's entry array. The zero value
// means "no entry" (empty list, or invalid pointer).
type LruPtr uint32

type entry struct {
	prev, next  LruPtr
	level       uint8
	isPopulated bool
	isHeadNode  bool
}

// LRU is a multilevel LRU list. Its entries are indexed by LruPtr;
// indices 1..maxLevels are level sentinels, user entries start at
// maxLevels+1. The zero value is not usable; construct with New.
type LRU struct {
	maxLevels int
	entries   []entry

	lowest LruPtr
	count  uint32

	// freeList is the hot free-slot cache, refilled by a linear scan
	// when exhausted.
	freeList []LruPtr

	// rng, if installed via SetRand, jitters the refill scan's starting
	// offset. Left nil, the scan always starts from the front.
	rng xrand.Source

	highestAllocated uint32
	maxEntries       uint32 // 0 = unbounded
}

const freeListCap = 256

// New creates an LRU with maxLevels priority levels (1..64) and an
// initial capacity of startCapacity user entries. maxEntries, if
// non-zero, bounds growth and causes ErrAllocation once exhausted.
func New(maxLevels int, startCapacity int, maxEntries uint32) (*LRU, error) {
	if maxLevels < 1 {
		maxLevels = 1
	}
	if maxLevels > 64 {
		maxLevels = 64
	}
	need := maxLevels + 1 + startCapacity
	size := roundSizeClass(need)
	if maxEntries != 0 && uint32(size) > maxEntries {
		size = int(maxEntries)
		if size < need {
			size = need
		}
	}

	l := &LRU{
		maxLevels:  maxLevels,
		entries:    make([]entry, size),
		maxEntries: maxEntries,
	}
	for i := 0; i < maxLevels; i++ {
		idx := LruPtr(i + 1)
		l.entries[idx] = entry{level: uint8(i), isHeadNode: true, isPopulated: true}
	}
	// Link the sentinels into a ring: H0 -> H1 -> ... -> H(max-1) -> H0.
	// Items of level k live between H(k-1) and H(k) (H(-1) == H(max-1)
	// via wraparound), which reproduces the coldest-to-hottest ordering
	// items_L0...H0...items_L1...H1... as one unrolling of the ring.
	for i := 0; i < maxLevels; i++ {
		idx := LruPtr(i + 1)
		nextIdx := LruPtr((i+1)%maxLevels + 1)
		l.entries[idx].next = nextIdx
		l.entries[nextIdx].prev = idx
	}
	l.highestAllocated = uint32(maxLevels + 1)
	return l, nil
}

func roundSizeClass(n int) int {
	size := 16
	for size < n {
		size *= 2
	}
	return size
}

// SetRand installs a PRNG used to jitter the starting offset of
// getFreeSlot's refill scan. Without one (the zero-value default),
// refills always scan from the front of the entries array, which is
// fine at low occupancy but biases reclaimed slots toward the low end
// under heavy, size-bounded free/alloc churn.
func (l *LRU) SetRand(rng xrand.Source) {
	l.rng = rng
}

func (l *LRU) sentinel(level int) LruPtr { return LruPtr(level + 1) }

func (l *LRU) linkBefore(slot, before LruPtr) {
	p := l.entries[before].prev
	l.entries[slot].prev = p
	l.entries[slot].next = before
	l.entries[p].next = slot
	l.entries[before].prev = slot
}

func (l *LRU) unlink(idx LruPtr) {
	p := l.entries[idx].prev
	n := l.entries[idx].next
	l.entries[p].next = n
	l.entries[n].prev = p
}

// nextNonSentinel walks forward from idx (exclusive), skipping sentinel
// nodes, wrapping around the ring. Returns 0 if the walk returns to idx
// without finding a populated entry (only sentinels remain).
func (l *LRU) nextNonSentinel(idx LruPtr) LruPtr {
	cur := l.entries[idx].next
	for cur != idx {
		if !l.entries[cur].isHeadNode {
			return cur
		}
		cur = l.entries[cur].next
	}
	return 0
}

func (l *LRU) getFreeSlot() (LruPtr, error) {
	if n := len(l.freeList); n > 0 {
		slot := l.freeList[n-1]
		l.freeList = l.freeList[:n-1]
		return slot, nil
	}
	// Fast path: a never-touched slot beyond highestAllocated.
	if int(l.highestAllocated) < len(l.entries) {
		if l.maxEntries != 0 && l.highestAllocated >= l.maxEntries {
			return 0, ErrAllocation
		}
		slot := LruPtr(l.highestAllocated)
		l.highestAllocated++
		return slot, nil
	}
	// Refill by linear scan for entries freed below highestAllocated,
	// starting from a jittered offset when a PRNG was installed so
	// repeated refills don't always reclaim the same low-index slots
	// first under heavy free/alloc churn.
	base := l.maxLevels + 1
	scanLen := len(l.entries) - base
	start := 0
	if l.rng != nil && scanLen > 0 {
		start = l.rng.Intn(scanLen)
	}
	for n := 0; n < scanLen && len(l.freeList) < freeListCap; n++ {
		i := base + (start+n)%scanLen
		if !l.entries[i].isPopulated {
			l.freeList = append(l.freeList, LruPtr(i))
		}
	}
	if n := len(l.freeList); n > 0 {
		slot := l.freeList[n-1]
		l.freeList = l.freeList[:n-1]
		return slot, nil
	}
	// Grow the array.
	if l.maxEntries != 0 && uint32(len(l.entries)) >= l.maxEntries {
		return 0, ErrAllocation
	}
	newSize := roundSizeClass(len(l.entries) + 1)
	if l.maxEntries != 0 && uint32(newSize) > l.maxEntries {
		newSize = int(l.maxEntries)
	}
	grown := make([]entry, newSize)
	copy(grown, l.entries)
	l.entries = grown
	slot := LruPtr(l.highestAllocated)
	l.highestAllocated++
	return slot, nil
}

func (l *LRU) freeSlot(idx LruPtr) {
	l.entries[idx] = entry{}
	if len(l.freeList) < freeListCap {
		l.freeList = append(l.freeList, idx)
	}
}

// Insert allocates a slot, places it at level 0 (coldest-if-only entry),
// and returns its LruPtr.
func (l *LRU) Insert() (LruPtr, error) {
	slot, err := l.getFreeSlot()
	if err != nil {
		return 0, err
	}
	l.entries[slot] = entry{level: 0, isPopulated: true}
	l.linkBefore(slot, l.sentinel(0))
	l.count++
	// Level-0 entries are appended behind older level-0 entries, so slot
	// is the coldest only if no other entry is left at level 0.
	if l.count == 1 || l.entries[l.lowest].level > 0 {
		l.lowest = slot
	}
	return slot, nil
}

// Increase promotes ptr to min(currentLevel+1, maxLevels-1).
func (l *LRU) Increase(ptr LruPtr) {
	e := &l.entries[ptr]
	if !e.isPopulated || e.isHeadNode {
		xlog.BUG("multilru: Increase called on invalid ptr %d", ptr)
		return
	}
	newLevel := int(e.level) + 1
	if newLevel > l.maxLevels-1 {
		newLevel = l.maxLevels - 1
	}
	if newLevel == int(e.level) {
		return
	}
	if ptr == l.lowest {
		l.lowest = l.nextNonSentinel(ptr)
	}
	l.unlink(ptr)
	e.level = uint8(newLevel)
	l.linkBefore(ptr, l.sentinel(newLevel))
	// ptr sits behind the older entries of newLevel; it is the coldest
	// entry when it was the only one, or when nothing colder is left.
	if l.lowest == 0 || int(l.entries[l.lowest].level) > newLevel {
		l.lowest = ptr
	}
}

// RemoveMinimum pops the coldest live entry, if any.
func (l *LRU) RemoveMinimum() (LruPtr, bool) {
	if l.count == 0 {
		return 0, false
	}
	victim := l.lowest
	newLowest := l.nextNonSentinel(victim)
	l.unlink(victim)
	l.freeSlot(victim)
	l.lowest = newLowest
	l.count--
	return victim, true
}

// Delete removes ptr from the list, regardless of its level.
func (l *LRU) Delete(ptr LruPtr) {
	if ptr == l.lowest {
		l.RemoveMinimum()
		return
	}
	l.unlink(ptr)
	l.freeSlot(ptr)
	l.count--
}

// Level returns the current level of ptr.
func (l *LRU) Level(ptr LruPtr) uint8 {
	return l.entries[ptr].level
}

// Count returns the number of populated non-sentinel entries.
func (l *LRU) Count() uint32 { return l.count }

// Lowest returns the coldest live entry without removing it.
func (l *LRU) Lowest() (LruPtr, bool) {
	if l.count == 0 {
		return 0, false
	}
	return l.lowest, true
}

// MaxLevels returns the configured number of priority levels.
func (l *LRU) MaxLevels() int { return l.maxLevels }

// GetNLowest fills out with up to len(out) of the coldest entries,
// coldest first, and returns how many were written.
func (l *LRU) GetNLowest(out []LruPtr) int {
	if l.count == 0 {
		return 0
	}
	n := 0
	cur := l.lowest
	for n < len(out) && n < int(l.count) {
		out[n] = cur
		n++
		nxt := l.nextNonSentinel(cur)
		if nxt == 0 {
			break
		}
		cur = nxt
	}
	return n
}

// GetNHighest fills out with up to len(out) of the hottest entries,
// hottest first, and returns how many were written.
func (l *LRU) GetNHighest(out []LruPtr) int {
	if l.count == 0 {
		return 0
	}
	n := 0
	cur := l.prevNonSentinel(l.sentinel(l.maxLevels - 1))
	for n < len(out) && n < int(l.count) && cur != 0 {
		out[n] = cur
		n++
		cur = l.prevNonSentinel(cur)
	}
	return n
}

func (l *LRU) prevNonSentinel(idx LruPtr) LruPtr {
	cur := l.entries[idx].prev
	for cur != idx {
		if !l.entries[cur].isHeadNode {
			return cur
		}
		cur = l.entries[cur].prev
	}
	return 0
}

// TraverseSize walks the entire ring starting at the level-0 sentinel
// and counts populated non-sentinel entries. It exists to cross-check
// Count independently of the insert/delete bookkeeping.
func (l *LRU) TraverseSize() uint32 {
	start := l.sentinel(0)
	var n uint32
	for cur := l.entries[start].next; cur != start; cur = l.entries[cur].next {
		if !l.entries[cur].isHeadNode {
			n++
		}
	}
	return n
}

// Maintain is reserved for future compaction of the entries array. It
// is a deliberate no-op for now rather than a guess at compaction
// semantics nothing else in this package requires yet.
func (l *LRU) Maintain() {}
