package multidict

import "github.com/intuitivelabs/corekit/slotbackend"

// reverseUint64 reverses the bit order of v across all 64 bits.
func reverseUint64(v uint64) uint64 {
	var r uint64
	for i := 0; i < 64; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}

// reverseCursorNext advances a scan cursor using the reverse-binary
// increment scheme: incrementing in bit-reversed order visits every
// slot under mask exactly once regardless of table growth mid-scan,
// and naturally returns 0 once the whole space has been covered.
func reverseCursorNext(cursor, mask uint64) uint64 {
	cursor |= ^mask
	cursor = reverseUint64(cursor)
	cursor++
	cursor = reverseUint64(cursor)
	return cursor
}

// Scan visits entries starting from cursor (0 to begin), calling fn for
// each. It returns the cursor to resume from, or 0 when the scan has
// covered the whole table. Scan may yield an entry more than once
// across a single logical scan but never skips one that was present
// for the entire scan, even across a concurrent resize.
func (d *Dict[K, V]) Scan(cursor uint64, fn func(key K, val V) bool) uint64 {
	if !d.isRehashing() {
		t := d.ht[0]
		mask := uint64(t.size - 1)
		if b := t.buckets[cursor&mask]; b != nil {
			d.visitBucket(b, fn)
		}
		return reverseCursorNext(cursor, mask)
	}

	small, large := d.ht[0], d.ht[1]
	if small.size > large.size {
		small, large = large, small
	}
	smallMask := uint64(small.size - 1)
	largeMask := uint64(large.size - 1)

	idx := cursor & smallMask
	if b := small.buckets[idx]; b != nil {
		d.visitBucket(b, fn)
	}
	for i := idx; i <= largeMask; i += smallMask + 1 {
		if b := large.buckets[i]; b != nil {
			d.visitBucket(b, fn)
		}
	}
	return reverseCursorNext(cursor, smallMask)
}

func (d *Dict[K, V]) visitBucket(b slotbackend.Backend[K, V], fn func(key K, val V) bool) {
	it := b.Iterate()
	for it.Next() {
		e := it.Entry()
		if !fn(e.Key, e.Value) {
			return
		}
	}
}

// GetSomeKeys samples up to len(out) keys, walking buckets with an
// empty-slot back-off: once a run of 5 or more empty slots exceeds the
// requested count, it jumps to a fresh random index rather than
// continuing to scan a sparse region.
func (d *Dict[K, V]) GetSomeKeys(out []K) int {
	n := len(out)
	if n == 0 {
		return 0
	}
	t := d.ht[0]
	if d.ht[1] != nil && d.ht[1].count > t.count {
		t = d.ht[1]
	}
	mask := t.size - 1
	idx := uint32(d.rng.Uint64()) & mask

	collected := 0
	emptyRun := 0
	maxSteps := int(t.size) * 2
	for step := 0; step < maxSteps && collected < n; step++ {
		b := t.buckets[idx]
		if b == nil {
			emptyRun++
			if emptyRun >= 5 && emptyRun > n {
				idx = uint32(d.rng.Uint64()) & mask
				emptyRun = 0
				continue
			}
		} else {
			emptyRun = 0
			it := b.Iterate()
			for it.Next() && collected < n {
				out[collected] = it.Entry().Key
				collected++
			}
		}
		idx = (idx + 1) & mask
	}
	return collected
}
