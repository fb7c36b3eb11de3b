package multidict

import "github.com/intuitivelabs/corekit/slotbackend"

// walkState is the shared bucket-by-bucket cursor used by both iterator
// flavors: walk every bucket of ht[0], then of ht[1] if present.
type walkState[K comparable, V any] struct {
	d         *Dict[K, V]
	tableIdx  int
	bucketIdx uint32
	bucketIt  slotbackend.Iterator[K, V]
}

func (w *walkState[K, V]) next() (K, V, bool) {
	for {
		if w.bucketIt != nil {
			if w.bucketIt.Next() {
				e := w.bucketIt.Entry()
				return e.Key, e.Value, true
			}
			w.bucketIt = nil
		}
		t := w.d.ht[w.tableIdx]
		if t == nil || w.bucketIdx >= t.size {
			if w.tableIdx == 0 && w.d.ht[1] != nil {
				w.tableIdx = 1
				w.bucketIdx = 0
				continue
			}
			var zk K
			var zv V
			return zk, zv, false
		}
		b := t.buckets[w.bucketIdx]
		w.bucketIdx++
		if b != nil {
			w.bucketIt = b.Iterate()
		}
	}
}

// SafeIterator walks every key/value pair live in the dict. While a
// SafeIterator is open, incremental rehashing is suppressed (see
// maybeRehashStep); mutations through the dict are otherwise allowed.
type SafeIterator[K comparable, V any] struct {
	w      walkState[K, V]
	closed bool
}

// NewSafeIterator opens a SafeIterator. The caller must call Close when
// done, including on early abandonment, or rehashing stays suppressed
// forever.
func (d *Dict[K, V]) NewSafeIterator() *SafeIterator[K, V] {
	d.iterators++
	return &SafeIterator[K, V]{w: walkState[K, V]{d: d}}
}

// Next advances the iterator, returning ok=false once exhausted.
func (it *SafeIterator[K, V]) Next() (K, V, bool) {
	return it.w.next()
}

// Close releases the iterator, allowing incremental rehashing to resume.
func (it *SafeIterator[K, V]) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.w.d.iterators--
}

// UnsafeIterator walks every key/value pair without suppressing rehash.
// It captures a fingerprint of the dict's shape on the first Next and
// checks it again on Release; any resize or rehash completion during
// the walk is reported as ErrIteratorInvalidated rather than silently
// producing a skip or a duplicate.
type UnsafeIterator[K comparable, V any] struct {
	w          walkState[K, V]
	fp         uint64
	fpCaptured bool
}

// NewUnsafeIterator opens an UnsafeIterator.
func (d *Dict[K, V]) NewUnsafeIterator() *UnsafeIterator[K, V] {
	return &UnsafeIterator[K, V]{w: walkState[K, V]{d: d}}
}

// Next advances the iterator, returning ok=false once exhausted.
func (it *UnsafeIterator[K, V]) Next() (K, V, bool) {
	if !it.fpCaptured {
		it.fp = it.w.d.Fingerprint()
		it.fpCaptured = true
	}
	return it.w.next()
}

// Release checks whether the dict's shape changed since the first Next
// and returns ErrIteratorInvalidated if so. It is safe to call even if
// Next was never called.
func (it *UnsafeIterator[K, V]) Release() error {
	if it.fpCaptured && it.fp != it.w.d.Fingerprint() {
		return ErrIteratorInvalidated
	}
	return nil
}
