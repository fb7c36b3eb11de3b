// Package listslot is a straightforward slotbackend.Backend: a plain
// slice of entries, linear-scanned. It is the default backend used by
// multidict's tests and by callers that have no reason to plug in
// something more specialised — real hash buckets hold very few entries
// in the common case, where a linear scan beats any tree or secondary
// hash.
package listslot

import "github.com/intuitivelabs/corekit/slotbackend"

// entryOverheadBytes approximates the bookkeeping cost of one stored
// entry (slice header growth amortised, plus a notional pointer-sized
// tag), used only for SizeBytes' relative accounting; multidict only
// compares these values against each other and against configured
// thresholds, it never needs them to match a real allocator exactly.
const entryOverheadBytes = 16

// Backend is a slotbackend.Backend[K, V] backed by a slice.
type Backend[K comparable, V any] struct {
	entries []slotbackend.Entry[K, V]
}

// New returns an empty Backend.
func New[K comparable, V any]() *Backend[K, V] {
	return &Backend[K, V]{}
}

// NewFactory returns a slotbackend.Factory producing fresh Backends,
// for use as multidict's slot constructor.
func NewFactory[K comparable, V any]() slotbackend.Factory[K, V] {
	return func() slotbackend.Backend[K, V] {
		return New[K, V]()
	}
}

func (b *Backend[K, V]) indexOf(key K) int {
	for i := range b.entries {
		if b.entries[i].Key == key {
			return i
		}
	}
	return -1
}

func (b *Backend[K, V]) Insert(key K, value V) slotbackend.MutateResult {
	if i := b.indexOf(key); i >= 0 {
		b.entries[i].Value = value
		return slotbackend.Replaced
	}
	b.entries = append(b.entries, slotbackend.Entry[K, V]{Key: key, Value: value})
	return slotbackend.Inserted
}

func (b *Backend[K, V]) Remove(key K) bool {
	i := b.indexOf(key)
	if i < 0 {
		return false
	}
	last := len(b.entries) - 1
	b.entries[i] = b.entries[last]
	b.entries = b.entries[:last]
	return true
}

func (b *Backend[K, V]) FindValue(key K) (V, bool) {
	if i := b.indexOf(key); i >= 0 {
		return b.entries[i].Value, true
	}
	var zero V
	return zero, false
}

func (b *Backend[K, V]) SizeBytes() uint64 {
	return uint64(len(b.entries)) * (sizeOf[K]() + sizeOf[V]() + entryOverheadBytes)
}

// sizeOf is a conservative, allocation-free stand-in for unsafe.Sizeof
// on a generic type parameter's zero value; exact byte accounting is
// not required (see entryOverheadBytes' doc comment), only a stable relative
// measure the dict can compare against its own thresholds.
func sizeOf[T any]() uint64 {
	var v T
	switch any(v).(type) {
	case string:
		return 16
	case int, int64, uint64, float64:
		return 8
	case int32, uint32, float32:
		return 4
	default:
		return 8
	}
}

func (b *Backend[K, V]) Count() int { return len(b.entries) }

type iterator[K comparable, V any] struct {
	entries []slotbackend.Entry[K, V]
	pos     int
}

func (it *iterator[K, V]) Next() bool {
	it.pos++
	return it.pos < len(it.entries)
}

func (it *iterator[K, V]) Entry() slotbackend.Entry[K, V] {
	return it.entries[it.pos]
}

func (b *Backend[K, V]) Iterate() slotbackend.Iterator[K, V] {
	return &iterator[K, V]{entries: b.entries, pos: -1}
}

func (b *Backend[K, V]) FindKeyAtPosition(pos int) (K, bool) {
	if pos < 0 || pos >= len(b.entries) {
		var zero K
		return zero, false
	}
	return b.entries[pos].Key, true
}

func (b *Backend[K, V]) LastKey() (K, bool) {
	if len(b.entries) == 0 {
		var zero K
		return zero, false
	}
	return b.entries[len(b.entries)-1].Key, true
}

func (b *Backend[K, V]) MigrateLast(dst slotbackend.Backend[K, V]) bool {
	if len(b.entries) == 0 {
		return false
	}
	last := b.entries[len(b.entries)-1]
	b.entries = b.entries[:len(b.entries)-1]
	dst.Insert(last.Key, last.Value)
	return true
}

func (b *Backend[K, V]) FreeSlot() int {
	n := len(b.entries)
	b.entries = nil
	return n
}
