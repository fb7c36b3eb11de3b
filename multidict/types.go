// Package multidict implements an incrementally-rehashing hash
// dictionary: two hash tables migrated one bucket at a time across
// unrelated operations, count- and byte-based auto-resize, optional
// memory-bounded eviction (LRU or random), and a reverse-bit scan
// cursor that tolerates concurrent resizes.
//
// github.com/intuitivelabs/wtimer has no hash table of its own; the
// incremental rehash and scan-cursor mechanics here are built directly
// from the algorithm description, in that package's idiom (plain
// structs, manual index arithmetic, explicit sentinel values instead of
// pointers-to-optional) rather than lifted from a specific file. Bucket
// storage is delegated to slotbackend.Backend so this package stays a
// pure hash-table/rehash/eviction layer.
package multidict

import (
	"github.com/intuitivelabs/corekit/internal/xrand"
	"github.com/intuitivelabs/corekit/multilru"
	"github.com/intuitivelabs/corekit/slotbackend"
)

// EvictPolicy selects how Dict.EvictToLimit picks a victim.
type EvictPolicy int

const (
	EvictNone EvictPolicy = iota
	EvictLRU
	EvictRandom
)

// EvictionCallback is consulted before a key is evicted; returning
// false vetoes the eviction.
type EvictionCallback[K comparable, V any] func(key K, val V) bool

// Options configures a Dict. The zero value is not valid; use
// DefaultOptions as a base.
type Options struct {
	ExpandLoadFactor  uint8  // percent, default 200
	ShrinkLoadFactor  uint8  // percent, default 10
	TargetSlotBytes   uint64 // default 2 MiB
	MaxSlotBytesLimit uint64 // default 8 MiB
	UseByteBasedExpand bool
	AutoResize        bool
	MaxMemory         uint64 // 0 = unlimited
	EvictPolicy       EvictPolicy
	Seed              uint64
	LRUMaxLevels      int // only used when EvictPolicy == EvictLRU
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		ExpandLoadFactor:  200,
		ShrinkLoadFactor:  10,
		TargetSlotBytes:   2 << 20,
		MaxSlotBytesLimit: 8 << 20,
		AutoResize:        true,
		LRUMaxLevels:      8,
	}
}

const minTableSize = 8
const rehashIdxNone = -1

type table[K comparable, V any] struct {
	buckets   []slotbackend.Backend[K, V]
	size      uint32
	count     uint32
	usedBytes uint64
	keyBytes  uint64
	valBytes  uint64
}

func newTable[K comparable, V any](size uint32) *table[K, V] {
	return &table[K, V]{buckets: make([]slotbackend.Backend[K, V], size), size: size}
}

func (t *table[K, V]) totalBytes() uint64 {
	return t.usedBytes + t.keyBytes + t.valBytes
}

// Dict is a single-writer hash dictionary. Every method, including
// reads, must be externally serialised against concurrent writers
// (typically with a fastmutex.Mutex); Dict performs no locking of its
// own.
type Dict[K comparable, V any] struct {
	ht        [2]*table[K, V]
	rehashIdx int64

	iterators int32

	factory  slotbackend.Factory[K, V]
	hash     Hasher[K]
	keySizer Sizer[K]
	valSizer Sizer[V]

	opts Options
	rng  xrand.Source

	evictCallback EvictionCallback[K, V]

	lru       *multilru.LRU
	lruKeyIdx map[K]multilru.LruPtr
	lruRev    []lruRevEntry[K]
	lruInUse  bool
}

// lruRevEntry maps an LruPtr back to the bucket it was last seen in,
// without duplicating the key bytes: hash is the key's full hash (used
// to recompute the bucket index in either live table) and valid marks
// a live, currently-populated mapping. Resolving an entry back to its
// key costs an O(slot size) scan of that bucket rather than an O(1)
// lookup — selectVictim (eviction.go) pays that cost so lruRev doesn't
// have to store a second copy of every key in the dict.
type lruRevEntry[K comparable] struct {
	hash  uint64
	valid bool
}

// New constructs an empty Dict. factory creates a fresh bucket backend
// on first touch of a slot; hash computes key hashes; rng drives
// sampling (GetSomeKeys, PopRandom) and random eviction — pass
// xrand.New(seed) for a deterministic, seedable source, or any other
// xrand.Source implementation.
func New[K comparable, V any](opts Options, factory slotbackend.Factory[K, V], hash Hasher[K], rng xrand.Source) *Dict[K, V] {
	return &Dict[K, V]{
		ht:        [2]*table[K, V]{newTable[K, V](minTableSize), nil},
		rehashIdx: rehashIdxNone,
		factory:   factory,
		hash:      hash,
		keySizer:  DefaultSizer[K](),
		valSizer:  DefaultSizer[V](),
		opts:      opts,
		rng:       rng,
	}
}

// SetSizers overrides the default byte-size estimators used for
// byte-based resize and memory accounting.
func (d *Dict[K, V]) SetSizers(keySizer Sizer[K], valSizer Sizer[V]) {
	d.keySizer = keySizer
	d.valSizer = valSizer
}

// SetEvictionCallback installs a veto callback consulted before each
// eviction. A nil callback (the default) never vetoes.
func (d *Dict[K, V]) SetEvictionCallback(cb EvictionCallback[K, V]) {
	d.evictCallback = cb
}

func (d *Dict[K, V]) isRehashing() bool { return d.rehashIdx != rehashIdxNone }

// Count returns the total number of keys across both tables.
func (d *Dict[K, V]) Count() uint32 {
	n := d.ht[0].count
	if d.ht[1] != nil {
		n += d.ht[1].count
	}
	return n
}

// TotalUserBytes returns keyBytes+valBytes across both tables, the
// quantity SetMaxMemory bounds.
func (d *Dict[K, V]) TotalUserBytes() uint64 {
	n := d.ht[0].keyBytes + d.ht[0].valBytes
	if d.ht[1] != nil {
		n += d.ht[1].keyBytes + d.ht[1].valBytes
	}
	return n
}

// Fingerprint mixes both tables' shape, used by unsafe iterators to
// detect disallowed mutation during iteration.
func (d *Dict[K, V]) Fingerprint() uint64 {
	f := mix(0, uint64(uintptrOfSlice(d.ht[0].buckets)))
	f = mix(f, uint64(d.ht[0].size))
	f = mix(f, uint64(d.ht[0].count))
	if d.ht[1] != nil {
		f = mix(f, uint64(uintptrOfSlice(d.ht[1].buckets)))
		f = mix(f, uint64(d.ht[1].size))
		f = mix(f, uint64(d.ht[1].count))
	}
	return f
}

func mix(acc, v uint64) uint64 {
	acc ^= v + 0x9E3779B97F4A7C15 + (acc << 6) + (acc >> 2)
	return acc
}
