package multidict

import "github.com/cespare/xxhash/v2"

// Hasher computes a 64-bit hash for a key. Callers supply one at
// construction time, since a generic dict has no way to introspect K's
// layout on its own.
type Hasher[K comparable] func(key K) uint64

// StringHasher returns a Hasher[string] backed by a seeded XX-hash-64.
// cespare/xxhash/v2 has no seed parameter on Sum64 itself, so the seed
// is folded in by writing it into the running digest ahead of the key
// bytes.
func StringHasher(seed uint64) Hasher[string] {
	var seedBytes [8]byte
	putUint64(seedBytes[:], seed)
	return func(key string) uint64 {
		d := xxhash.New()
		d.Write(seedBytes[:])
		d.WriteString(key)
		return d.Sum64()
	}
}

// BytesHasher returns a Hasher[[]byte] the same way StringHasher does.
func BytesHasher(seed uint64) Hasher[[]byte] {
	var seedBytes [8]byte
	putUint64(seedBytes[:], seed)
	return func(key []byte) uint64 {
		d := xxhash.New()
		d.Write(seedBytes[:])
		d.Write(key)
		return d.Sum64()
	}
}

// IntHasher returns a Hasher for any fixed-width integer key using an
// integer mixer (splitmix64 finalizer) instead of hashing raw bytes.
func IntHasher[K ~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64](seed uint64) Hasher[K] {
	return func(key K) uint64 {
		x := uint64(key) + seed + 0x9E3779B97F4A7C15
		x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
		x = (x ^ (x >> 27)) * 0x94D049BB133111EB
		return x ^ (x >> 31)
	}
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
