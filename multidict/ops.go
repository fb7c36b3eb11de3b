package multidict

import "github.com/intuitivelabs/corekit/slotbackend"

// Add inserts key/value, or replaces the value if key already exists.
// During an active rehash, any occurrence of key in HT[0] is deleted
// first so the key can never live in both tables at once.
func (d *Dict[K, V]) Add(key K, val V) slotbackend.MutateResult {
	movedFromOld := false
	if d.isRehashing() {
		movedFromOld = d.deleteFromTable(0, key)
	}
	targetIdx := 0
	if d.isRehashing() {
		targetIdx = 1
	}
	t := d.ht[targetIdx]
	idx := uint32(d.hash(key) & uint64(t.size-1))
	b := t.buckets[idx]
	if b == nil {
		b = d.factory()
		t.buckets[idx] = b
		t.usedBytes += slotOverheadBytes
	}
	oldVal, existed := b.FindValue(key)

	res := b.Insert(key, val)
	switch res {
	case slotbackend.Inserted:
		t.count++
		t.keyBytes += d.keySizer(key)
		t.valBytes += d.valSizer(val)
		if movedFromOld {
			// key already existed in HT[0]: this is a replace.
			res = slotbackend.Replaced
			d.onTouchedLRU(key)
		} else {
			d.onInsertedLRU(key)
		}
	case slotbackend.Replaced:
		if existed {
			t.valBytes -= d.valSizer(oldVal)
		}
		t.valBytes += d.valSizer(val)
		d.onTouchedLRU(key)
	}

	d.maybeRehashStep()
	if d.opts.AutoResize {
		d.maybeResize()
	}
	if d.opts.MaxMemory > 0 {
		d.EvictToLimit()
	}
	return res
}

// AddNX inserts key/value only if key does not already exist.
func (d *Dict[K, V]) AddNX(key K, val V) bool {
	if _, ok := d.existsRaw(key); ok {
		return false
	}
	d.Add(key, val)
	return true
}

// AddXX updates key's value only if key already exists.
func (d *Dict[K, V]) AddXX(key K, val V) bool {
	if _, ok := d.existsRaw(key); !ok {
		return false
	}
	d.Add(key, val)
	return true
}

// Replace is an alias for AddXX: it only ever updates an existing key.
func (d *Dict[K, V]) Replace(key K, val V) bool {
	return d.AddXX(key, val)
}

// Delete removes key, reporting whether it was actually present.
func (d *Dict[K, V]) Delete(key K) bool {
	var found bool
	if d.isRehashing() {
		foundNew := d.deleteFromTable(1, key)
		foundOld := d.deleteFromTable(0, key)
		found = foundNew || foundOld
	} else {
		found = d.deleteFromTable(0, key)
	}
	if found {
		d.onDeletedLRU(key)
	}
	d.maybeRehashStep()
	if d.opts.AutoResize {
		d.maybeResize()
	}
	return found
}

// Find reports key's value, promoting it in the LRU if one is active.
func (d *Dict[K, V]) Find(key K) (V, bool) {
	v, ok := d.existsRaw(key)
	if ok {
		d.onTouchedLRU(key)
	}
	d.maybeRehashStep()
	return v, ok
}

// existsRaw looks key up in both tables (during rehash) without
// touching LRU state, so internal existence checks (AddNX/AddXX,
// eviction) don't themselves count as a cache hit.
func (d *Dict[K, V]) existsRaw(key K) (V, bool) {
	h := d.hash(key)
	if d.isRehashing() {
		if b := d.ht[1].buckets[h&uint64(d.ht[1].size-1)]; b != nil {
			if v, ok := b.FindValue(key); ok {
				return v, true
			}
		}
		if b := d.ht[0].buckets[h&uint64(d.ht[0].size-1)]; b != nil {
			if v, ok := b.FindValue(key); ok {
				return v, true
			}
		}
		var zero V
		return zero, false
	}
	b := d.ht[0].buckets[h&uint64(d.ht[0].size-1)]
	if b == nil {
		var zero V
		return zero, false
	}
	v, ok := b.FindValue(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v, true
}

// GetAndDelete atomically reads and removes key.
func (d *Dict[K, V]) GetAndDelete(key K) (V, bool) {
	v, ok := d.existsRaw(key)
	if !ok {
		var zero V
		return zero, false
	}
	d.Delete(key)
	return v, true
}

// PopRandom removes and returns an arbitrary key/value. It retries up
// to 10 times to tolerate a sampled key disappearing mid-rehash.
func (d *Dict[K, V]) PopRandom() (K, V, bool) {
	for attempt := 0; attempt < 10; attempt++ {
		key, ok := d.randomKey()
		if !ok {
			break
		}
		val, ok := d.existsRaw(key)
		if !ok {
			continue
		}
		d.Delete(key)
		return key, val, true
	}
	var zeroK K
	var zeroV V
	return zeroK, zeroV, false
}

// randomKey samples a uniformly-ish random existing key across
// whichever tables are live, weighted by their key counts.
func (d *Dict[K, V]) randomKey() (K, bool) {
	tables := []*table[K, V]{d.ht[0]}
	if d.ht[1] != nil {
		tables = append(tables, d.ht[1])
	}
	var total uint32
	for _, t := range tables {
		total += t.count
	}
	if total == 0 {
		var zero K
		return zero, false
	}
	pick := uint32(d.rng.Intn(int(total)))
	t := tables[len(tables)-1]
	for _, tt := range tables {
		if pick < tt.count {
			t = tt
			break
		}
		pick -= tt.count
	}

	maxProbes := int(t.size) * 2
	if maxProbes < 64 {
		maxProbes = 64
	}
	for i := 0; i < maxProbes; i++ {
		idx := uint32(d.rng.Uint64()) & (t.size - 1)
		b := t.buckets[idx]
		if b == nil || b.Count() == 0 {
			continue
		}
		pos := d.rng.Intn(b.Count())
		if k, ok := b.FindKeyAtPosition(pos); ok {
			return k, true
		}
	}
	var zero K
	return zero, false
}
