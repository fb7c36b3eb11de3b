package multidict

// SetMaxMemory bounds keyBytes+valBytes (user bytes, not slot
// overhead). 0 disables the limit.
func (d *Dict[K, V]) SetMaxMemory(bytes uint64) {
	d.opts.MaxMemory = bytes
}

// EvictToLimit evicts keys until TotalUserBytes is at or below
// MaxMemory, or the safety caps are hit: at most 2*count+100 attempts,
// and no more than 50 consecutive vetoed/failed evictions in a row.
func (d *Dict[K, V]) EvictToLimit() {
	if d.opts.MaxMemory == 0 {
		return
	}
	maxAttempts := int(2*d.Count()) + 100
	consecutiveFailures := 0

	for attempts := 0; attempts < maxAttempts && d.TotalUserBytes() > d.opts.MaxMemory; attempts++ {
		key, ok := d.selectVictim()
		if !ok {
			break
		}
		val, ok := d.existsRaw(key)
		if !ok {
			consecutiveFailures++
			if consecutiveFailures >= 50 {
				break
			}
			continue
		}
		if d.evictCallback != nil && !d.evictCallback(key, val) {
			consecutiveFailures++
			if consecutiveFailures >= 50 {
				break
			}
			continue
		}
		d.Delete(key)
		consecutiveFailures = 0
	}
}

func (d *Dict[K, V]) selectVictim() (K, bool) {
	switch d.opts.EvictPolicy {
	case EvictLRU:
		if d.lru == nil {
			var zero K
			return zero, false
		}
		ptr, ok := d.lru.Lowest()
		if !ok {
			var zero K
			return zero, false
		}
		if int(ptr) >= len(d.lruRev) || !d.lruRev[ptr].valid {
			var zero K
			return zero, false
		}
		return d.keyByHash(d.lruRev[ptr].hash)
	default:
		return d.randomKey()
	}
}

// keyByHash resolves a bucket's worth of candidates down to the single
// key hashing to h, scanning the bucket(s) h maps to in either live
// table. This is the O(slot size) cost lruRevEntry's hash-only
// bookkeeping trades for not storing a second copy of every key.
func (d *Dict[K, V]) keyByHash(h uint64) (K, bool) {
	order := [2]int{0, 1}
	if d.isRehashing() {
		order = [2]int{1, 0} // newer table first, matching existsRaw
	}
	for _, i := range order {
		t := d.ht[i]
		if t == nil {
			continue
		}
		b := t.buckets[h&uint64(t.size-1)]
		if b == nil {
			continue
		}
		it := b.Iterate()
		for it.Next() {
			e := it.Entry()
			if d.hash(e.Key) == h {
				return e.Key, true
			}
		}
	}
	var zero K
	return zero, false
}
