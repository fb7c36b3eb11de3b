package multidict

// slotOverheadBytes approximates the bookkeeping cost of one occupied
// bucket (the backend's own struct/slice headers), used for the
// usedBytes/keyBytes/valBytes split. It does not need to match a real
// allocator; only relative comparisons against the configured
// thresholds matter.
const slotOverheadBytes = 32

func (d *Dict[K, V]) startRehash(newSize uint32) {
	d.ht[1] = newTable[K, V](newSize)
	d.rehashIdx = 0
}

func (d *Dict[K, V]) finishRehash() {
	d.ht[0] = d.ht[1]
	d.ht[1] = nil
	d.rehashIdx = rehashIdxNone
}

func (d *Dict[K, V]) maybeRehashStep() {
	if d.iterators > 0 {
		return
	}
	if d.isRehashing() {
		d.rehashStep(1)
	}
}

func (d *Dict[K, V]) moveUserBytes(key K, val V) {
	kb := d.keySizer(key)
	vb := d.valSizer(val)
	d.ht[0].keyBytes -= kb
	d.ht[0].valBytes -= vb
	d.ht[1].keyBytes += kb
	d.ht[1].valBytes += vb
}

// rehashStep performs up to n bucket migrations, skipping empty slots
// with a bounded empty-visit budget of 5*n.
func (d *Dict[K, V]) rehashStep(n int) {
	if !d.isRehashing() {
		return
	}
	emptyVisits := 5 * n
	for ; n > 0; n-- {
		if d.ht[0].count == 0 {
			d.finishRehash()
			return
		}
		for d.ht[0].buckets[d.rehashIdx] == nil {
			d.rehashIdx++
			if uint32(d.rehashIdx) >= d.ht[0].size {
				d.rehashIdx = 0
			}
			emptyVisits--
			if emptyVisits <= 0 {
				return
			}
		}

		idx := uint32(d.rehashIdx)
		bucket := d.ht[0].buckets[idx]

		if bucket.Count() == 1 {
			key, _ := bucket.LastKey()
			targetIdx := d.hash(key) & uint64(d.ht[1].size-1)
			if d.ht[1].buckets[targetIdx] == nil {
				val, _ := bucket.FindValue(key)
				d.ht[1].buckets[targetIdx] = bucket
				d.ht[1].usedBytes += slotOverheadBytes
				d.ht[0].usedBytes -= slotOverheadBytes
				d.moveUserBytes(key, val)
				d.ht[1].count++
				d.ht[0].count--
				d.ht[0].buckets[idx] = nil
				d.rehashIdx++
				continue
			}
		}

		for {
			key, ok := bucket.LastKey()
			if !ok {
				break
			}
			val, _ := bucket.FindValue(key)
			targetIdx := d.hash(key) & uint64(d.ht[1].size-1)
			dst := d.ht[1].buckets[targetIdx]
			if dst == nil {
				dst = d.factory()
				d.ht[1].buckets[targetIdx] = dst
				d.ht[1].usedBytes += slotOverheadBytes
			}
			bucket.MigrateLast(dst)
			d.moveUserBytes(key, val)
			d.ht[0].count--
			d.ht[1].count++
		}
		d.ht[0].usedBytes -= slotOverheadBytes
		d.ht[0].buckets[idx] = nil
		d.rehashIdx++
	}
}

// deleteFromTable removes key from table tableIdx if present, updating
// its counters. It reports whether key was found.
func (d *Dict[K, V]) deleteFromTable(tableIdx int, key K) bool {
	t := d.ht[tableIdx]
	if t == nil {
		return false
	}
	idx := uint32(d.hash(key) & uint64(t.size-1))
	b := t.buckets[idx]
	if b == nil {
		return false
	}
	val, ok := b.FindValue(key)
	if !ok {
		return false
	}
	b.Remove(key)
	t.count--
	t.keyBytes -= d.keySizer(key)
	t.valBytes -= d.valSizer(val)
	if b.Count() == 0 {
		t.buckets[idx] = nil
		t.usedBytes -= slotOverheadBytes
	}
	return true
}
