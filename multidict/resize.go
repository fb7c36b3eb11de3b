package multidict

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

// maybeResize applies the configured expand/shrink policy. It never
// starts a second rehash while one is already in progress.
func (d *Dict[K, V]) maybeResize() {
	if d.isRehashing() {
		return
	}
	t := d.ht[0]
	if t.count == 0 {
		return
	}
	countLoadFactor := t.count * 100 / t.size

	if d.opts.UseByteBasedExpand {
		if d.shouldByteExpand(t, countLoadFactor) {
			d.startRehash(nextPow2(t.size * 2))
		}
		return
	}

	if countLoadFactor >= uint32(d.opts.ExpandLoadFactor) {
		d.startRehash(nextPow2(t.size * 2))
		return
	}
	if countLoadFactor < uint32(d.opts.ShrinkLoadFactor) && t.size > 8 {
		newSize := nextPow2(t.count)
		if newSize < minTableSize {
			newSize = minTableSize
		}
		if newSize < t.size {
			d.startRehash(newSize)
		}
	}
}

func (d *Dict[K, V]) shouldByteExpand(t *table[K, V], countLoadFactor uint32) bool {
	usedSlots := t.usedBytes / slotOverheadBytes
	if usedSlots == 0 {
		usedSlots = 1
	}
	avgSlotBytes := t.totalBytes() / usedSlots
	maxSlotBytes := d.scanMaxSlotBytes(t)

	expand := avgSlotBytes > d.opts.TargetSlotBytes ||
		maxSlotBytes > d.opts.MaxSlotBytesLimit ||
		countLoadFactor >= 2*uint32(d.opts.ExpandLoadFactor)
	if !expand {
		return false
	}

	newSize := nextPow2(t.size * 2)
	projected := t.totalBytes() / uint64(newSize)
	if float64(projected) >= 0.9*float64(avgSlotBytes) {
		// Expanding would not free up enough headroom to be worth it.
		return false
	}
	return true
}

func (d *Dict[K, V]) scanMaxSlotBytes(t *table[K, V]) uint64 {
	var max uint64
	for _, b := range t.buckets {
		if b == nil {
			continue
		}
		if sz := b.SizeBytes(); sz > max {
			max = sz
		}
	}
	return max
}
