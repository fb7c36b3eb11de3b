package multidict

import "github.com/intuitivelabs/corekit/multilru"

// EnableLRU turns on LRU-tracked eviction. It must be called before
// the first Add; calling it on a non-empty dict is a usage error.
func (d *Dict[K, V]) EnableLRU(maxLevels int) error {
	if d.Count() > 0 {
		return ErrLRUAlreadyConfigured
	}
	d.opts.EvictPolicy = EvictLRU
	d.opts.LRUMaxLevels = maxLevels
	return nil
}

func (d *Dict[K, V]) ensureLRU() {
	if d.lru != nil {
		return
	}
	d.lru, _ = multilru.New(d.opts.LRUMaxLevels, 16, 0)
	d.lru.SetRand(d.rng)
	d.lruKeyIdx = make(map[K]multilru.LruPtr)
	d.lruInUse = true
}

func (d *Dict[K, V]) lruActive() bool {
	return d.opts.EvictPolicy == EvictLRU
}

func (d *Dict[K, V]) growLruRev(need int) {
	for len(d.lruRev) <= need {
		grow := len(d.lruRev)
		if grow < 16 {
			grow = 16
		}
		d.lruRev = append(d.lruRev, make([]lruRevEntry[K], grow)...)
	}
}

func (d *Dict[K, V]) onInsertedLRU(key K) {
	if !d.lruActive() {
		return
	}
	d.ensureLRU()
	ptr, err := d.lru.Insert()
	if err != nil {
		return
	}
	d.lruKeyIdx[key] = ptr
	d.growLruRev(int(ptr))
	d.lruRev[ptr] = lruRevEntry[K]{hash: d.hash(key), valid: true}
}

// onTouchedLRU promotes key on a cache hit (successful Find or a
// replacing Add).
func (d *Dict[K, V]) onTouchedLRU(key K) {
	if !d.lruActive() || d.lru == nil {
		return
	}
	if ptr, ok := d.lruKeyIdx[key]; ok {
		d.lru.Increase(ptr)
	}
}

func (d *Dict[K, V]) onDeletedLRU(key K) {
	if !d.lruActive() || d.lru == nil {
		return
	}
	ptr, ok := d.lruKeyIdx[key]
	if !ok {
		return
	}
	d.lru.Delete(ptr)
	delete(d.lruKeyIdx, key)
	if int(ptr) < len(d.lruRev) {
		d.lruRev[ptr] = lruRevEntry[K]{}
	}
}
