package multidict

// IncrBy adds delta to the integer value stored at key (treating a
// missing key as 0) and returns the new value. It operates on the
// dict's stored representation directly, so a key already holding a
// value that isn't an int64 fails with ErrNonNumeric and leaves the
// dict unchanged; this is why IncrBy takes a Dict[K, any] rather than
// a Dict[K, int64] — a dict monomorphized to int64 could never hold
// anything else, making the failure unreachable.
func IncrBy[K comparable](d *Dict[K, any], key K, delta int64) (int64, error) {
	v, found := d.existsRaw(key)
	var cur int64
	if found {
		n, ok := v.(int64)
		if !ok {
			return 0, ErrNonNumeric
		}
		cur = n
	}
	newVal := cur + delta
	d.Add(key, newVal)
	return newVal, nil
}

// IncrByFloat is IncrBy for float64 accumulation.
func IncrByFloat[K comparable](d *Dict[K, any], key K, delta float64) (float64, error) {
	v, found := d.existsRaw(key)
	var cur float64
	if found {
		n, ok := v.(float64)
		if !ok {
			return 0, ErrNonNumeric
		}
		cur = n
	}
	newVal := cur + delta
	d.Add(key, newVal)
	return newVal, nil
}
