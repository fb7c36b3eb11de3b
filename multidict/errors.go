package multidict

import "errors"

// ErrNonNumeric is returned by IncrBy/IncrByFloat when the existing
// value under key cannot be interpreted as numeric.
var ErrNonNumeric = errors.New("multidict: value is not numeric")

// ErrNotFound reports a missing key. GetAndDelete and PopRandom report
// a missing candidate through their bool result and do not return it.
var ErrNotFound = errors.New("multidict: key not found")

// ErrLRUAlreadyConfigured is returned by EnableLRU if the dict
// currently holds any keys; LRU integration may only be turned on
// while the dict is empty.
var ErrLRUAlreadyConfigured = errors.New("multidict: LRU must be enabled before the first insert")

// ErrIteratorInvalidated is returned by UnsafeIterator.Release when the
// dict's shape changed during iteration.
var ErrIteratorInvalidated = errors.New("multidict: dict mutated during unsafe iteration")
