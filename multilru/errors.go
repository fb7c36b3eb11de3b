package multilru

import "errors"

// ErrAllocation is returned when growing the entries array fails. On
// real Go heaps this is only reachable if MaxEntries is configured and
// would be exceeded.
var ErrAllocation = errors.New("multilru: allocation failed")
