package multidict

import "unsafe"

// uintptrOfSlice returns the slice's backing array address, used only
// as an opaque value folded into Fingerprint; it is never dereferenced.
func uintptrOfSlice[T any](s []T) uintptr {
	if len(s) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&s[0]))
}
