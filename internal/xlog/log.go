// Package xlog is the shared logging surface for corekit's packages.
//
// It mirrors the call shape used throughout github.com/intuitivelabs/wtimer:
// a package-level Log value backed by github.com/intuitivelabs/slog,
// level-guard functions (DBGon, WARNon, ERRon) checked before formatting
// expensive debug output, and terse helpers (DBG, WARN, ERR, BUG, PANIC)
// used at call sites instead of the raw logger.
package xlog

import (
	"fmt"

	"github.com/intuitivelabs/slog"
)

// Log is the package-wide logger instance. Embedding applications may
// call slog.SetLevel(&Log, ...) to change verbosity, the same way
// wtimer's own tests do (commented out there, active here by default).
var Log slog.Log = slog.Log{
	Prefix: "corekit: ",
	Level:  slog.LWARN,
}

// New returns a logger instance scoped with an additional prefix, for a
// sub-component that wants its own line prefix (e.g. "corekit: multidict: ").
func New(component string) *slog.Log {
	return &slog.Log{
		Prefix: "corekit: " + component + ": ",
		Level:  Log.Level,
	}
}

// DBGon reports whether debug-level logging is enabled.
func DBGon() bool { return Log.DBGon() }

// WARNon reports whether warn-level logging is enabled.
func WARNon() bool { return Log.WARNon() }

// ERRon reports whether error-level logging is enabled.
func ERRon() bool { return Log.ERRon() }

// DBG logs a formatted debug message, guarded by DBGon at the call site.
func DBG(f string, a ...interface{}) { Log.DBG(f, a...) }

// WARN logs a formatted warning.
func WARN(f string, a ...interface{}) { Log.WARN(f, a...) }

// ERR logs a formatted error.
func ERR(f string, a ...interface{}) { Log.ERR(f, a...) }

// BUG logs an invariant violation. It is reachable only by bugs, never by
// expected failure paths (NX/XX preconditions, not-found, etc. use plain
// error returns instead).
func BUG(f string, a ...interface{}) {
	Log.ERR("BUG: "+f, a...)
}

// PANIC logs an invariant violation and panics. Reserved for states that
// would otherwise corrupt the data structure if execution continued.
func PANIC(f string, a ...interface{}) {
	msg := fmt.Sprintf(f, a...)
	Log.ERR("PANIC: %s", msg)
	panic(msg)
}
