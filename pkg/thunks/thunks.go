// Package thunks contains pointers to functions that might be replaced in
// tests.
package thunks

import (
	"time"
)

// TimeNow is an alias for time.Now. The event loop samples it once per
// iteration.
var TimeNow func() time.Time = time.Now

// SetUpTest replaces thunks with stable test versions.
func SetUpTest() {
	TimeNow = func() time.Time {
		return time.Date(1992, 12, 31, 1, 2, 3, 4, time.UTC)
	}
}

// TearDownTest restores the real implementations.
func TearDownTest() {
	TimeNow = time.Now
}
