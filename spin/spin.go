// Package spin blocks the calling goroutine by polling the wall clock.
package spin

import "time"

// Freeze returns once d has elapsed. It polls time.Now in a tight loop and
// never sleeps, so it keeps a CPU busy the whole time.
func Freeze(d time.Duration) {
	stop := time.Now().Add(d)
	for time.Now().Before(stop) {
	}
}

// FreezeMillis is Freeze for a duration given in milliseconds.
func FreezeMillis(ms int) {
	Freeze(time.Duration(ms) * time.Millisecond)
}
