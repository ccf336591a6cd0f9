// Package clock provides a substitutable time source so validation and
// overdue checks can be made deterministic in tests.
package clock

import "time"

type Clock func() time.Time

// System reads the wall clock.
var System Clock = time.Now

// Fixed always returns the given instant.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}
