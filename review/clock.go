package review

import "time"

// Clock abstracts wall-clock time so tests can drive workflow timing
// deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
