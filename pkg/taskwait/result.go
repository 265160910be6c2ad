package taskwait

import (
	"time"
)

// Result describes a finished wait. It is created exactly once,
// after the task has reached a terminal status.
type Result struct {
	// Status is the final status, as returned by the task's Status method.
	Status string

	// Start is the wall-clock time the wait began.
	Start time.Time

	// End is the wall-clock time the wait concluded.
	End time.Time
}

// Elapsed returns the total duration of the wait.
func (r Result) Elapsed() time.Duration {
	return r.End.Sub(r.Start)
}
