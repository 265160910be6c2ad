package taskwait

import (
	"context"
	"sort"
	"strings"
)

// Task is something whose completion can be waited on. A task is submitted and
// driven elsewhere; implementations only have to answer status and log queries
// against it. Concrete implementations poll an HTTP endpoint, watch a local
// process, or script status sequences for tests.
//
// The wait engine calls Status and Log strictly sequentially, never
// concurrently, one in flight at a time.
type Task interface {
	// Status queries the current status of the task. It may be expensive,
	// e.g. a network round trip; the wait engine never caches its result.
	Status(ctx context.Context) (string, error)

	// Log fetches all log lines the task has produced so far, or nil if there
	// are none yet. Successive calls must return the previous lines unchanged
	// with new lines appended. Log is only called if HasLog reports true and
	// log display is enabled.
	Log(ctx context.Context) ([]string, error)

	// HasLog reports whether this task may produce logs, now or in the future.
	// The wait engine queries it once per wait.
	HasLog() bool

	// StatusWaiting returns the statuses interpreted as "waiting",
	// i.e. the task has not started executing yet.
	StatusWaiting() StatusSet

	// StatusRunning returns the statuses interpreted as "running".
	// Any status in neither set is terminal and ends the wait.
	//
	// StatusWaiting and StatusRunning must not overlap. This is not validated;
	// overlapping sets make the phase transition ambiguous.
	StatusRunning() StatusSet
}

// StatusSet is a fixed set of status strings classifying a wait phase.
type StatusSet map[string]struct{}

// NewStatusSet returns a StatusSet containing the given statuses.
func NewStatusSet(statuses ...string) StatusSet {
	s := make(StatusSet, len(statuses))
	for _, status := range statuses {
		s[status] = struct{}{}
	}

	return s
}

// Contains reports whether status is in the set.
func (s StatusSet) Contains(status string) bool {
	_, ok := s[status]

	return ok
}

// String returns the statuses sorted and comma-separated.
func (s StatusSet) String() string {
	statuses := make([]string, 0, len(s))
	for status := range s {
		statuses = append(statuses, status)
	}

	sort.Strings(statuses)

	return strings.Join(statuses, ", ")
}
