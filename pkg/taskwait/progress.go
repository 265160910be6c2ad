package taskwait

import (
	"fmt"
	"io"
)

// progress is a minimal two-state wait indicator: a start label once, one dot
// per poll, a completion label once the phase ends. An inactive progress is a
// no-op, so callers never have to guard their tick and done calls.
type progress struct {
	w      io.Writer
	active bool
}

// newProgress returns a new progress and, if active, emits the start label.
func newProgress(w io.Writer, label string, active bool) *progress {
	if active {
		fmt.Fprint(w, label)
	}

	return &progress{w: w, active: active}
}

// tick emits one dot.
func (p *progress) tick() {
	if p.active {
		fmt.Fprint(p.w, ".")
	}
}

// done emits the completion label and deactivates p.
// It is safe to call done more than once, e.g. explicitly and via defer.
func (p *progress) done() {
	if !p.active {
		return
	}

	p.active = false
	fmt.Fprintln(p.w, "OK")
}
