// Package taskwait blocks until an externally managed task reaches a terminal
// status, optionally streaming the task's log output or a simple progress
// indicator while it waits.
//
// A task moves through two phases, waiting and running, each defined by a
// fixed set of status strings, and is finished the moment its status falls in
// neither set. The engine polls the task's status at a configurable interval,
// tails new log lines as they appear and enforces an optional overall timeout.
package taskwait

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/icinga/icinga-go-library/logging"
	"github.com/icinga/icinga-go-library/periodic"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrTimeout is returned by Wait if the task does not reach a terminal status
// before the configured timeout expires.
var ErrTimeout = errors.New("timed out waiting for task")

// heartbeatInterval is how often a configured logger reports on a wait still
// in progress. Purely diagnostic, independent of the poll cadence.
const heartbeatInterval = 30 * time.Second

// Option is a functional option for Wait.
type Option func(options *waitOptions)

// waitOptions stores options for Wait.
type waitOptions struct {
	showLog  bool
	progress bool
	poll     time.Duration
	timeout  time.Duration
	output   io.Writer
	logger   *logging.Logger
}

// newWaitOptions returns a new waitOptions initialized with the given options.
func newWaitOptions(options ...Option) *waitOptions {
	waitOpts := &waitOptions{
		showLog:  true,
		progress: true,
		poll:     time.Second,
		output:   os.Stdout,
	}

	for _, option := range options {
		option(waitOpts)
	}

	return waitOpts
}

// WithoutLog disables streaming of task logs.
func WithoutLog() Option {
	return func(options *waitOptions) {
		options.showLog = false
	}
}

// WithoutProgress disables the progress indicator. The indicator is also
// suppressed automatically whenever task logs are streamed, as interleaving
// dots with log lines would garble both.
func WithoutProgress() Option {
	return func(options *waitOptions) {
		options.progress = false
	}
}

// WithPoll sets the minimum interval between consecutive status polls.
// Zero polls as fast as possible without ever sleeping intentionally.
// The default is one second.
func WithPoll(poll time.Duration) Option {
	return func(options *waitOptions) {
		options.poll = poll
	}
}

// WithTimeout sets the time after which Wait gives up with ErrTimeout.
// Zero, the default, waits forever.
func WithTimeout(timeout time.Duration) Option {
	return func(options *waitOptions) {
		options.timeout = timeout
	}
}

// WithOutput redirects progress and log output, which goes to standard output
// by default.
func WithOutput(w io.Writer) Option {
	return func(options *waitOptions) {
		options.output = w
	}
}

// WithLogger enables diagnostic logging, including a periodic heartbeat while
// the wait is in progress.
func WithLogger(logger *logging.Logger) Option {
	return func(options *waitOptions) {
		options.logger = logger
	}
}

// session holds the state of a single wait: the effective display flags, the
// pacing bookkeeping and the log cursor. It is created by Wait, mutated only
// by the poll loop and discarded once the Result is produced.
type session struct {
	task     Task
	showLog  bool
	progress bool
	poll     time.Duration
	output   io.Writer

	status   string
	skip     int
	start    time.Time
	lastPoll time.Time
	deadline time.Time
}

// Wait blocks until task reaches a terminal status, i.e. one in neither its
// waiting nor its running status set, and returns the final status together
// with the start and end time of the wait.
//
// Wait occupies the calling goroutine for the whole duration. Errors from the
// task's Status and Log methods abort the wait and are propagated unretried,
// as is ErrTimeout once the configured timeout has expired.
func Wait(ctx context.Context, task Task, options ...Option) (Result, error) {
	opts := newWaitOptions(options...)

	s := &session{
		task:    task,
		showLog: opts.showLog && task.HasLog(),
		poll:    opts.poll,
		output:  opts.output,
		start:   time.Now(),
	}
	s.progress = opts.progress && !s.showLog

	if opts.timeout > 0 {
		s.deadline = s.start.Add(opts.timeout)
	}

	if opts.logger != nil {
		opts.logger.Debugw("Waiting for task to finish",
			zap.Duration("poll", opts.poll),
			zap.Duration("timeout", opts.timeout),
			zap.Bool("show_log", s.showLog))

		defer periodic.Start(ctx, heartbeatInterval, func(tick periodic.Tick) {
			opts.logger.Debugf("Still waiting for task to reach a terminal status (%s elapsed)", tick.Elapsed)
		}).Stop()
	}

	status, err := task.Status(ctx)
	if err != nil {
		return Result{}, errors.Wrap(err, "can't query initial task status")
	}
	s.status = status

	if err := s.waitToStart(ctx); err != nil {
		return Result{}, err
	}

	if err := s.waitToFinish(ctx); err != nil {
		return Result{}, err
	}

	return Result{Status: s.status, Start: s.start, End: time.Now()}, nil
}

// waitToStart polls until the task's status leaves the waiting set.
// Logs are not tailed yet; whatever the log contains before the task runs is
// not considered meaningful output.
func (s *session) waitToStart(ctx context.Context) error {
	p := newProgress(s.output, "Waiting", s.progress)
	defer p.done()

	waiting := s.task.StatusWaiting()
	for waiting.Contains(s.status) {
		p.tick()

		if err := s.pollStatus(ctx); err != nil {
			return err
		}
	}

	return nil
}

// waitToFinish polls until the task's status leaves the running set, tailing
// new log lines after every poll. A final tail after the loop catches lines
// produced between the last poll and task completion.
func (s *session) waitToFinish(ctx context.Context) error {
	p := newProgress(s.output, "Running", s.progress)
	defer p.done()

	running := s.task.StatusRunning()
	for running.Contains(s.status) {
		p.tick()

		if err := s.showNewLog(ctx); err != nil {
			return err
		}

		if err := s.pollStatus(ctx); err != nil {
			return err
		}
	}

	p.done()

	return s.showNewLog(ctx)
}

// pollStatus queries the task's status once, paced against the previous poll.
func (s *session) pollStatus(ctx context.Context) error {
	last, err := pace(ctx, s.lastPoll, s.poll, s.deadline)
	if err != nil {
		return err
	}
	s.lastPoll = last

	status, err := s.task.Status(ctx)
	if err != nil {
		return errors.Wrap(err, "can't query task status")
	}
	s.status = status

	return nil
}

// showNewLog fetches the task's log and emits the lines not shown yet.
func (s *session) showNewLog(ctx context.Context) error {
	if !s.showLog {
		return nil
	}

	lines, err := s.task.Log(ctx)
	if err != nil {
		return errors.Wrap(err, "can't fetch task log")
	}

	s.skip = tailLog(s.output, s.skip, lines)

	return nil
}

// pace spaces consecutive status polls at least poll apart. On the first call,
// i.e. with a zero prev, it returns immediately without sleeping. On
// subsequent calls it first fails with ErrTimeout if the deadline has passed,
// a zero deadline never expires, then sleeps for whatever remains of the poll
// interval since prev. It returns the new poll timestamp, taken after the
// sleep, if any, completed.
func pace(ctx context.Context, prev time.Time, poll time.Duration, deadline time.Time) (time.Time, error) {
	now := time.Now()

	if prev.IsZero() {
		return now, nil
	}

	if !deadline.IsZero() && now.After(deadline) {
		return time.Time{}, errors.WithStack(ErrTimeout)
	}

	if remaining := poll - now.Sub(prev); remaining > 0 {
		if err := sleep(ctx, remaining); err != nil {
			return time.Time{}, err
		}

		return time.Now(), nil
	}

	return now, nil
}

// sleep blocks for the given duration or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait interrupted")
	}
}

// tailLog writes the log lines after the skip cursor to w, one per line, and
// returns the new cursor. A nil log or one that has not grown past skip,
// which also covers a transiently shrunken log, produces no output and leaves
// the cursor unchanged. Each line is thus emitted exactly once, in order.
func tailLog(w io.Writer, skip int, lines []string) int {
	if len(lines) <= skip {
		return skip
	}

	for _, line := range lines[skip:] {
		fmt.Fprintln(w, line)
	}

	return len(lines)
}
