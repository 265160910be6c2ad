// Package execwatch implements a pollable task backed by a local process.
//
// The process's lifecycle is mapped onto the usual status vocabulary: a task
// is "created" until its process has been started, "running" while the process
// is alive and ends in "succeeded" or "failed" depending on the exit code.
// Everything the process writes to stdout or stderr becomes the task log.
package execwatch

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/pkg/errors"
	"github.com/taskwait/taskwait/pkg/taskwait"
	"golang.org/x/sync/errgroup"
)

const (
	StatusCreated   = "created"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Task runs a command and exposes its lifecycle and output as a pollable task.
// Status and log queries are cheap in-memory reads; the process output is
// collected by a background goroutine as it is produced.
type Task struct {
	cmd *exec.Cmd

	mu     sync.Mutex
	status string
	lines  []string
}

// NewTask returns a new Task for the given command. The command is not started
// yet; the task reports the "created" status until Start is called.
func NewTask(ctx context.Context, name string, args ...string) *Task {
	return &Task{
		cmd:    exec.CommandContext(ctx, name, args...),
		status: StatusCreated,
	}
}

// Start launches the process and the output collector.
// The terminal status only becomes visible once the collector has drained the
// process output, so a final log tail never misses trailing lines.
func (t *Task) Start() error {
	pr, pw := io.Pipe()
	t.cmd.Stdout = pw
	t.cmd.Stderr = pw

	if err := t.cmd.Start(); err != nil {
		return errors.Wrapf(err, "can't start command %q", t.cmd.Path)
	}

	t.setStatus(StatusRunning)

	g := errgroup.Group{}
	g.Go(func() error {
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			t.appendLine(scanner.Text())
		}

		return scanner.Err()
	})

	go func() {
		err := t.cmd.Wait()
		_ = pw.Close()
		_ = g.Wait()

		if err != nil {
			t.setStatus(StatusFailed)
		} else {
			t.setStatus(StatusSucceeded)
		}
	}()

	return nil
}

// Status returns the current lifecycle status of the process.
func (t *Task) Status(context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status, nil
}

// Log returns everything the process has written so far, line by line.
func (t *Task) Log(context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.lines) == 0 {
		return nil, nil
	}

	lines := make([]string, len(t.lines))
	copy(lines, t.lines)

	return lines, nil
}

// HasLog reports true; any process may produce output.
func (t *Task) HasLog() bool {
	return true
}

func (t *Task) StatusWaiting() taskwait.StatusSet {
	return taskwait.NewStatusSet(StatusCreated)
}

func (t *Task) StatusRunning() taskwait.StatusSet {
	return taskwait.NewStatusSet(StatusRunning)
}

func (t *Task) setStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
}

func (t *Task) appendLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lines = append(t.lines, line)
}
