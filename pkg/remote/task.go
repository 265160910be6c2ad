// Package remote implements a pollable task backed by an HTTP endpoint.
//
// The endpoint contract is deliberately small: one URL answering GET with a
// JSON document carrying the current status, and an optional second URL
// answering GET with the task log as newline-delimited plain text. Transient
// transport failures are retried with exponential backoff before they are
// reported, so that a brief network hiccup does not abort a long wait.
package remote

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/icinga/icinga-go-library/backoff"
	"github.com/icinga/icinga-go-library/logging"
	"github.com/icinga/icinga-go-library/retry"
	"github.com/pkg/errors"
	"github.com/taskwait/taskwait/pkg/taskwait"
	"go.uber.org/zap"
)

// retryTimeout caps how long a single status or log query is retried
// before its last error is propagated.
const retryTimeout = time.Minute

// Task polls an HTTP endpoint for the status and log of a remote task.
type Task struct {
	client    http.Client
	statusUrl string
	logUrl    string
	waiting   taskwait.StatusSet
	running   taskwait.StatusSet
	logger    *logging.Logger
}

// NewTaskFromConfig returns a new Task for the endpoint described by c.
func NewTaskFromConfig(c *Config, logger *logging.Logger) (*Task, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid remote task configuration")
	}

	return &Task{
		client: http.Client{
			Transport: &basicAuthTransport{
				RoundTripper: http.DefaultTransport,
				username:     c.Username,
				password:     c.Password,
				insecure:     c.Insecure,
			},
		},
		statusUrl: c.Url,
		logUrl:    c.LogUrl,
		waiting:   taskwait.NewStatusSet(c.StatusWaiting...),
		running:   taskwait.NewStatusSet(c.StatusRunning...),
		logger:    logger,
	}, nil
}

// statusResponse is the JSON document served by the status URL.
type statusResponse struct {
	Status string `json:"status"`
}

// Status queries the endpoint for the current task status.
func (t *Task) Status(ctx context.Context) (string, error) {
	var status string

	err := retry.WithBackoff(
		ctx,
		func(ctx context.Context) (err error) {
			status, err = t.fetchStatus(ctx)

			return
		},
		retry.Retryable,
		backoff.NewExponentialWithJitter(128*time.Millisecond, 3*time.Second),
		retry.Settings{
			Timeout: retryTimeout,
			OnRetryableError: func(_ time.Duration, _ uint64, err, lastErr error) {
				if lastErr == nil || err.Error() != lastErr.Error() {
					t.logger.Warnw("Can't query task status. Retrying", zap.Error(err))
				}
			},
			OnSuccess: func(elapsed time.Duration, attempt uint64, lastErr error) {
				if attempt > 1 {
					t.logger.Infow("Status query retried successfully after error",
						zap.Duration("after", elapsed),
						zap.Uint64("attempts", attempt),
						zap.NamedError("recovered_error", lastErr))
				}
			},
		},
	)

	return status, err
}

func (t *Task) fetchStatus(ctx context.Context) (string, error) {
	body, err := t.get(ctx, t.statusUrl)
	if err != nil {
		return "", err
	}

	var res statusResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return "", errors.Wrap(err, "can't unmarshal task status")
	}
	if res.Status == "" {
		return "", errors.New("task status document carries no status")
	}

	return res.Status, nil
}

// Log fetches the task log and splits it into lines.
// A log resource answering 404 counts as no log produced yet.
func (t *Task) Log(ctx context.Context) ([]string, error) {
	body, err := t.get(ctx, t.logUrl)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, nil
		}

		return nil, err
	}

	log := strings.TrimSuffix(string(body), "\n")
	if log == "" {
		return nil, nil
	}

	return strings.Split(log, "\n"), nil
}

// HasLog reports whether a log URL is configured for this task.
func (t *Task) HasLog() bool {
	return t.logUrl != ""
}

func (t *Task) StatusWaiting() taskwait.StatusSet {
	return t.waiting
}

func (t *Task) StatusRunning() taskwait.StatusSet {
	return t.running
}

// errNotFound marks a resource the endpoint does not serve (yet).
var errNotFound = errors.New("resource not found")

func (t *Task) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create task http request")
	}

	res, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "cannot query task endpoint")
	}

	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode == http.StatusNotFound {
		return nil, errors.WithStack(errNotFound)
	}
	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("received unexpected http status code from task endpoint: %d", res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read task endpoint response")
	}

	return body, nil
}

// basicAuthTransport is a http.RoundTripper that authenticates all requests
// using HTTP Basic Authentication.
type basicAuthTransport struct {
	http.RoundTripper
	username string
	password string
	insecure bool
}

// RoundTrip executes a single HTTP transaction with the basic auth credentials.
func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.username != "" {
		req.SetBasicAuth(t.username, t.password)
	}

	rt := t.RoundTripper
	if rt == nil {
		rt = http.DefaultTransport
	}

	if t.insecure {
		if transport, ok := rt.(*http.Transport); ok {
			transportCopy := transport.Clone()
			// #nosec G402 -- TLS certificate verification is intentionally configurable via YAML config.
			transportCopy.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			rt = transportCopy
		}
	}

	return rt.RoundTrip(req)
}
