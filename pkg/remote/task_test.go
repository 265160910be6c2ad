package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/icinga/icinga-go-library/logging"
	"github.com/taskwait/taskwait/pkg/taskwait"
	"go.uber.org/zap"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(zap.NewNop().Sugar(), time.Second)
}

func testConfig(srv *httptest.Server) *Config {
	return &Config{
		Url:           srv.URL + "/status",
		LogUrl:        srv.URL + "/log",
		StatusWaiting: []string{"created", "submitted"},
		StatusRunning: []string{"running", "finishing"},
	}
}

func TestTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status": "running"}`)
	}))
	defer srv.Close()

	task, err := NewTaskFromConfig(testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := task.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "running" {
		t.Errorf("got status %q, wanted %q", status, "running")
	}
}

func TestTaskStatusRejectsEmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	task, err := NewTaskFromConfig(testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := task.Status(context.Background()); err == nil {
		t.Error("got no error for a status document without a status")
	}
}

func TestTaskBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "operator" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		fmt.Fprint(w, `{"status": "done"}`)
	}))
	defer srv.Close()

	config := testConfig(srv)
	config.Username = "operator"
	config.Password = "secret"

	task, err := NewTaskFromConfig(config, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := task.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != "done" {
		t.Errorf("got status %q, wanted %q", status, "done")
	}
}

type taskLogTest struct {
	name      string
	code      int
	body      string
	wantLines []string
}

var taskLogTests = []taskLogTest{
	{"lines", http.StatusOK, "first\nsecond\n", []string{"first", "second"}},
	{"no-trailing-newline", http.StatusOK, "first\nsecond", []string{"first", "second"}},
	{"empty", http.StatusOK, "", nil},
	{"not-produced-yet", http.StatusNotFound, "", nil},
}

func TestTaskLog(t *testing.T) {
	for _, test := range taskLogTests {
		t.Run(test.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(test.code)
				fmt.Fprint(w, test.body)
			}))
			defer srv.Close()

			task, err := NewTaskFromConfig(testConfig(srv), testLogger())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			lines, err := task.Log(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(lines) != len(test.wantLines) {
				t.Fatalf("got %d lines %q, wanted %d", len(lines), lines, len(test.wantLines))
			}
			for i, line := range lines {
				if line != test.wantLines[i] {
					t.Errorf("got line %d %q, wanted %q", i, line, test.wantLines[i])
				}
			}
		})
	}
}

func TestTaskHasLog(t *testing.T) {
	withLog, err := NewTaskFromConfig(&Config{
		Url:           "http://localhost/status",
		LogUrl:        "http://localhost/log",
		StatusWaiting: []string{"created"},
		StatusRunning: []string{"running"},
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !withLog.HasLog() {
		t.Error("got HasLog false for a task with a log URL")
	}

	withoutLog, err := NewTaskFromConfig(&Config{
		Url:           "http://localhost/status",
		StatusWaiting: []string{"created"},
		StatusRunning: []string{"running"},
	}, testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withoutLog.HasLog() {
		t.Error("got HasLog true for a task without a log URL")
	}
}

// TestWaitOnRemoteTask drives the wait engine against a scripted endpoint:
// the status advances on every query while the log grows by one line per
// running-phase status change.
func TestWaitOnRemoteTask(t *testing.T) {
	statuses := []string{"created", "submitted", "running", "finishing", "done"}
	log := []string{"starting up", "shutting down"}

	var statusCalls, logLines int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			status := statuses[statusCalls]
			if statusCalls < len(statuses)-1 {
				statusCalls++
			}
			if status == "running" || status == "finishing" {
				if logLines < len(log) {
					logLines++
				}
			}
			fmt.Fprintf(w, `{"status": %q}`, status)
		case "/log":
			if logLines == 0 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			for _, line := range log[:logLines] {
				fmt.Fprintln(w, line)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	task, err := NewTaskFromConfig(testConfig(srv), testLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out bytes.Buffer
	result, err := taskwait.Wait(context.Background(), task, taskwait.WithPoll(0), taskwait.WithOutput(&out))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != "done" {
		t.Errorf("got final status %q, wanted %q", result.Status, "done")
	}
	if want := "starting up\nshutting down\n"; out.String() != want {
		t.Errorf("got output %q, wanted %q", out.String(), want)
	}
}

func TestConfigValidate(t *testing.T) {
	configTests := []struct {
		name   string
		config Config
		valid  bool
	}{
		{
			"minimal",
			Config{Url: "http://localhost/status", StatusWaiting: []string{"created"}, StatusRunning: []string{"running"}},
			true,
		},
		{
			"missing-url",
			Config{StatusWaiting: []string{"created"}, StatusRunning: []string{"running"}},
			false,
		},
		{
			"password-without-username",
			Config{Url: "http://localhost", Password: "secret", StatusWaiting: []string{"created"}, StatusRunning: []string{"running"}},
			false,
		},
		{
			"no-waiting-statuses",
			Config{Url: "http://localhost", StatusRunning: []string{"running"}},
			false,
		},
		{
			"no-running-statuses",
			Config{Url: "http://localhost", StatusWaiting: []string{"created"}},
			false,
		},
	}

	for _, test := range configTests {
		t.Run(test.name, func(t *testing.T) {
			err := test.config.Validate()
			if test.valid && err != nil {
				t.Errorf("got error %v for a valid configuration", err)
			}
			if !test.valid && err == nil {
				t.Error("got no error for an invalid configuration")
			}
		})
	}
}
