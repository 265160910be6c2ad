package internal

import (
	"os"
	"path/filepath"
	"testing"
)

const testConfig = `
logging:
  level: debug
  output: console

remote:
  url: http://localhost:8080/tasks/42/status
  log_url: http://localhost:8080/tasks/42/log

history:
  host: localhost
  user: taskwait
  password: secret
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	file := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(file, []byte(content), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	return file
}

func TestFromYAMLFile(t *testing.T) {
	c, err := FromYAMLFile(writeConfig(t, testConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := "http://localhost:8080/tasks/42/status"; c.Remote.Url != want {
		t.Errorf("got remote url %q, wanted %q", c.Remote.Url, want)
	}

	// Defaults from struct tags must be applied to absent keys.
	if len(c.Remote.StatusWaiting) == 0 || c.Remote.StatusWaiting[0] != "created" {
		t.Errorf("got waiting statuses %q, wanted the defaults", c.Remote.StatusWaiting)
	}
	if want := "taskwait"; c.History.Database != want {
		t.Errorf("got history database %q, wanted default %q", c.History.Database, want)
	}
	if !c.History.Enabled() {
		t.Error("got disabled history for a configured host")
	}
}

func TestFromYAMLFileWithoutRemote(t *testing.T) {
	// Waiting on a local command needs no remote section.
	c, err := FromYAMLFile(writeConfig(t, "logging:\n  output: console\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.Remote.Url != "" {
		t.Errorf("got remote url %q, wanted none", c.Remote.Url)
	}
	if c.History.Enabled() {
		t.Error("got enabled history without a configured host")
	}
}

func TestFromYAMLFileInvalid(t *testing.T) {
	// A remote section without a URL for its waiting statuses is rejected.
	if _, err := FromYAMLFile(writeConfig(t, "remote:\n  username: op\n  password: secret\n  url: http://localhost\n  status_waiting: []\n")); err == nil {
		t.Error("got no error for an invalid configuration")
	}

	if _, err := FromYAMLFile(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("got no error for a missing file")
	}
}
