package remote

import (
	"net/url"

	"github.com/pkg/errors"
)

// Config defines a remote task endpoint.
type Config struct {
	// Url serves the current task status as JSON.
	Url string `yaml:"url"`
	// LogUrl serves the task log as plain text, one line per log entry.
	// If empty, the task is assumed to produce no logs.
	LogUrl   string `yaml:"log_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Insecure bool   `yaml:"insecure"`

	// StatusWaiting and StatusRunning classify the endpoint's status
	// vocabulary; any other status is terminal.
	StatusWaiting []string `yaml:"status_waiting" default:"[\"created\",\"submitted\"]"`
	StatusRunning []string `yaml:"status_running" default:"[\"running\",\"finishing\"]"`
}

// Validate checks constraints in the supplied remote task configuration and
// returns an error if they are violated.
func (c *Config) Validate() error {
	if c.Url == "" {
		return errors.New("remote task 'url' must be provided")
	}
	if _, err := url.Parse(c.Url); err != nil {
		return errors.Wrapf(err, "cannot parse remote task URL: %q", c.Url)
	}

	if c.LogUrl != "" {
		if _, err := url.Parse(c.LogUrl); err != nil {
			return errors.Wrapf(err, "cannot parse remote task log URL: %q", c.LogUrl)
		}
	}

	if (c.Username == "") != (c.Password == "") {
		return errors.New("'username' must be set, if password is provided and vice versa")
	}

	if len(c.StatusWaiting) == 0 {
		return errors.New("at least one waiting status must be configured")
	}
	if len(c.StatusRunning) == 0 {
		return errors.New("at least one running status must be configured")
	}

	return nil
}
