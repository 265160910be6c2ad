package history

import (
	"time"

	"github.com/pkg/errors"
)

// Config defines the database recording finished waits.
// An empty host leaves history recording disabled.
type Config struct {
	// Type is the database type, either "mysql" or "pgsql".
	Type     string `yaml:"type" default:"mysql"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database" default:"taskwait"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Retention is how long finished waits are kept before the periodic
	// cleanup removes them.
	Retention time.Duration `yaml:"retention" default:"720h"`
}

// Enabled reports whether history recording is configured at all.
func (c *Config) Enabled() bool {
	return c.Host != ""
}

// Validate checks constraints in the supplied history configuration and
// returns an error if they are violated.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}

	if c.Type != "mysql" && c.Type != "pgsql" {
		return unknownDbType(c.Type)
	}

	if c.Database == "" {
		return errors.New("history 'database' must be provided")
	}
	if c.User == "" {
		return errors.New("history 'user' must be provided")
	}

	if c.Retention < 0 {
		return errors.New("history 'retention' cannot be negative")
	}

	return nil
}

func unknownDbType(t string) error {
	return errors.Errorf(`unknown database type %q, must be one of: "mysql", "pgsql"`, t)
}
