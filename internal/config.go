package internal

import (
	"os"

	"github.com/creasty/defaults"
	"github.com/goccy/go-yaml"
	"github.com/icinga/icinga-go-library/logging"
	"github.com/pkg/errors"
	"github.com/taskwait/taskwait/pkg/history"
	"github.com/taskwait/taskwait/pkg/remote"
)

// Config defines the taskwait config.
type Config struct {
	Logging logging.Config `yaml:"logging"`
	Remote  remote.Config  `yaml:"remote"`
	History history.Config `yaml:"history"`
}

// Validate checks constraints in the supplied configuration and returns an error if they are violated.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return err
	}

	// The remote task section is optional; waiting on a local command
	// needs none.
	if c.Remote.Url != "" {
		if err := c.Remote.Validate(); err != nil {
			return err
		}
	}

	return c.History.Validate()
}

// FromYAMLFile parses the given YAML file into a Config with defaults applied
// and validates it.
func FromYAMLFile(file string) (*Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, errors.Wrap(err, "can't open YAML file "+file)
	}
	defer f.Close()

	c := &Config{}
	decoder := yaml.NewDecoder(f)

	if err := defaults.Set(c); err != nil {
		return nil, errors.Wrap(err, "can't set config defaults")
	}

	if err := decoder.Decode(c); err != nil {
		return nil, errors.Wrap(err, "can't parse YAML file "+file)
	}

	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return c, nil
}
