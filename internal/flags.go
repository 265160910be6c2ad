package internal

import (
	"time"
)

// Flags define CLI flags.
type Flags struct {
	// Config is the path to the config file
	Config string `short:"c" long:"config" description:"path to config file" default:"./config.yml"`
	// Timeout bounds the whole wait; zero waits forever
	Timeout time.Duration `long:"timeout" description:"maximum time to wait for the task before giving up"`
	// Poll is the minimum interval between two status polls
	Poll time.Duration `long:"poll" description:"interval between status polls" default:"1s"`
	// NoLog disables streaming of task logs
	NoLog bool `long:"no-log" description:"do not stream task logs"`
	// Quiet disables the progress indicator
	Quiet bool `long:"quiet" description:"do not show a progress indicator"`
	// Version makes the program print its version and exit
	Version bool `long:"version" description:"print version and exit"`

	// Command, if given, is run and waited on instead of the configured
	// remote task.
	Command struct {
		Args []string `positional-arg-name:"command"`
	} `positional-args:"yes"`
}
