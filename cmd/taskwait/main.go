package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/icinga/icinga-go-library/logging"
	goflags "github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/taskwait/taskwait/internal"
	"github.com/taskwait/taskwait/pkg/execwatch"
	"github.com/taskwait/taskwait/pkg/history"
	"github.com/taskwait/taskwait/pkg/remote"
	"github.com/taskwait/taskwait/pkg/taskwait"
	"go.uber.org/zap"
)

// Exit code if the task did not reach a terminal status in time,
// mirroring timeout(1).
const exitTimeout = 124

func main() {
	var flags internal.Flags

	parser := goflags.NewParser(&flags, goflags.Default)
	parser.Usage = "[OPTIONS] [-- command [args...]]"
	if _, err := parser.Parse(); err != nil {
		var flagsErr *goflags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == goflags.ErrHelp {
			return
		}

		os.Exit(2)
	}

	if flags.Version {
		internal.Version.Print()
		return
	}

	cfg, err := internal.FromYAMLFile(flags.Config)
	if err != nil {
		logging.Fatal(errors.Wrap(err, "can't load configuration"))
	}

	logs, err := logging.NewLoggingFromConfig("taskwait", cfg.Logging)
	if err != nil {
		logging.Fatal(errors.Wrap(err, "can't configure logging"))
	}

	logger := logs.GetLogger()
	logger.Infof("Starting %s", internal.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var task taskwait.Task
	var taskName string

	if args := flags.Command.Args; len(args) > 0 {
		t := execwatch.NewTask(ctx, args[0], args[1:]...)
		if err := t.Start(); err != nil {
			logging.Fatal(errors.Wrap(err, "can't start command"))
		}

		task = t
		taskName = strings.Join(args, " ")
	} else if cfg.Remote.Url != "" {
		t, err := remote.NewTaskFromConfig(&cfg.Remote, logs.GetChildLogger("remote"))
		if err != nil {
			logging.Fatal(errors.Wrap(err, "can't set up remote task"))
		}

		task = t
		taskName = cfg.Remote.Url
	} else {
		logging.Fatal(errors.New("nothing to wait on: no command given and no remote task configured"))
	}

	waitOptions := []taskwait.Option{
		taskwait.WithPoll(flags.Poll),
		taskwait.WithLogger(logs.GetChildLogger("wait")),
	}
	if flags.Timeout > 0 {
		waitOptions = append(waitOptions, taskwait.WithTimeout(flags.Timeout))
	}
	if flags.NoLog {
		waitOptions = append(waitOptions, taskwait.WithoutLog())
	}
	if flags.Quiet {
		waitOptions = append(waitOptions, taskwait.WithoutProgress())
	}

	result, err := taskwait.Wait(ctx, task, waitOptions...)
	if err != nil {
		if errors.Is(err, taskwait.ErrTimeout) {
			logger.Errorw("Task did not reach a terminal status in time",
				zap.Duration("timeout", flags.Timeout))
			os.Exit(exitTimeout)
		}

		logging.Fatal(errors.Wrap(err, "can't wait for task"))
	}

	logger.Infow("Task finished",
		zap.String("status", result.Status),
		zap.Duration("duration", result.Elapsed()))

	if cfg.History.Enabled() {
		store, err := history.NewStoreFromConfig(&cfg.History, logs.GetChildLogger("history"))
		if err != nil {
			logging.Fatal(errors.Wrap(err, "can't connect to history database"))
		}
		defer func() { _ = store.Close() }()

		if err := store.Setup(ctx); err != nil {
			logging.Fatal(err)
		}

		if err := store.Insert(ctx, taskName, result); err != nil {
			logger.Errorw("Can't record wait history", zap.Error(err))
		}

		if cfg.History.Retention > 0 {
			if _, err := store.CleanupOlderThan(ctx, time.Now().Add(-cfg.History.Retention)); err != nil {
				logger.Errorw("Can't clean up wait history", zap.Error(err))
			}
		}
	}

	if result.Status == execwatch.StatusFailed {
		os.Exit(1)
	}
}
