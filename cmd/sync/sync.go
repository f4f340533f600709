package sync

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/buger/goterm"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/aethersync/cmd/util"
	"github.com/sidkik/aethersync/pkg/config"
	"github.com/sidkik/aethersync/pkg/errors"
	engine "github.com/sidkik/aethersync/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	parseUserConfig               = config.ParseUser
	getWorkingDirectory           = os.Getwd
	notifyShutdown                = func(c chan<- os.Signal) {
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	}
)

type options struct {
	watchPath    string
	targetPath   string
	pollInterval time.Duration
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var pollInterval time.Duration
	cmd := &cobra.Command{
		Use:   "sync [watch_path] [target_path]",
		Short: "Copy new and modified files into a target directory",
		Long: `Watch a directory tree, and copy every file that's created or modified
within it into the target directory. Files are copied into the root of the
target directory, regardless of how deeply they're nested in the watch
directory. Deletions aren't copied.

The paths default to the ones saved by "aethersync config".`,
		Args: cobra.MaximumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			opts, err := resolveOptions(args, pollInterval)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := run(opts); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0,
		"The longest time a stopped sync takes to shut down. "+
			"Defaults to the configured interval, or 1s.")
	return cmd
}

// resolveOptions merges the command line arguments with the user config.
// Arguments take precedence.
func resolveOptions(args []string, pollInterval time.Duration) (options, error) {
	userConfig, err := parseUserConfig()
	if err != nil {
		if _, ok := errors.RootCause(err).(errors.FileNotFound); !ok {
			return options{}, errors.WithContext(err, "parse user config")
		}
		log.WithError(err).Debug("No user config. Only using command line arguments.")
	}

	wd, err := getWorkingDirectory()
	if err != nil {
		return options{}, errors.WithContext(err, "get working directory")
	}

	opts := options{
		watchPath:  userConfig.WatchPath,
		targetPath: userConfig.TargetPath,
	}
	for i, field := range []*string{&opts.watchPath, &opts.targetPath} {
		if i >= len(args) {
			break
		}

		if *field, err = config.ExpandPath(args[i], wd); err != nil {
			return options{}, errors.WithContext(err, "expand path")
		}
	}

	if opts.watchPath == "" {
		return options{}, errors.NewFriendlyError("No watch directory is set.\n" +
			"Pass it as the first argument, or run `aethersync config` to set a default.")
	}
	if opts.targetPath == "" {
		return options{}, errors.NewFriendlyError("No target directory is set.\n" +
			"Pass it as the second argument, or run `aethersync config` to set a default.")
	}

	switch {
	case pollInterval < 0:
		return options{}, errors.NewFriendlyError(
			"The poll interval must be positive, but got %s.", pollInterval)
	case pollInterval > 0:
		opts.pollInterval = pollInterval
	default:
		// ParseUser already rejected invalid intervals.
		opts.pollInterval, _ = userConfig.GetPollInterval()
		if opts.pollInterval == 0 {
			opts.pollInterval = engine.DefaultPollInterval
		}
	}
	return opts, nil
}

func run(opts options) error {
	controller := engine.NewController(log.StandardLogger(),
		engine.WithPollInterval(opts.pollInterval))
	if err := controller.Start(opts.watchPath, opts.targetPath); err != nil {
		if initErr, ok := err.(errors.WatcherInitError); ok {
			if friendlyErr, ok := errors.RootCause(initErr.Err).(errors.FriendlyError); ok {
				return friendlyErr
			}
			return errors.NewFriendlyError("Failed to watch %q for changes:\n%s",
				initErr.Path, initErr.Err)
		}
		return errors.WithContext(err, "start sync")
	}

	fmt.Fprintf(stdout, "%s %s -> %s\n", goterm.Color("Syncing", goterm.GREEN),
		opts.watchPath, opts.targetPath)
	fmt.Fprintln(stdout, "Press Ctrl-C to stop.")

	shutdown := make(chan os.Signal, 1)
	notifyShutdown(shutdown)
	sig := <-shutdown
	log.WithField("signal", sig).Debug("Received shutdown signal")

	if err := controller.Stop(); err != nil {
		return errors.WithContext(err, "stop sync")
	}
	fmt.Fprintln(stdout, goterm.Color("Stopped", goterm.YELLOW))
	return nil
}
