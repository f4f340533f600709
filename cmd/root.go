package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	configCmd "github.com/sidkik/aethersync/cmd/config"
	syncCmd "github.com/sidkik/aethersync/cmd/sync"
	"github.com/sidkik/aethersync/cmd/util"
	"github.com/sidkik/aethersync/cmd/version"
	"github.com/sidkik/aethersync/pkg/logfile"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "AETHERSYNC_LOG_VERBOSE"

// logFileKey is the environment variable that names a file to append Info
// and above events to, as JSON.
const logFileKey = "AETHERSYNC_LOG_FILE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	if err := newRootCommand().Execute(); err != nil {
		util.HandleFatalError(err)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aethersync",
		Short: "Mirror new and modified files from one directory into another",

		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors:    true,
		PersistentPreRun: setupLogFile,
	}
	rootCmd.AddCommand(
		configCmd.New(),
		syncCmd.New(),
		version.New(),
	)
	return rootCmd
}

func setupLogFile(cmd *cobra.Command, _ []string) {
	path := os.Getenv(logFileKey)
	if path == "" {
		return
	}

	hook, err := logfile.NewHook(path, cmd.CalledAs(), log.InfoLevel)
	if err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to setup log file")
		return
	}
	log.AddHook(hook)
}
