package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/aethersync/cmd/util"
	"github.com/sidkik/aethersync/pkg/config"
	"github.com/sidkik/aethersync/pkg/errors"
)

// Mocked for unit testing.
var (
	stdout              io.Writer = os.Stdout
	stdin               io.Reader = os.Stdin
	guessDefaults                 = guessDefaultsImpl
	parseUserConfig               = config.ParseUser
	writeUserConfig               = config.WriteUser
	stat                          = os.Stat
	getWorkingDirectory           = os.Getwd
)

// New creates a new `config` command.
func New() *cobra.Command {
	var cliOpts config.User
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Setup the default sync directories",
		Run: func(_ *cobra.Command, _ []string) {
			if err := SetupConfig(cliOpts); err != nil {
				err = errors.NewFriendlyError("Failed to setup configuration:\n%s", err)
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().StringVar(&cliOpts.WatchPath, "watch", "",
		"Set the directory to watch for changes. "+
			"Optional: If not set, `aethersync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.TargetPath, "target", "",
		"Set the directory that changed files are copied to. "+
			"Optional: If not set, `aethersync config` will interactively prompt.")
	cmd.Flags().StringVar(&cliOpts.PollInterval, "poll-interval", "",
		"Set the longest time a stopped sync takes to shut down. "+
			"Optional: If not set, `aethersync config` will interactively prompt.")

	// Setup the commands for querying the contents of the user config.
	type getterSpec struct {
		use, short string
		fn         func(config.User) string
	}

	getters := []getterSpec{
		{
			use:   "get-watch",
			short: "Get the configured watch directory",
			fn:    func(cfg config.User) string { return cfg.WatchPath },
		},
		{
			use:   "get-target",
			short: "Get the configured target directory",
			fn:    func(cfg config.User) string { return cfg.TargetPath },
		},
	}
	for _, getter := range getters {
		getter := getter
		cmd.AddCommand(&cobra.Command{
			Use:   getter.use,
			Short: getter.short,
			Run: func(_ *cobra.Command, _ []string) {
				cfg, err := parseUserConfig()
				if err != nil {
					err = errors.WithContext(err, "read config")
					util.HandleFatalError(err)
				}

				fmt.Fprintln(stdout, getter.fn(cfg))
			},
		})
	}

	return cmd
}

// SetupConfig prompts for any settings not in `cliOpts`, and writes the
// result to the user config.
func SetupConfig(cliOpts config.User) error {
	cfg, err := generateConfig(cliOpts)
	if err != nil {
		return errors.WithContext(err, "generate config")
	}

	// Relative paths in the config file are resolved against the config's
	// directory, so store absolute paths.
	wd, err := getWorkingDirectory()
	if err != nil {
		return errors.WithContext(err, "get working directory")
	}
	for _, field := range []*string{&cfg.WatchPath, &cfg.TargetPath} {
		if *field, err = config.ExpandPath(*field, wd); err != nil {
			return errors.WithContext(err, "expand path")
		}
	}

	if err := writeUserConfig(cfg); err != nil {
		return errors.WithContext(err, "write config")
	}

	path, err := config.GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "get user config path")
	}

	fmt.Fprintf(stdout, "Wrote config to %s\n", path)
	return nil
}

func watchPathValidationFn(path string) (string, bool) {
	if path == "" {
		return "The watch directory is required.", false
	}

	expanded, err := config.ExpandPath(path, ".")
	if err != nil {
		return fmt.Sprintf("Failed to expand %q: %s", path, err), false
	}

	fi, err := stat(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("%q doesn't exist. Please pick another directory.", path), false
		}
		return fmt.Sprintf("Failed to access %q: %s", path, err), false
	}

	if !fi.IsDir() {
		return fmt.Sprintf("%q is not a directory. Please pick another directory.", path), false
	}
	return "", true
}

func targetPathValidationFn(path string) (string, bool) {
	if path == "" {
		return "The target directory is required.", false
	}
	return "", true
}

func pollIntervalValidationFn(interval string) (string, bool) {
	if _, err := (config.User{PollInterval: interval}).GetPollInterval(); err != nil {
		return "The poll interval must be a positive duration, such as `1s` or `500ms`.", false
	}
	return "", true
}

type prompt struct {
	helpString, prompt, defaultAnswer, currAnswer string
	field                                         *string
	validationFn                                  func(string) (string, bool)
}

// generateConfig interacts with the user to decide what the user's desired
// configuration is.
// It makes best guesses at reasonable defaults, and allows users to explicitly
// override them if desired.
func generateConfig(cliOpts config.User) (config.User, error) {
	defaults := guessDefaults()
	currConfig, err := parseUserConfig()
	if err != nil {
		currConfig = config.User{}
		log.WithError(err).Debug("Failed to read current config")
	}

	cfg := cliOpts
	var prompts []prompt
	if cliOpts.WatchPath == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory to watch for changes.\n" +
				"New and modified files anywhere within it are copied to the target directory.\n" +
				"It defaults to the current directory.",
			prompt:        "Watch directory",
			defaultAnswer: defaults.WatchPath,
			currAnswer:    currConfig.WatchPath,
			field:         &cfg.WatchPath,
			validationFn:  watchPathValidationFn,
		})
	}

	if cliOpts.TargetPath == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter the directory to copy files into.\n" +
				"It's created if it doesn't exist. Subdirectories aren't recreated, " +
				"so files with the same name overwrite each other.",
			prompt:        "Target directory",
			defaultAnswer: defaults.TargetPath,
			currAnswer:    currConfig.TargetPath,
			field:         &cfg.TargetPath,
			validationFn:  targetPathValidationFn,
		})
	}

	if cliOpts.PollInterval == "" {
		prompts = append(prompts, prompt{
			helpString: "Enter how often to check whether the sync was stopped.\n" +
				"Stopping a sync takes at most this long.",
			prompt:        "Poll interval",
			defaultAnswer: defaults.PollInterval,
			currAnswer:    currConfig.PollInterval,
			field:         &cfg.PollInterval,
			validationFn:  pollIntervalValidationFn,
		})
	}

	for _, prompt := range prompts {
		var resp string
		for {
			resp, err = promptUser(prompt.helpString, prompt.prompt,
				prompt.defaultAnswer, prompt.currAnswer)
			if err != nil {
				return config.User{}, errors.WithContext(err, "read response")
			}

			if prompt.validationFn == nil {
				break
			}

			validationErr, ok := prompt.validationFn(resp)
			if ok {
				break
			}

			fmt.Fprintln(stdout, validationErr)
		}

		*prompt.field = resp
	}

	return cfg, nil
}

// guessDefaults tries to guess reasonable defaults for the fields in the user
// config.
func guessDefaultsImpl() (cfg config.User) {
	if currDir, err := getWorkingDirectory(); err == nil {
		cfg.WatchPath = currDir
	} else {
		log.WithError(err).Info("Failed to guess watch directory")
	}

	cfg.PollInterval = "1s"
	return cfg
}

func promptUser(helpString, prompt, defaultAnswer, currAnswer string) (string, error) {
	// Display a new line at the end to separate different fields to make it
	// look clearer.
	defer fmt.Fprintln(stdout)

	options := []string{}
	if defaultAnswer != "" {
		options = append(options, defaultAnswer)
	}
	if currAnswer != "" && currAnswer != defaultAnswer {
		options = append(options, currAnswer)
	}
	options = append(options, "(Enter manually)")

	fmt.Fprintln(stdout, helpString+"\n"+prompt+":")

	stdinReader := bufio.NewReader(stdin)

	if nOptions := len(options); nOptions > 1 {
		// defaultAnswer or currAnswer exists.
		fmt.Fprintln(stdout)
		for i, option := range options {
			if i == 0 {
				option = fmt.Sprintf("%s (recommended)", option)
			}
			fmt.Fprintf(stdout, "\t%d. %s\n", i+1, option)
		}
		fmt.Fprintln(stdout)

		for {
			fmt.Fprintf(stdout, "Please choose one [1-%d]: ", nOptions)
			choiceStr, err := stdinReader.ReadString('\n')
			if err != nil {
				return "", err
			}

			var choice int
			choiceStr = strings.TrimRight(choiceStr, "\n")

			// Default to the first choice if user doesn't enter anything.
			if choiceStr == "" {
				choice = 1
			} else {
				choice, err = strconv.Atoi(choiceStr)
				if err != nil || choice < 1 || choice > nOptions {
					// Try again if the input is invalid.
					continue
				}
			}

			if choice == nOptions {
				// Enter manually.
				break
			}

			return options[choice-1], nil
		}
	}

	fmt.Fprint(stdout, "Please enter manually: ")
	resp, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}

	return strings.TrimRight(resp, "\n"), nil
}
