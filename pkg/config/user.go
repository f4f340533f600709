package config

import (
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/aethersync/pkg/errors"
)

const (
	// UserConfigPath is the default path to the aethersync user config.
	UserConfigPath = "~/.aethersync.yaml"

	// InitialUserConfigVersion is the first version of the aethersync
	// user config. Config files that do not specify a version
	// will default to this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the
	// aethersync user config of the current binary.
	SupportedUserConfigVersion = "v1alpha1"
)

// User contains the user's default sync settings.
type User struct {
	Version    string `json:"version,omitempty"`
	WatchPath  string `json:"watchPath,omitempty"`
	TargetPath string `json:"targetPath,omitempty"`

	// PollInterval is a duration string, such as "500ms" or "2s".
	PollInterval string `json:"pollInterval,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// GetPollInterval parses the PollInterval. It returns zero if the interval
// isn't set.
func (u User) GetPollInterval() (time.Duration, error) {
	if u.PollInterval == "" {
		return 0, nil
	}

	interval, err := time.ParseDuration(u.PollInterval)
	if err != nil {
		return 0, errors.WithContext(err, "parse poll interval")
	}

	if interval <= 0 {
		return 0, errors.NewFriendlyError(
			"The poll interval must be positive, but got %q.", u.PollInterval)
	}
	return interval, nil
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser attempts to parse the User stored in the default path. If the
// file doesn't exist, it returns an errors.FileNotFound.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return User{}, err
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if _, err := config.GetPollInterval(); err != nil {
		return User{}, errors.WithContext(err, "validate")
	}

	// Evaluate relative paths relative to the config path.
	for _, field := range []*string{&config.WatchPath, &config.TargetPath} {
		expanded, err := ExpandPath(*field, filepath.Dir(path))
		if err != nil {
			return User{}, errors.WithContext(err, "expand path")
		}
		*field = expanded
	}
	return config, nil
}

// ExpandPath expands `~` in `path`, and makes it absolute relative to
// `relativeTo`. Empty paths are left empty.
func ExpandPath(path, relativeTo string) (string, error) {
	if path == "" {
		return "", nil
	}

	path, err := homedirExpand(path)
	if err != nil {
		return "", err
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(relativeTo, path)
	}
	return filepath.Clean(path), nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, path, yamlBytes, 0644); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// Get the path to the user's global aethersync configuration. This path is
// expanded, so it can be directly passed to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}
