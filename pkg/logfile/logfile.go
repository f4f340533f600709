// Package logfile persists log events as JSON lines, so that a record of
// which files were synced outlives the terminal session.
package logfile

import (
	"os"
	goSync "sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/aethersync/pkg/errors"
	"github.com/sidkik/aethersync/pkg/version"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

var formatter = &logrus.JSONFormatter{
	FieldMap: logrus.FieldMap{
		logrus.FieldKeyTime:  "timestamp",
		logrus.FieldKeyLevel: "status",
		logrus.FieldKeyMsg:   "message",
	},
}

// Hook appends every log entry at or above a level to a file.
type Hook struct {
	levels []logrus.Level
	source string

	lock goSync.Mutex
	file afero.File
}

// NewHook opens `path` for appending, creating it if necessary. Entries
// logged at `minLevel` or more severe are written to it, tagged with
// `source`.
func NewHook(path, source string, minLevel logrus.Level) (*Hook, error) {
	f, err := fs.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.WithContext(err, "open log file")
	}

	var levels []logrus.Level
	for _, level := range logrus.AllLevels {
		if level <= minLevel {
			levels = append(levels, level)
		}
	}
	return &Hook{levels: levels, source: source, file: f}, nil
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook.
func (h *Hook) Fire(entry *logrus.Entry) error {
	data := logrus.Fields{
		"source":  h.source,
		"version": version.Version,
	}
	for k, v := range entry.Data {
		data[k] = v
	}

	// Copy the entry so that the tags don't leak into the other outputs.
	entryCopy := *entry
	entryCopy.Data = data

	jsonBytes, err := formatter.Format(&entryCopy)
	if err != nil {
		return errors.WithContext(err, "format")
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	if _, err := h.file.Write(jsonBytes); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// Close closes the underlying file.
func (h *Hook) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.file.Close()
}
