package errors

import (
	"fmt"
)

var (
	// ErrAlreadyRunning is returned when a sync is started while another
	// sync session is active.
	ErrAlreadyRunning = New("Sync already running")

	// ErrNotRunning is returned when a sync is stopped while no session is
	// active.
	ErrNotRunning = New("Sync is not running")
)

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// WatcherInitError represents a failure to subscribe to filesystem changes
// under Path. The message is the message of the underlying error so that it
// can be shown to the host unchanged.
type WatcherInitError struct {
	Path string
	Err  error
}

func (err WatcherInitError) Error() string {
	return err.Err.Error()
}

func (err WatcherInitError) Unwrap() error {
	return err.Err
}

// ReplicationError represents a failure to copy a single file into the
// target directory. These are logged by the sync worker and never returned
// to the host.
type ReplicationError struct {
	Path string
	Err  error
}

func (err ReplicationError) Error() string {
	return fmt.Sprintf("replicate %q: %s", err.Path, err.Err)
}

func (err ReplicationError) Unwrap() error {
	return err.Err
}
