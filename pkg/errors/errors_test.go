package errors

import (
	goErrors "errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithContext(t *testing.T) {
	err := WithContext(WithContext(os.ErrNotExist, "open"), "copy")
	assert.Equal(t, "copy: open: file does not exist", err.Error())
	assert.Equal(t, os.ErrNotExist, RootCause(err))
	assert.True(t, goErrors.Is(err, os.ErrNotExist))

	// Errors without context are their own root cause.
	assert.Equal(t, ErrNotRunning, RootCause(ErrNotRunning))
}

func TestFriendlyError(t *testing.T) {
	err := NewFriendlyError("%q doesn't exist.\n\nIs %s correct?", "/src", "the config")
	friendly, ok := RootCause(WithContext(err, "start")).(FriendlyError)
	assert.True(t, ok)
	assert.Equal(t, "\"/src\" doesn't exist.\n\nIs the config correct?", friendly.FriendlyMessage())
}

func TestLifecycleErrorMessages(t *testing.T) {
	assert.Equal(t, "Sync already running", ErrAlreadyRunning.Error())
	assert.Equal(t, "Sync is not running", ErrNotRunning.Error())

	initErr := WatcherInitError{
		Path: "/missing",
		Err:  WithContext(FileNotFound{Path: "/missing"}, "stat"),
	}
	assert.Equal(t, "stat: \"/missing\" does not exist", initErr.Error())
	assert.Equal(t, FileNotFound{Path: "/missing"}, RootCause(goErrors.Unwrap(initErr)))

	replErr := ReplicationError{Path: "/src/a.txt", Err: WithContext(os.ErrPermission, "open source")}
	assert.Equal(t, "replicate \"/src/a.txt\": open source: permission denied", replErr.Error())
	assert.True(t, goErrors.Is(replErr, os.ErrPermission))
}
