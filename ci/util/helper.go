package util

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"path/filepath"
	goSync "sync"
	"syscall"
	"time"

	"github.com/sidkik/aethersync/pkg/errors"
)

// TestHelper runs the aethersync binary against a scratch directory tree.
type TestHelper struct {
	// Root contains the watch directory, the target directory, and the
	// home directory used by the tested commands.
	Root       string
	WatchPath  string
	TargetPath string
	HomePath   string
}

// NewTestHelper creates the scratch directories.
func NewTestHelper() (*TestHelper, error) {
	root, err := ioutil.TempDir("", "aethersync-ci")
	if err != nil {
		return nil, errors.WithContext(err, "make root")
	}

	helper := &TestHelper{
		Root:       root,
		WatchPath:  filepath.Join(root, "watch"),
		TargetPath: filepath.Join(root, "target"),
		HomePath:   filepath.Join(root, "home"),
	}
	for _, dir := range []string{helper.WatchPath, helper.HomePath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.WithContext(err, "make dir")
		}
	}
	return helper, nil
}

// Cleanup removes the scratch directories.
func (helper *TestHelper) Cleanup() error {
	return os.RemoveAll(helper.Root)
}

func (helper *TestHelper) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "aethersync", args...)
	cmd.Env = append(os.Environ(),
		"HOME="+helper.HomePath,
		"AETHERSYNC_LOG_VERBOSE=true")
	return cmd
}

// Run runs the given aethersync command, and returns its stdout.
func (helper *TestHelper) Run(ctx context.Context, args ...string) ([]byte, error) {
	return helper.command(ctx, args...).Output()
}

// Start starts the given aethersync command. The command is sent SIGTERM when
// `ctx` is cancelled. The returned channel receives the command's exit error
// once it exits, and is then closed.
func (helper *TestHelper) Start(ctx context.Context, args ...string) (
	*SafeBuffer, chan error, error) {

	// The command is stopped with SIGTERM rather than killed by the context.
	cmd := helper.command(context.Background(), args...)

	stdout := &SafeBuffer{}
	cmd.Stdout = stdout
	stderr := &SafeBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}

	errChan := make(chan error, 1)
	go func() {
		waitErr := make(chan error)
		go func() {
			waitErr <- cmd.Wait()
			close(waitErr)
		}()

		defer close(errChan)
		select {
		case <-ctx.Done():
			if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
				errChan <- errors.WithContext(err, "kill")
				return
			}
			if err := <-waitErr; err != nil {
				errChan <- fmt.Errorf("exited with %s: stderr: %s", err, stderr)
			}
		case err := <-waitErr:
			errChan <- fmt.Errorf("crashed (%v): stderr: %s", err, stderr)
		}
	}()
	return stdout, errChan, nil
}

// SafeBuffer is a bytes.Buffer that's safe to write and read concurrently.
type SafeBuffer struct {
	lock goSync.Mutex
	buf  bytes.Buffer
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

// TestWithRetry runs `test` with exponential backoff until it passes, or
// `ctx` is done.
func TestWithRetry(ctx context.Context, test func() bool) bool {
	maxSleepTime := 5 * time.Second
	sleepTime := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return test()
		case <-time.After(sleepTime):
			sleepTime *= 2
			if sleepTime > maxSleepTime {
				sleepTime = maxSleepTime
			}
		}

		if test() {
			return true
		}
	}
}
