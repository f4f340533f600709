package sync

import (
	"io/ioutil"
	"os"
	"path/filepath"
	goSync "sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	logrusTest "github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/aethersync/pkg/errors"
	"github.com/sidkik/aethersync/pkg/fswatch"
)

type mockSubscription struct {
	mock.Mock
}

func (m *mockSubscription) Close() error {
	return m.Called().Error(0)
}

func TestStartStop(t *testing.T) {
	memFs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClock()
	logger, _ := logrusTest.NewNullLogger()
	c := NewController(logger, WithFs(memFs), WithClock(clock))

	sub := &mockSubscription{}
	sub.On("Close").Return(nil).Once()

	var watchCalls int
	var handler fswatch.Handler
	c.watch = func(path string, h fswatch.Handler) (subscription, error) {
		assert.Equal(t, "/watch", path)
		watchCalls++
		handler = h
		return sub, nil
	}

	assert.Equal(t, errors.ErrNotRunning, c.Stop())
	assert.False(t, c.Running())

	assert.NoError(t, c.Start("/watch", "/target"))
	assert.True(t, c.Running())
	workerDone := c.session.workerDone

	assert.Equal(t, errors.ErrAlreadyRunning, c.Start("/watch", "/target"))
	assert.Equal(t, 1, watchCalls)

	require.NoError(t, afero.WriteFile(memFs, "/watch/a.txt", []byte("contents"), 0644))
	handler(fswatch.Event{Paths: []string{"/watch/a.txt"}, Op: fswatch.Create})
	waitForFile(t, memFs, "/target/a.txt")

	assert.NoError(t, c.Stop())
	assert.False(t, c.Running())
	sub.AssertExpectations(t)
	waitForExit(t, clock, workerDone)

	assert.Equal(t, errors.ErrNotRunning, c.Stop())
}

func TestStartWatchError(t *testing.T) {
	logger, _ := logrusTest.NewNullLogger()
	c := NewController(logger, WithFs(afero.NewMemMapFs()))

	watchErr := errors.FileNotFound{Path: "/watch"}
	c.watch = func(string, fswatch.Handler) (subscription, error) {
		return nil, watchErr
	}

	err := c.Start("/watch", "/target")
	assert.Equal(t, errors.WatcherInitError{Path: "/watch", Err: watchErr}, err)
	assert.Equal(t, `"/watch" does not exist`, err.Error())
	assert.False(t, c.Running())
	assert.Equal(t, errors.ErrNotRunning, c.Stop())

	// A failed start doesn't prevent later starts.
	sub := &mockSubscription{}
	sub.On("Close").Return(nil)
	c.watch = func(string, fswatch.Handler) (subscription, error) {
		return sub, nil
	}
	assert.NoError(t, c.Start("/watch", "/target"))
	assert.NoError(t, c.Stop())
}

func TestStopCloseError(t *testing.T) {
	logger, logHook := logrusTest.NewNullLogger()
	c := NewController(logger, WithFs(afero.NewMemMapFs()))

	sub := &mockSubscription{}
	sub.On("Close").Return(assert.AnError)
	c.watch = func(string, fswatch.Handler) (subscription, error) {
		return sub, nil
	}

	assert.NoError(t, c.Start("/watch", "/target"))

	// Failing to close the watcher still stops the session.
	assert.NoError(t, c.Stop())
	assert.False(t, c.Running())

	var found bool
	sessions := map[string]bool{}
	for _, entry := range logHook.AllEntries() {
		switch entry.Message {
		case "Failed to close file watcher":
			found = true
		case "Started sync", "Stopped sync":
			sessions[entry.Data["session"].(string)] = true
		}
	}
	assert.True(t, found)

	// The start and stop are tagged with the same session.
	require.Len(t, sessions, 1)
	for id := range sessions {
		assert.Len(t, id, 36)
	}
}

func TestConcurrentStart(t *testing.T) {
	logger, _ := logrusTest.NewNullLogger()
	c := NewController(logger, WithFs(afero.NewMemMapFs()))

	sub := &mockSubscription{}
	sub.On("Close").Return(nil)
	var watchCalls int
	c.watch = func(string, fswatch.Handler) (subscription, error) {
		watchCalls++
		return sub, nil
	}

	numCallers := 16
	results := make(chan error, numCallers)
	var wg goSync.WaitGroup
	for i := 0; i < numCallers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- c.Start("/watch", "/target")
		}()
	}
	wg.Wait()
	close(results)

	var started, rejected int
	for err := range results {
		switch err {
		case nil:
			started++
		case errors.ErrAlreadyRunning:
			rejected++
		default:
			t.Errorf("unexpected error: %s", err)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, numCallers-1, rejected)
	assert.Equal(t, 1, watchCalls)
	assert.NoError(t, c.Stop())
}

// gatedFs blocks the creation of files named `gated` until `release` is
// closed, and records whether two files were ever created at once.
type gatedFs struct {
	afero.Fs
	gated   string
	entered chan struct{}
	release chan struct{}

	lock       goSync.Mutex
	inProgress int
	overlapped bool
	created    []string
}

func (fs *gatedFs) Create(name string) (afero.File, error) {
	fs.lock.Lock()
	fs.inProgress++
	if fs.inProgress > 1 {
		fs.overlapped = true
	}
	fs.lock.Unlock()

	defer func() {
		fs.lock.Lock()
		fs.inProgress--
		fs.created = append(fs.created, name)
		fs.lock.Unlock()
	}()

	if filepath.Base(name) == fs.gated {
		close(fs.entered)
		<-fs.release
	}
	return fs.Fs.Create(name)
}

func TestRestartWaitsForPreviousCopy(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFs, "/watch/a.txt", []byte("a"), 0644))
	require.NoError(t, afero.WriteFile(memFs, "/watch/b.txt", []byte("b"), 0644))
	gated := &gatedFs{
		Fs:      memFs,
		gated:   "a.txt",
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	logger, _ := logrusTest.NewNullLogger()
	c := NewController(logger, WithFs(gated), WithPollInterval(10*time.Millisecond))

	sub := &mockSubscription{}
	sub.On("Close").Return(nil)
	var handler fswatch.Handler
	c.watch = func(_ string, h fswatch.Handler) (subscription, error) {
		handler = h
		return sub, nil
	}

	// Stop the first session while its worker is in the middle of a copy.
	require.NoError(t, c.Start("/watch", "/target"))
	handler(fswatch.Event{Paths: []string{"/watch/a.txt"}, Op: fswatch.Write})
	<-gated.entered
	require.NoError(t, c.Stop())

	require.NoError(t, c.Start("/watch", "/target"))
	handler(fswatch.Event{Paths: []string{"/watch/b.txt"}, Op: fswatch.Write})

	// The new session's copy waits for the old one.
	time.Sleep(100 * time.Millisecond)
	exists, err := afero.Exists(memFs, "/target/b.txt")
	assert.NoError(t, err)
	assert.False(t, exists)

	close(gated.release)
	waitForFile(t, memFs, "/target/b.txt")
	assert.NoError(t, c.Stop())

	gated.lock.Lock()
	defer gated.lock.Unlock()
	assert.False(t, gated.overlapped)
	assert.Equal(t, []string{"/target/a.txt", "/target/b.txt"}, gated.created)
}

func TestIsWithin(t *testing.T) {
	assert.True(t, isWithin("/watch", "/watch"))
	assert.True(t, isWithin("/watch/target", "/watch"))
	assert.False(t, isWithin("/target", "/watch"))
	assert.False(t, isWithin("/watch-target", "/watch"))
	assert.False(t, isWithin("/", "/watch"))
}

// TestMirror runs a sync session against the real filesystem.
func TestMirror(t *testing.T) {
	root, err := ioutil.TempDir("", "aethersync")
	require.NoError(t, err)
	defer os.RemoveAll(root)

	watchPath := filepath.Join(root, "watch")
	targetPath := filepath.Join(root, "target")
	require.NoError(t, os.Mkdir(watchPath, 0755))

	pollInterval := 50 * time.Millisecond
	logger, _ := logrusTest.NewNullLogger()
	c := NewController(logger, WithPollInterval(pollInterval))
	require.NoError(t, c.Start(watchPath, targetPath))
	workerDone := c.session.workerDone

	// New files are copied.
	writeFile(t, filepath.Join(watchPath, "a.txt"), "hello")
	waitForContents(t, filepath.Join(targetPath, "a.txt"), "hello")

	// Modifications are copied.
	writeFile(t, filepath.Join(watchPath, "a.txt"), "hello again")
	waitForContents(t, filepath.Join(targetPath, "a.txt"), "hello again")

	// Files in subdirectories are copied into the root of the target.
	subdir := filepath.Join(watchPath, "sub")
	require.NoError(t, os.Mkdir(subdir, 0755))
	writeFile(t, filepath.Join(subdir, "b.txt"), "nested")
	waitForContents(t, filepath.Join(targetPath, "b.txt"), "nested")
	assertNotExist(t, filepath.Join(targetPath, "sub"))

	// Removals aren't propagated.
	require.NoError(t, os.Remove(filepath.Join(watchPath, "a.txt")))

	// A file that can't be copied doesn't affect the copies of other files.
	require.NoError(t, os.Mkdir(filepath.Join(targetPath, "bad.txt"), 0755))
	writeFile(t, filepath.Join(watchPath, "bad.txt"), "unsyncable")
	writeFile(t, filepath.Join(watchPath, "good.txt"), "syncable")
	waitForContents(t, filepath.Join(targetPath, "good.txt"), "syncable")

	fi, err := os.Stat(filepath.Join(targetPath, "bad.txt"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())

	contents, err := ioutil.ReadFile(filepath.Join(targetPath, "a.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "hello again", string(contents))

	require.NoError(t, c.Stop())
	select {
	case <-workerDone:
	case <-time.After(10 * pollInterval):
		t.Fatal("worker didn't exit after the sync was stopped")
	}

	// Changes after the sync is stopped aren't copied.
	writeFile(t, filepath.Join(watchPath, "late.txt"), "late")
	time.Sleep(3 * pollInterval)
	assertNotExist(t, filepath.Join(targetPath, "late.txt"))

	assert.Equal(t, errors.ErrNotRunning, c.Stop())
}

func writeFile(t *testing.T, path, contents string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(contents), 0644))
}

func waitForContents(t *testing.T, path, exp string) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if contents, err := ioutil.ReadFile(path); err == nil && string(contents) == exp {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to contain %q", path, exp)
}

func assertNotExist(t *testing.T, path string) {
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "%s should not exist", path)
}
