package sync

import (
	"path/filepath"
	"strings"
	goSync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/aethersync/pkg/errors"
	"github.com/sidkik/aethersync/pkg/fswatch"
)

// DefaultPollInterval is the longest the worker waits for a file event before
// checking whether the sync was stopped.
const DefaultPollInterval = 1 * time.Second

type subscription interface {
	Close() error
}

// Controller starts and stops sync sessions. At most one session is active
// at a time.
type Controller struct {
	lock    goSync.Mutex
	session *session

	// copyLock serializes copies across sessions. Stop doesn't wait for the
	// worker, so a stopped session's last copy may still be in progress when
	// the next session starts.
	copyLock goSync.Mutex

	pollInterval time.Duration
	fs           afero.Fs
	clock        clockwork.Clock
	log          *logrus.Logger

	// Mocked out for unit testing.
	watch func(string, fswatch.Handler) (subscription, error)
}

type session struct {
	id         string
	watchPath  string
	targetPath string

	running      *runningFlag
	subscription subscription
	workerDone   chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets how often the worker checks whether the sync has
// been stopped.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Controller) {
		c.pollInterval = interval
	}
}

// WithClock sets the clock used to time out waits for file events.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithFs sets the filesystem that files are copied on.
func WithFs(fs afero.Fs) Option {
	return func(c *Controller) {
		c.fs = fs
	}
}

// NewController returns a Controller with no active session.
func NewController(log *logrus.Logger, opts ...Option) *Controller {
	c := &Controller{
		pollInterval: DefaultPollInterval,
		fs:           afero.NewOsFs(),
		clock:        clockwork.NewRealClock(),
		log:          log,
		watch: func(path string, handler fswatch.Handler) (subscription, error) {
			return fswatch.Watch(path, handler)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins mirroring the files under `watchPath` into `targetPath`. It
// fails with errors.ErrAlreadyRunning if a session is already active, and
// with an errors.WatcherInitError if `watchPath` can't be watched.
func (c *Controller) Start(watchPath, targetPath string) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.session != nil {
		return errors.ErrAlreadyRunning
	}

	if isWithin(targetPath, watchPath) {
		c.log.WithFields(logrus.Fields{
			"watch":  watchPath,
			"target": targetPath,
		}).Warn("The target directory is inside the watched directory. " +
			"Copied files will trigger additional file events.")
	}

	running := &runningFlag{}
	running.Set(true)

	events := newRelay()
	sub, err := c.watch(watchPath, events.Send)
	if err != nil {
		return errors.WatcherInitError{Path: watchPath, Err: err}
	}

	id := uuid.New().String()
	w := &worker{
		session:      id,
		targetPath:   targetPath,
		relay:        events,
		running:      running,
		pollInterval: c.pollInterval,
		fs:           c.fs,
		clock:        c.clock,
		log:          c.log,
		replicas:     newReplicaTracker(),
		copyLock:     &c.copyLock,
		done:         make(chan struct{}),
	}
	go w.Run()

	c.session = &session{
		id:           id,
		watchPath:    watchPath,
		targetPath:   targetPath,
		running:      running,
		subscription: sub,
		workerDone:   w.done,
	}
	c.log.WithFields(logrus.Fields{
		"session": id,
		"watch":   watchPath,
		"target":  targetPath,
	}).Info("Started sync")
	return nil
}

// Stop ends the active session. It returns immediately: the worker exits
// within one poll interval, and events that haven't been synced by then are
// dropped. It fails with errors.ErrNotRunning if no session is active.
func (c *Controller) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.session == nil {
		return errors.ErrNotRunning
	}

	c.session.running.Set(false)
	if err := c.session.subscription.Close(); err != nil {
		c.log.WithError(err).Warn("Failed to close file watcher")
	}

	c.log.WithFields(logrus.Fields{
		"session": c.session.id,
		"watch":   c.session.watchPath,
	}).Info("Stopped sync")
	c.session = nil
	return nil
}

// Running returns whether a session is active.
func (c *Controller) Running() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.session != nil
}

// isWithin returns whether `path` is `dir` or one of its descendants.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
