package sync

import (
	"os"
	goSync "sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/aethersync/cmd/util"
	"github.com/sidkik/aethersync/pkg/errors"
)

// runningFlag is the flag the Controller uses to tell the worker to exit.
type runningFlag struct {
	lock    goSync.Mutex
	running bool
}

func (f *runningFlag) Set(running bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.running = running
}

func (f *runningFlag) Get() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.running
}

type worker struct {
	session      string
	targetPath   string
	relay        *relay
	running      *runningFlag
	pollInterval time.Duration

	fs       afero.Fs
	clock    clockwork.Clock
	log      *logrus.Logger
	replicas replicaTracker
	copies   int

	// copyLock is shared by the workers of all sessions, so that a worker
	// that's still finishing a copy after its session was stopped never
	// writes to the target at the same time as the next session's worker.
	copyLock *goSync.Mutex

	// done is closed when the worker exits.
	done chan struct{}
}

// Run copies the files from the relay's events into the target directory
// until the running flag is cleared. The flag is checked at least once every
// poll interval.
func (w *worker) Run() {
	defer close(w.done)
	defer util.HandlePanic()

	for w.running.Get() {
		event, ok := w.relay.Receive(w.clock.After(w.pollInterval))
		if !ok {
			continue
		}

		w.log.WithFields(logrus.Fields{
			"op":    event.Op.String(),
			"paths": event.Paths,
		}).Debug("Received file event")
		for _, path := range event.Paths {
			w.syncPath(path)
		}
	}

	w.log.WithFields(logrus.Fields{
		"session": w.session,
		"target":  w.targetPath,
		"copied":  w.copies,
		"files":   len(w.replicas),
		"dropped": w.relay.Len(),
	}).Info("Sync worker stopped")
}

func (w *worker) syncPath(path string) {
	fi, err := lstat(w.fs, path)
	if err != nil {
		// The file was most likely removed after the event was sent. Removals
		// aren't synced.
		w.log.WithError(err).WithField("path", path).Debug("Skipping file that can't be accessed")
		return
	}

	if !fi.Mode().IsRegular() {
		w.log.WithField("path", path).Debug("Skipping path that isn't a regular file")
		return
	}

	w.copyLock.Lock()
	err = Replicate(w.fs, path, w.targetPath)
	w.copyLock.Unlock()
	if err != nil {
		err = errors.ReplicationError{Path: path, Err: err}
		w.log.WithError(err).WithField("path", path).Error("Failed to sync file")
		return
	}

	w.copies++
	dst := destination(path, w.targetPath)
	prevSource, ok := w.replicas.Replicated(replica{
		DestinationPath: dst,
		SourcePath:      path,
		ReplicatedAt:    w.clock.Now(),
	})
	if ok && prevSource != path {
		w.log.WithFields(logrus.Fields{
			"path":     path,
			"previous": prevSource,
			"dstPath":  dst,
		}).Warn("Two paths map to the same file. Overwrote the earlier file.")
	}
	w.log.WithField("path", path).Info("Synced file")
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if lstater, ok := fs.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(path)
		return fi, err
	}
	return fs.Stat(path)
}
