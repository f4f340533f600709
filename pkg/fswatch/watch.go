package fswatch

import (
	"fmt"
	"os"
	"strings"
	goSync "sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/aethersync/pkg/errors"
)

var fs = afero.NewOsFs()

// Op describes what happened to the paths in an Event. Multiple operations
// may be set at once.
type Op uint32

// The operations reported by Watch. These mirror fsnotify's operations.
const (
	Create Op = 1 << iota
	Write
	Remove
	Rename
	Chmod
)

func (op Op) String() string {
	var names []string
	for _, flag := range []struct {
		op   Op
		name string
	}{
		{Create, "CREATE"},
		{Write, "WRITE"},
		{Remove, "REMOVE"},
		{Rename, "RENAME"},
		{Chmod, "CHMOD"},
	} {
		if op&flag.op == flag.op {
			names = append(names, flag.name)
		}
	}
	return strings.Join(names, "|")
}

// Event is a change notification for one or more paths.
type Event struct {
	Paths []string
	Op    Op
}

// Handler is called for every Event. It may be called from multiple
// goroutines at once, and must not block.
type Handler func(Event)

// Watcher delivers change notifications for a directory tree until it's
// closed.
type Watcher struct {
	watcher *fsnotify.Watcher
	handler Handler

	closeOnce goSync.Once
	closeErr  error

	// closed is closed once Close is called.
	closed chan struct{}
}

// Watch recursively watches the directory tree at `root`, and calls `handler`
// for every change within it. Directories created after the watch starts are
// watched as well.
func Watch(root string, handler Handler) (*Watcher, error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, errors.NewFriendlyError("%q is not a directory", root)
	}

	dirs, err := getDirsToWatch(root)
	if err != nil {
		return nil, errors.WithContext(err, "get subdirs")
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := fsWatcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", dir))
		}
	}

	w := &Watcher{watcher: fsWatcher, handler: handler, closed: make(chan struct{})}
	go w.run()
	return w, nil
}

// Close stops the delivery of events. It's safe to call multiple times.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.closed)
		w.closeErr = w.watcher.Close()
	})
	return w.closeErr
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("File watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	op := convertOp(event.Op)
	w.handler(Event{Paths: []string{event.Name}, Op: op})

	if op&Create != Create {
		return
	}

	// fsnotify doesn't watch directories recursively, so new directories
	// have to be added by hand. Anything written into the directory before
	// it was added is reported in a single event. The walk runs in the
	// background so that large trees don't hold up event delivery.
	fi, err := fs.Stat(event.Name)
	if err != nil || !fi.IsDir() {
		return
	}
	go w.watchNewDir(event.Name)
}

func (w *Watcher) watchNewDir(dir string) {
	files, err := w.addDir(dir)
	select {
	case <-w.closed:
		// Adds fail once the watcher is closed.
		return
	default:
	}

	if err != nil {
		log.WithError(err).WithField("path", dir).Warn(
			"Failed to watch new directory. Changes within it won't be synced.")
	}
	if len(files) != 0 {
		w.handler(Event{Paths: files, Op: Create})
	}
}

// addDir watches `dir` and all of its subdirectories, and returns the files
// that already exist within them.
func (w *Watcher) addDir(dir string) (files []string, err error) {
	err = afero.Walk(fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if !fi.IsDir() {
			files = append(files, path)
			return nil
		}

		if err := w.watcher.Add(path); err != nil {
			return errors.WithContext(err, fmt.Sprintf("watch %q", path))
		}
		return nil
	})
	return files, err
}

func getDirsToWatch(root string) (paths []string, err error) {
	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if fi.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func convertOp(op fsnotify.Op) (converted Op) {
	for from, to := range map[fsnotify.Op]Op{
		fsnotify.Create: Create,
		fsnotify.Write:  Write,
		fsnotify.Remove: Remove,
		fsnotify.Rename: Rename,
		fsnotify.Chmod:  Chmod,
	} {
		if op&from == from {
			converted |= to
		}
	}
	return converted
}
