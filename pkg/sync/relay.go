package sync

import (
	goSync "sync"
	"time"

	"github.com/sidkik/aethersync/pkg/fswatch"
)

// relay is an unbounded FIFO queue of filesystem events. Send never blocks,
// so it's safe to call from the watcher's delivery goroutine.
type relay struct {
	lock  goSync.Mutex
	queue []fswatch.Event

	// ready has a buffer of one so that senders can signal the receiver
	// without blocking. A pending signal means the queue may be non-empty.
	ready chan struct{}
}

func newRelay() *relay {
	return &relay{ready: make(chan struct{}, 1)}
}

// Send appends `event` to the queue.
func (r *relay) Send(event fswatch.Event) {
	r.lock.Lock()
	r.queue = append(r.queue, event)
	r.lock.Unlock()

	select {
	case r.ready <- struct{}{}:
	default:
	}
}

// Receive returns the oldest queued event. If the queue is empty, it waits
// until an event is sent or `timeout` fires, in which case it returns false.
func (r *relay) Receive(timeout <-chan time.Time) (fswatch.Event, bool) {
	for {
		if event, ok := r.pop(); ok {
			return event, true
		}

		select {
		case <-r.ready:
		case <-timeout:
			return fswatch.Event{}, false
		}
	}
}

func (r *relay) pop() (fswatch.Event, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if len(r.queue) == 0 {
		return fswatch.Event{}, false
	}

	event := r.queue[0]
	r.queue[0] = fswatch.Event{}
	r.queue = r.queue[1:]
	return event, true
}

// Len returns the number of queued events.
func (r *relay) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.queue)
}
