package sync

import (
	"time"
)

// replicaTracker tracks the files that have been copied into the target
// directory during a session. It's only accessed by the worker, so it isn't
// threadsafe.
type replicaTracker map[string]replica

// replica contains metadata on a file copied into the target directory.
type replica struct {
	// DestinationPath is the path of the copy in the target directory.
	DestinationPath string

	// SourcePath is the path of the most recent file copied to
	// DestinationPath.
	SourcePath string

	// ReplicatedAt is the time of the most recent copy.
	ReplicatedAt time.Time
}

func newReplicaTracker() replicaTracker {
	return replicaTracker{}
}

// Replicated updates the tracker to reflect that `f` was copied. It returns
// the source of the previous copy to the same destination, if there was one.
func (tracker replicaTracker) Replicated(f replica) (prevSource string, ok bool) {
	prev, ok := tracker[f.DestinationPath]
	tracker[f.DestinationPath] = f
	return prev.SourcePath, ok
}
