package util

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"github.com/sidkik/aethersync/pkg/errors"
)

// Mocked for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

type friendlyError interface {
	FriendlyMessage() string
}

// HandleFatalError prints the error and exits. Errors with a friendly message
// are printed as-is so that they're readable by the user. Other errors are
// printed with their full context.
func HandleFatalError(err error) {
	if friendlyErr, ok := errors.RootCause(err).(friendlyError); ok {
		fmt.Fprintln(stderr, friendlyErr.FriendlyMessage())
	} else {
		log.WithError(err).Debug("Fatal error")
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic logs panics along with their stack trace before continuing to
// panic. It should be deferred at the top of every goroutine.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Panic: %v", r)
		panic(r)
	}
}
