// Package errors contains the error types shared across aethersync, and
// helpers for annotating errors as they're passed up the stack.
package errors

import (
	goErrors "errors"
	"fmt"
)

// New returns an error with the given message.
func New(msg string) error {
	return goErrors.New(msg)
}

type errWithContext struct {
	cause   error
	context string
}

// WithContext annotates `err` with a description of what was being done when
// it occurred. The resulting message has the form "context: err".
func WithContext(err error, context string) error {
	return errWithContext{cause: err, context: context}
}

func (err errWithContext) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.cause)
}

func (err errWithContext) Unwrap() error {
	return err.cause
}

// RootCause strips all context added by WithContext and returns the original
// error.
func RootCause(err error) error {
	for {
		withContext, ok := err.(errWithContext)
		if !ok {
			return err
		}
		err = withContext.cause
	}
}

// FriendlyError is an error whose message is meant to be shown to the user
// as-is, without any additional context.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError with a message formatted
// according to `format`.
func NewFriendlyError(format string, args ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message to show to the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}
