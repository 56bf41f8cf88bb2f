package snap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/steelcutops/snapcut/snapcut/snapd"
)

// ErrorKind classifies every error this package returns so callers can
// branch on it without inspecting concrete types.
type ErrorKind string

const (
	// KindTransport: snapd could not be reached or answered with an error.
	KindTransport ErrorKind = "transport"
	// KindNotFound: neither the cache nor snapd knows the snap.
	KindNotFound ErrorKind = "not-found"
	// KindAction: a snap command exited non-zero.
	KindAction ErrorKind = "action"
	// KindAggregate: one or more snaps of a batch could not be reconciled.
	KindAggregate ErrorKind = "aggregate"
	// KindValidation: malformed input, rejected before any I/O.
	KindValidation ErrorKind = "validation"
)

// Sentinels for errors.Is. An Error matches a sentinel of the same kind; a
// sentinel with a message only matches errors carrying that message.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAction            = &Error{Kind: KindAction}
	ErrAggregate         = &Error{Kind: KindAggregate}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrSnapdNotInstalled = &Error{Kind: KindAction, Message: "snapd is not installed or not in /usr/bin"}
)

// Error is the structured error returned by records, the cache and the
// reconciler.
type Error struct {
	Kind    ErrorKind
	Message string

	// Snap is the snap the error is about, if any.
	Snap string
	// Command and Output describe a failed snap command.
	Command []string
	Output  string
	// Failed lists every snap of a batch that could not be reconciled.
	Failed []string

	Cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Command) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Command, " "))
	}
	if output := strings.TrimSpace(e.Output); output != "" {
		b.WriteString(": ")
		b.WriteString(output)
	} else if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Message == "" || t.Message == e.Message
}

// KindOf returns the kind of err, or "" when err did not come from this
// package or the snapd client.
func KindOf(err error) ErrorKind {
	var snapErr *Error
	if errors.As(err, &snapErr) {
		return snapErr.Kind
	}
	var apiErr *snapd.APIError
	if errors.As(err, &apiErr) {
		return KindTransport
	}
	return ""
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}
