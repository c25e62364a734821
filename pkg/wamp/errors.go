package wamp

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrSessionClosed is returned by operations on a disconnected session and
	// by operations still pending when the session disconnects.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownSubscription is returned when unsubscribing a handle that is
	// not bound to this session.
	ErrUnknownSubscription = errors.New("unknown subscription")
	// ErrForeignHandle is returned when a Registration or Subscription is
	// passed to a session that did not create it.
	ErrForeignHandle = errors.New("handle belongs to another session")
)

// ApplicationError is an application level failure reported by the router,
// the remote callee, or returned by a local invocation handler.
type ApplicationError struct {
	URI    string
	Args   []any
	Kwargs map[string]any
}

func NewApplicationError(uri string, args []any, kwargs map[string]any) *ApplicationError {
	return &ApplicationError{URI: uri, Args: args, Kwargs: kwargs}
}

func (e *ApplicationError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.URI)

	if len(e.Args) > 0 {
		args := make([]string, len(e.Args))
		for i, arg := range e.Args {
			args[i] = fmt.Sprint(arg)
		}
		sb.WriteString(": ")
		sb.WriteString(strings.Join(args, ", "))
	}

	if len(e.Kwargs) > 0 {
		keys := make([]string, 0, len(e.Kwargs))
		for k := range e.Kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		kwargs := make([]string, len(keys))
		for i, k := range keys {
			kwargs[i] = fmt.Sprintf("%s=%v", k, e.Kwargs[k])
		}
		sb.WriteString(": ")
		sb.WriteString(strings.Join(kwargs, ", "))
	}

	return sb.String()
}

// ProtocolError reports an inbound message that violates the protocol. It is
// fatal to the session.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Message
}

func protocolErrorf(format string, args ...any) *ProtocolError {
	return &ProtocolError{Message: fmt.Sprintf(format, args...)}
}
