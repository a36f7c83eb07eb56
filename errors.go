package memcache

import (
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/pior/memcache-async/text"
)

var (
	// ErrConnectFailure matches every ConnectError.
	ErrConnectFailure = errors.New("memcache: connect failure")

	// ErrConnectionClosed is returned for commands that were waiting on a
	// connection that got closed.
	ErrConnectionClosed = errors.New("memcache: connection closed")

	// ErrInvalidParams matches argument validation failures.
	ErrInvalidParams = text.ErrInvalidParams

	// ErrUnknownResponse matches replies that do not follow the protocol grammar.
	ErrUnknownResponse = text.ErrUnknownResponse
)

// ConnectError is returned to every command waiting on a failed connect attempt.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return "memcache: connect to " + e.Addr + " failed: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectFailure
}

// ConnectionError is returned when the transport fails while writing a command.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return "memcache: connection error during " + e.Op + ": " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// closedError is the error given to requests dropped by a teardown.
func closedError(cause error) error {
	if cause == nil {
		return ErrConnectionClosed
	}
	return pkgerrors.WithMessage(ErrConnectionClosed, cause.Error())
}

// errorKind labels an error for metrics.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ErrUnknownResponse):
		return "unknown_response"
	case errors.Is(err, ErrConnectFailure):
		return "connect_failure"
	case errors.Is(err, ErrConnectionClosed):
		return "connection_closed"
	default:
		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			return "connection"
		}
		return "other"
	}
}
