package text

import (
	"errors"
	"strings"
)

// Sentinels matched with errors.Is.
var (
	// ErrInvalidParams matches every InvalidParamsError.
	ErrInvalidParams = errors.New("memcache: invalid params")

	// ErrUnknownResponse matches every UnknownResponseError.
	ErrUnknownResponse = errors.New("memcache: unknown response")

	// ErrIncomplete is returned by Decode when the buffer does not yet hold a
	// complete reply. The buffer must be left untouched and retried later.
	ErrIncomplete = errors.New("memcache: incomplete response")
)

// InvalidParamsError is returned when a command's arguments fail validation.
// The command never reaches the network.
type InvalidParamsError struct {
	Command string
	Field   string
	Reason  string
	Err     error // Underlying error, if any
}

func (e *InvalidParamsError) Error() string {
	var sb strings.Builder
	sb.WriteString("memcache: invalid params for ")
	sb.WriteString(e.Command)
	if e.Field != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Field)
	}
	if e.Reason != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Reason)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *InvalidParamsError) Unwrap() error {
	return e.Err
}

func (e *InvalidParamsError) Is(target error) bool {
	return target == ErrInvalidParams
}

// UnknownResponseError is returned when the server sent bytes that do not
// match the reply grammar of the in-flight command. Only that command fails;
// the connection stays usable.
type UnknownResponseError struct {
	Command string
	Line    string
	// Cause is a *ClientError, *ServerError or *GenericError when the line was
	// an error reply, or the value codec error when an item failed to decode.
	Cause error
}

func (e *UnknownResponseError) Error() string {
	msg := "memcache: unknown response for " + e.Command + ": " + quoteLine(e.Line)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnknownResponseError) Unwrap() error {
	return e.Cause
}

func (e *UnknownResponseError) Is(target error) bool {
	return target == ErrUnknownResponse
}

func quoteLine(line string) string {
	const maxLen = 64
	if len(line) > maxLen {
		line = line[:maxLen] + "..."
	}
	return "\"" + line + "\""
}

// ClientError represents a CLIENT_ERROR line from memcached: the server
// rejected the client input.
type ClientError struct {
	Message string
}

func (e *ClientError) Error() string {
	return "CLIENT_ERROR: " + e.Message
}

// ServerError represents a SERVER_ERROR line from memcached: the operation
// failed server side (out of memory, ...).
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "SERVER_ERROR: " + e.Message
}

// GenericError represents a bare ERROR line, typically an unknown command.
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string {
	return e.Message
}

// ParseErrorLine classifies an error reply line. It returns nil when line
// is not an error reply.
func ParseErrorLine(line string) error {
	if msg, ok := strings.CutPrefix(line, ErrorClientPrefix+Space); ok {
		return &ClientError{Message: msg}
	}
	if line == ErrorClientPrefix {
		return &ClientError{}
	}
	if msg, ok := strings.CutPrefix(line, ErrorServerPrefix+Space); ok {
		return &ServerError{Message: msg}
	}
	if line == ErrorServerPrefix {
		return &ServerError{}
	}
	if line == ErrorGeneric {
		return &GenericError{Message: ErrorGeneric}
	}
	return nil
}
