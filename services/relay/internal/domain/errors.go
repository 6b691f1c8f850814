package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a relay did not produce an upstream reply.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindValidation
	KindTimeout
	KindConnection
	KindUpstreamHTTP
	KindParse
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection"
	case KindUpstreamHTTP:
		return "upstream_http"
	case KindParse:
		return "parse"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// relay
var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrTimeout        = errors.New("webhook timed out")
	ErrUnreachable    = errors.New("webhook unreachable")
	ErrUpstreamStatus = errors.New("webhook returned non-2xx status")
)

// queue / store
var (
	ErrQueueFull      = errors.New("job queue is full")
	ErrQueueClosed    = errors.New("job queue is closed")
	ErrMissingSession = errors.New("session id is required")
)

// RelayError carries the classification of a failed webhook call.
type RelayError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *RelayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *RelayError) Unwrap() error {
	return e.Err
}

func NewRelayError(kind ErrorKind, statusCode int, err error) *RelayError {
	return &RelayError{Kind: kind, StatusCode: statusCode, Err: err}
}

// KindOf returns the kind of err, KindInternal when err is not a RelayError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var re *RelayError
	if errors.As(err, &re) {
		return re.Kind
	}
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return KindValidation
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrUnreachable):
		return KindConnection
	}
	return KindInternal
}
