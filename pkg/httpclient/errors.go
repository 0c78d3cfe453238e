package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Kind classifies a failed request.
type Kind int

const (
	KindConnectTimeout Kind = iota + 1
	KindReadTimeout
	KindTransport
	KindProtocol
)

func (k Kind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect_timeout"
	case KindReadTimeout:
		return "read_timeout"
	case KindTransport:
		return "transport_error"
	case KindProtocol:
		return "protocol_error"
	default:
		return "unknown"
	}
}

var (
	ErrConnectTimeout = errors.New("connect timeout")
	ErrReadTimeout    = errors.New("read timeout")
	// ErrResponseTimeout is the same error as ErrReadTimeout: both enforcement
	// strategies report a single observable timeout.
	ErrResponseTimeout = ErrReadTimeout
	ErrTransport       = errors.New("transport error")
	ErrProtocol        = errors.New("protocol error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConnectTimeout:
		return ErrConnectTimeout
	case KindReadTimeout:
		return ErrReadTimeout
	case KindTransport:
		return ErrTransport
	case KindProtocol:
		return ErrProtocol
	default:
		return nil
	}
}

// Error is returned by Get for every failed request.
type Error struct {
	Kind       Kind
	Strategy   Strategy
	Phase      Phase
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("GET %s: %s", e.URL, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Timeout reports whether a connect or read bound was exceeded.
func (e *Error) Timeout() bool {
	return e.Kind == KindConnectTimeout || e.Kind == KindReadTimeout
}

// KindOf extracts the failure kind from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// dialError marks failures of the connect phase.
type dialError struct {
	err error
}

func (e *dialError) Error() string { return "dial: " + e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// idleTimeoutError is returned by a watchdog connection once its read window lapses.
type idleTimeoutError struct {
	err error
}

func (e *idleTimeoutError) Error() string { return "no data received within read timeout: " + e.err.Error() }
func (e *idleTimeoutError) Unwrap() error { return e.err }
func (e *idleTimeoutError) Timeout() bool { return true }

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if t, ok := e.(interface{ Timeout() bool }); ok && t.Timeout() {
			return true
		}
	}
	return false
}

func isNetworkError(err error) bool {
	var opErr *net.OpError
	var errno syscall.Errno
	return errors.As(err, &opErr) ||
		errors.As(err, &errno) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed)
}
