package luminus

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNotFound matches any *NotFoundError via errors.Is.
var ErrNotFound = errors.New("meter not found")

// AuthError means the credentials were rejected or the login handshake did
// not look the way it should. It is never retried.
type AuthError struct {
	Step       string
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "login rejected"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("authentication error at %s: %s: %v", e.Step, msg, e.Err)
	}
	return fmt.Sprintf("authentication error at %s: %s", e.Step, msg)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// ConnectionError is a transport failure, a timeout or a non-success status
// that survived the single re-login retry.
type ConnectionError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *ConnectionError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("timeout connecting to %s: %v", e.URL, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
	default:
		return fmt.Sprintf("error connecting to %s: %v", e.URL, e.Err)
	}
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NotFoundError is returned in mock mode for an EAN without fixture data.
type NotFoundError struct {
	EAN string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("meter %s not found", e.EAN)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// IsAuthError reports whether err is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsTimeout reports whether err is a ConnectionError caused by a timeout.
func IsTimeout(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce) && ce.Timeout
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// connectionError converts a transport error into a *ConnectionError. Errors
// that already belong to the taxonomy are returned untouched.
func connectionError(u string, err error) error {
	var ae *AuthError
	var ce *ConnectionError
	if errors.As(err, &ae) || errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{URL: u, Timeout: isTimeout(err), Err: err}
}
