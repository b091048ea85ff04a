// Package chaterr defines the error kinds surfaced by the chat client and server.
package chaterr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuthRejected means the identity provider or server refused the credential.
	// It is never retried automatically.
	ErrAuthRejected = errors.New("auth rejected")
	// ErrNotConnected is returned by a send attempted with no open channel.
	ErrNotConnected = errors.New("not connected")
	// ErrFetch wraps history and summary fetch failures.
	ErrFetch = errors.New("fetch failed")
	// ErrWrite wraps durable write failures. The provisional entry is rolled back.
	ErrWrite = errors.New("write failed")
	// ErrTransportUnavailable means the realtime channel could not be established.
	ErrTransportUnavailable = errors.New("transport unavailable")
)

// StatusError carries the HTTP status of a failed REST call.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// Unwrap maps 401 and 403 onto ErrAuthRejected so callers can use errors.Is.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrAuthRejected
	}
	return nil
}
