// Package transport issues single HTTP requests asynchronously with
// abstraction for testing. The real implementation uses net/http.
// The fake implementation allows testing without a network.
package transport

import (
	"errors"
	"net/http"
)

// ErrBusy is returned when a Send is attempted while a request is
// already in flight. Requests are never queued here; the caller is
// responsible for not over-issuing.
var ErrBusy = errors.New("transport: request already in flight")

// Result is the outcome of a single HTTP exchange. OK is false on any
// transport-level failure (connect, send, timeout); Status, Headers and
// Body are only meaningful when OK is true.
type Result struct {
	OK      bool
	Status  int
	Headers http.Header
	Body    []byte
}

// Callback receives the result of an asynchronous Send.
type Callback func(Result)

// Client issues one HTTP request at a time.
type Client interface {
	// Send issues a request and returns immediately. The callback is
	// invoked exactly once with the outcome, from another goroutine.
	// Returns ErrBusy if a request is already in flight.
	Send(method, url, contentType, body string, headers map[string]string, cb Callback) error
}
