package device

import "errors"

var (
	// ErrBusy is returned by Step when another Step is running.
	ErrBusy = errors.New("firmware device busy")

	// ErrUnexpectedResponse is returned for a response that does not answer
	// the outstanding FD request. The response is dropped.
	ErrUnexpectedResponse = errors.New("unexpected response")
)
