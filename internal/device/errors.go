package device

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by the state getters when the requested value is
// absent from the device state.
var ErrNotFound = errors.New("value not found in device state")

// ValidationError is returned by a builder whose argument falls outside its
// domain. The failure has already been reported when it is returned.
type ValidationError struct {
	Kind  string
	Value any
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid input `%s` in `%s`", formatValue(e.Value), e.Kind)
}

// HTTPError is a non-200 reply from the device plugin API.
type HTTPError struct {
	Endpoint   string
	Payload    string
	StatusCode int
	// Fatal is set when a transport was configured; the caller is expected
	// to stop.
	Fatal bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s request `%s` error (%d)", e.Endpoint, e.Payload, e.StatusCode)
}

// RPCError is an rpc_error acknowledgement received over the pipe transport.
type RPCError struct {
	Label   string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc %s failed", e.Label)
	}
	return fmt.Sprintf("rpc %s failed: %s", e.Label, e.Message)
}

// IsFatal reports whether err should terminate the caller. Besides the
// transport errors above, any error in the chain with a Fatal() bool method
// decides for itself.
func IsFatal(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Fatal
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return true
	}
	var f interface{ Fatal() bool }
	return errors.As(err, &f) && f.Fatal()
}
