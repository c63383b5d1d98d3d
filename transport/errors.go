package transport

import (
	"errors"
	"fmt"
)

// Common errors for SCTP transports
var (
	// ErrPortInUse indicates an explicitly requested port is already registered
	ErrPortInUse = errors.New("port already in use")

	// ErrPortsExhausted indicates no free port was found in the ephemeral range
	ErrPortsExhausted = errors.New("no free port in ephemeral range")

	// ErrNilEndpoint indicates Register was called without an endpoint
	ErrNilEndpoint = errors.New("nil endpoint")

	// ErrTransportClosed indicates the transport or its socket has been closed
	ErrTransportClosed = errors.New("transport closed")

	// ErrNotIPv4 indicates a destination that the IPv4 raw transport cannot reach
	ErrNotIPv4 = errors.New("destination is not IPv4")

	// ErrUnsupported indicates raw sockets are not available on this platform
	ErrUnsupported = errors.New("raw sockets not supported on this platform")
)

// OpError represents a socket error with additional context
type OpError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("sctp %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("sctp %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// newOpError creates a new OpError
func newOpError(op, addr string, err error) *OpError {
	return &OpError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
