// Package link provides the connection handle the engine reads decoded MAVLink
// messages from and writes requests to.
package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

var (
	// ErrClosed is returned when using a connection after Close
	ErrClosed = errors.New("connection closed")

	// ErrDecode marks a frame the codec could not turn into a message. It is not
	// a transport failure: the connection is still usable.
	ErrDecode = errors.New("decode error")
)

// Conn is a connected, exclusively owned MAVLink connection handle.
type Conn interface {
	// Receive waits up to timeout for the next message. A nil message with a nil
	// error means the timeout expired without traffic.
	Receive(ctx context.Context, timeout time.Duration) (message.Message, error)

	// Send writes a message to the vehicle
	Send(msg message.Message) error

	// Close releases the underlying transport
	Close() error

	// Endpoint returns a human-readable description of the transport
	Endpoint() string
}

// Dialer opens a new connection handle. The engine calls it again after a
// transport failure.
type Dialer func(ctx context.Context) (Conn, error)

// Target addresses outbound requests to a system/component pair
type Target struct {
	SystemID    uint8 `yaml:"targetSystem"`
	ComponentID uint8 `yaml:"targetComponent"`
}

// TransportError is a failure of the underlying socket or serial port
type TransportError struct {
	Endpoint string
	Err      error
}

func NewTransportError(endpoint string, err error) *TransportError {
	return &TransportError{Endpoint: endpoint, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %s", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err should be handled by reconnecting
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te) || errors.Is(err, ErrClosed)
}
