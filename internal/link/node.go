package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
)

var errChannelClosed = errors.New("channel closed by remote")

// Config describes how to open a MAVLink node
type Config struct {
	Endpoint    string `yaml:"endpoint"`    // Connection string, see ParseEndpoint
	SystemID    uint8  `yaml:"systemID"`    // Our system ID, 255 is customary for ground stations
	ComponentID uint8  `yaml:"componentID"` // Our component ID
	Target      Target `yaml:",inline"`     // Vehicle the requests are addressed to
}

// Validate checks the configuration and fills defaults
func (c *Config) Validate() error {
	if _, err := ParseEndpoint(c.Endpoint); err != nil {
		return fmt.Errorf("link.Config: %w", err)
	}
	if c.SystemID == 0 {
		c.SystemID = 255
	}
	if c.ComponentID == 0 {
		c.ComponentID = 190 // MAV_COMP_ID_MISSIONPLANNER
	}
	if c.Target.SystemID == 0 {
		c.Target.SystemID = 1
	}
	if c.Target.ComponentID == 0 {
		c.Target.ComponentID = 1
	}
	return nil
}

// WithLogger sets the logger for the connection
func WithLogger(logger *slog.Logger) func(c *NodeConn) {
	return func(c *NodeConn) {
		c.logger = logger.With(slog.String("endpoint", c.endpoint))
	}
}

// NodeConn is a Conn backed by a gomavlib node speaking the common dialect
type NodeConn struct {
	endpoint string
	systemID uint8 // frames from other systems are skipped, 0 accepts all
	node     *gomavlib.Node

	closed atomic.Bool
	logger *slog.Logger
}

// NewDialer returns a Dialer opening a NodeConn with the given configuration
func NewDialer(config Config, options ...func(c *NodeConn)) Dialer {
	return func(ctx context.Context) (Conn, error) {
		return Dial(ctx, config, options...)
	}
}

// Dial opens the endpoint and starts the MAVLink node. The node sends ground
// station heartbeats on its own.
func Dial(ctx context.Context, config Config, options ...func(c *NodeConn)) (*NodeConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endpoint, err := ParseEndpoint(config.Endpoint)
	if err != nil {
		return nil, err
	}

	node := &gomavlib.Node{
		Endpoints:      []gomavlib.EndpointConf{endpoint},
		Dialect:        common.Dialect,
		OutVersion:     gomavlib.V2,
		OutSystemID:    config.SystemID,
		OutComponentID: config.ComponentID,
	}
	if err = node.Initialize(); err != nil {
		return nil, NewTransportError(config.Endpoint, fmt.Errorf("creating node: %w", err))
	}

	c := NodeConn{
		endpoint: config.Endpoint,
		systemID: config.Target.SystemID,
		node:     node,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	c.logger.Info("link opened")
	return &c, nil
}

// Receive waits for the next message from the target system
func (c *NodeConn) Receive(ctx context.Context, timeout time.Duration) (message.Message, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timer.C:
			return nil, nil

		case evt, ok := <-c.node.Events():
			if !ok {
				return nil, NewTransportError(c.endpoint, ErrClosed)
			}

			switch e := evt.(type) {
			case *gomavlib.EventFrame:
				if c.systemID != 0 && e.SystemID() != c.systemID {
					continue
				}
				return e.Message(), nil

			case *gomavlib.EventParseError:
				return nil, fmt.Errorf("%w: %w", ErrDecode, e.Error)

			case *gomavlib.EventChannelOpen:
				c.logger.Debug("channel opened")

			case *gomavlib.EventChannelClose:
				return nil, NewTransportError(c.endpoint, errChannelClosed)
			}
		}
	}
}

// Send writes the message to every open channel of the node
func (c *NodeConn) Send(msg message.Message) error {
	if c.closed.Load() {
		return NewTransportError(c.endpoint, ErrClosed)
	}

	if err := c.node.WriteMessageAll(msg); err != nil {
		return fmt.Errorf("writing %T: %w", msg, err)
	}
	return nil
}

// Close stops the node. It is safe to call Close multiple times.
func (c *NodeConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.node.Close()
	c.logger.Info("link closed")
	return nil
}

func (c *NodeConn) Endpoint() string {
	return c.endpoint
}
