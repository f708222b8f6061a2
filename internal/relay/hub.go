// Package relay streams engine events to browsers and external displays over
// websockets.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 256
	writeTimeout      = 5 * time.Second

	typeSnapshot = "snapshot"
)

// ErrHubStopped is returned when broadcasting after the hub stopped running
var ErrHubStopped = errors.New("relay hub is stopped")

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  socketBufferSize,
	WriteBufferSize: socketBufferSize,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// State is what a newly connected client receives before the live stream
type State interface {
	Get() *telemetry.Telemetry
	Waypoints() []telemetry.Waypoint
	Healthy() bool
}

// envelope is the wire format of every relayed message
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type snapshot struct {
	Healthy   bool                 `json:"healthy"`
	Telemetry *telemetry.Telemetry `json:"telemetry"`
	Waypoints []telemetry.Waypoint `json:"waypoints"`
}

// WithLogger sets the logger for the hub
func WithLogger(logger *slog.Logger) func(h *Hub) {
	return func(h *Hub) {
		h.logger = logger.With(slog.String("component", "relay"))
	}
}

// WithState sends the current vehicle state to every client when it connects
func WithState(state State) func(h *Hub) {
	return func(h *Hub) {
		h.state = state
	}
}

// Hub fans encoded events out to the connected websocket clients. A client that
// cannot keep up loses messages rather than slowing the others down.
type Hub struct {
	forward chan []byte
	join    chan *client
	leave   chan *client
	clients map[*client]bool
	done    chan struct{}

	state  State
	logger *slog.Logger
}

// NewHub makes a new hub that is ready to Run
func NewHub(options ...func(h *Hub)) *Hub {
	h := Hub{
		forward: make(chan []byte),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&h)
	}

	return &h
}

// Run serves joins, leaves and broadcasts until ctx is done, then disconnects
// every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.join:
			h.clients[c] = true
			if msg, err := h.snapshot(); err != nil {
				h.logger.Error("encoding snapshot", slog.Any("error", err))
			} else {
				c.send <- msg
			}
			h.logger.Info("client joined", slog.String("remote", c.remote), slog.Int("clients", len(h.clients)))

		case c := <-h.leave:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Info("client left", slog.String("remote", c.remote), slog.Int("clients", len(h.clients)))

		case msg := <-h.forward:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("client is too slow, message dropped", slog.String("remote", c.remote))
				}
			}
		}
	}
}

// Broadcast encodes the event and forwards it to every client
func (h *Hub) Broadcast(evt telemetry.Event) error {
	msg, err := json.Marshal(envelope{Type: string(evt.Kind()), Data: evt})
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", evt.Kind(), err)
	}

	select {
	case h.forward <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Consume broadcasts events until the channel is closed. Events arriving after
// the hub stopped are discarded.
func (h *Hub) Consume(events <-chan telemetry.Event) {
	for evt := range events {
		if err := h.Broadcast(evt); err != nil && !errors.Is(err, ErrHubStopped) {
			h.logger.Error("broadcasting event", slog.Any("error", err))
		}
	}
}

func (h *Hub) snapshot() ([]byte, error) {
	s := snapshot{Waypoints: []telemetry.Waypoint{}}
	if h.state != nil {
		s.Healthy = h.state.Healthy()
		s.Telemetry = h.state.Get()
		if wps := h.state.Waypoints(); wps != nil {
			s.Waypoints = wps
		}
	}
	return json.Marshal(envelope{Type: typeSnapshot, Data: s})
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Error("upgrading connection", slog.Any("error", err))
		return
	}

	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		remote: req.RemoteAddr,
	}

	select {
	case h.join <- c:
	case <-h.done:
		_ = socket.Close()
		return
	}

	go c.write(h.logger)
	c.read()

	select {
	case h.leave <- c:
	case <-h.done:
	}
}
