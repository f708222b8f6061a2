package events

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/sasha-s/go-deadlock"

	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// DefaultBacklog is the per-subscriber queue capacity
const DefaultBacklog = 4096

// ErrEmitterClosed is returned by Publish after Close
var ErrEmitterClosed = errors.New("emitter is closed")

// WithLogger sets the logger for the emitter
func WithLogger(logger *slog.Logger) func(e *Emitter) {
	return func(e *Emitter) {
		e.logger = logger.With(slog.String("component", "emitter"))
	}
}

// WithBacklog sets how many undelivered events a subscriber may accumulate
// before the oldest ones are dropped
func WithBacklog(backlog int) func(e *Emitter) {
	return func(e *Emitter) {
		e.backlog = backlog
	}
}

// Emitter fans every published event out to all subscribers. Publish never
// blocks on a subscriber: each subscription owns a queue and a goroutine that
// delivers events to its channel in publish order.
type Emitter struct {
	mu     deadlock.Mutex
	subs   []*Subscription
	closed bool

	backlog int
	logger  *slog.Logger
}

// NewEmitter creates a new Emitter instance with a discard logger
func NewEmitter(options ...func(e *Emitter)) *Emitter {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	e := Emitter{
		backlog: DefaultBacklog,
		logger:  logger,
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// Subscribe registers a new subscriber. Events published from now on are
// delivered on Subscription.Events.
func (e *Emitter) Subscribe(name string) (*Subscription, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEmitterClosed
	}

	queue, err := NewQueue(e.backlog)
	if err != nil {
		return nil, err
	}

	s := &Subscription{
		name:    name,
		emitter: e,
		queue:   queue,
		events:  make(chan telemetry.Event),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.subs = append(e.subs, s)

	go s.run()

	e.logger.Debug("subscriber registered", slog.String("subscriber", name))
	return s, nil
}

// Publish queues the event for every subscriber
func (e *Emitter) Publish(evt telemetry.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEmitterClosed
	}

	for _, s := range e.subs {
		dropped, err := s.queue.Push(copyEvent(evt))
		if err != nil {
			continue // subscriber is going away
		}
		if dropped {
			e.logger.Warn("subscriber is too slow, dropped oldest event",
				slog.String("subscriber", s.name),
				slog.Uint64("dropped", s.queue.Dropped()))
		}
		s.notify()
	}

	return nil
}

// Close stops accepting events. Subscribers receive what is already queued,
// after which their channels are closed. Close returns once every subscriber
// has drained its backlog or unsubscribed.
func (e *Emitter) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, s := range subs {
		s.queue.Close()
		s.notify()
	}
	for _, s := range subs {
		<-s.done
	}
}

func (e *Emitter) remove(s *Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subs = slices.DeleteFunc(e.subs, func(x *Subscription) bool { return x == s })
}

// Subscription is a single subscriber of an Emitter
type Subscription struct {
	name    string
	emitter *Emitter
	queue   *Queue

	events   chan telemetry.Event
	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Events returns the delivery channel. It is closed after Unsubscribe or after
// the emitter is closed and the backlog delivered.
func (s *Subscription) Events() <-chan telemetry.Event {
	return s.events
}

// Name returns the subscriber name
func (s *Subscription) Name() string {
	return s.name
}

// Dropped returns the number of events lost because this subscriber lagged
func (s *Subscription) Dropped() uint64 {
	return s.queue.Dropped()
}

// Unsubscribe detaches the subscriber and discards its backlog
func (s *Subscription) Unsubscribe() {
	s.emitter.remove(s)
	s.queue.Close()

	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.events)

	for {
		evt, ok, closed := s.queue.Pop()
		if !ok {
			if closed {
				return
			}

			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		select {
		case s.events <- evt:
		case <-s.stop:
			return
		}
	}
}

// copyEvent gives every subscriber its own copy of mutable payloads
func copyEvent(evt telemetry.Event) telemetry.Event {
	switch e := evt.(type) {
	case *telemetry.Delta:
		return e.Clone()
	case *telemetry.WaypointList:
		return &telemetry.WaypointList{Timestamp: e.Timestamp, Waypoints: slices.Clone(e.Waypoints)}
	default:
		return evt
	}
}
