// Package engine runs the MAVLink ingestion loop: it reads messages from a
// link, keeps the vehicle session, derives telemetry and publishes it as events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/roman-kulish/groundlink/internal/link"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

const (
	// DefaultReceiveTimeout bounds a single receive, and so how late the watchdog
	// and a stop request can be noticed
	DefaultReceiveTimeout = 500 * time.Millisecond

	minReceiveWindow = time.Millisecond

	homePositionMessageID = 242
)

// ErrAlreadyRunning is returned when starting an engine twice
var ErrAlreadyRunning = errors.New("engine is already running")

// Publisher receives every event the engine produces, in order. It must not block.
type Publisher interface {
	Publish(evt telemetry.Event) error
}

// Clock returns the current time
type Clock func() time.Time

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(e *Engine) {
	return func(e *Engine) {
		e.logger = logger.With(slog.String("component", "engine"))
	}
}

// WithReceiveTimeout sets the longest time a single receive may block
func WithReceiveTimeout(timeout time.Duration) func(e *Engine) {
	return func(e *Engine) {
		e.receiveTimeout = timeout
	}
}

// WithHeartbeatTimeout sets how long the vehicle may stay silent before the link
// is reported unhealthy
func WithHeartbeatTimeout(timeout time.Duration) func(e *Engine) {
	return func(e *Engine) {
		e.watchdog.timeout = timeout
	}
}

// WithItemRequestInterval sets the pacing between mission item requests
func WithItemRequestInterval(interval time.Duration) func(e *Engine) {
	return func(e *Engine) {
		e.mission.interval = interval
	}
}

// WithItemRetry sets how long a mission download may stall before missing items
// are requested again, and how many times
func WithItemRetry(timeout time.Duration, retries int) func(e *Engine) {
	return func(e *Engine) {
		e.mission.retryTimeout = timeout
		e.mission.retries = retries
	}
}

// WithClock replaces the wall clock
func WithClock(clock Clock) func(e *Engine) {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithSleeper replaces the reconnect backoff sleep
func WithSleeper(sleeper Sleeper) func(e *Engine) {
	return func(e *Engine) {
		e.sleep = sleeper
	}
}

// Engine owns one vehicle connection. A single goroutine reads the link, updates
// the Session and publishes the derived events; nothing else touches either.
type Engine struct {
	dialer    link.Dialer
	target    link.Target
	publisher Publisher

	receiveTimeout time.Duration
	watchdog       watchdog
	mission        missionFetcher
	session        *Session
	decoder        decoder

	clock Clock
	sleep Sleeper

	isRunning atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *slog.Logger
}

// New creates an engine reading from connections opened by dialer. Requests are
// addressed to target and events go to publisher.
func New(dialer link.Dialer, target link.Target, publisher Publisher, options ...func(e *Engine)) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	e := Engine{
		dialer:         dialer,
		target:         target,
		publisher:      publisher,
		receiveTimeout: DefaultReceiveTimeout,
		watchdog:       watchdog{timeout: DefaultHeartbeatTimeout},
		mission: missionFetcher{
			interval:     DefaultItemRequestInterval,
			retryTimeout: DefaultItemRetryTimeout,
			retries:      DefaultItemRetries,
		},
		clock:  time.Now,
		sleep:  sleepContext,
		logger: logger,
	}

	for _, option := range options {
		option(&e)
	}

	return &e
}

// Start runs the ingestion loop in the background. The returned channel is
// closed once the loop has exited and released the connection.
func (e *Engine) Start(ctx context.Context) (<-chan struct{}, error) {
	if !e.isRunning.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	e.mu.Lock()
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	stopped := make(chan struct{})

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(stopped)
		defer e.isRunning.Store(false)

		e.logger.Info("starting telemetry ingestion...")
		e.run(ctx)
		e.logger.Info("telemetry ingestion stopped")
	}()

	return stopped, nil
}

// Run is the blocking form of Start. It returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if !e.isRunning.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.isRunning.Store(false)

	e.run(ctx)
	return nil
}

// Stop cancels the loop started with Start and waits for it to exit
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	e.session = NewSession(e.clock())
	e.mission.state = MissionIdle
	e.mission.pending = nil
	e.decoder = decoder{session: e.session, mission: &e.mission}

	conn, linkErr := e.dialer(ctx)
	if linkErr == nil {
		e.emit(&telemetry.HealthEvent{Healthy: true, Reason: "Connected", Timestamp: e.clock()})
		e.requestInitial(conn)
	}

	defer func() {
		if conn != nil {
			e.closeConn(conn)
		}
	}()

	for ctx.Err() == nil {
		now := e.clock()

		if evt := e.watchdog.check(e.session, now); evt != nil {
			e.emit(evt)
			e.emitLog(telemetry.SeverityError, evt.Reason, now)
		}

		if linkErr != nil {
			conn, linkErr = e.reconnect(ctx, conn, linkErr)
			continue
		}

		e.requestDue(conn, now)

		msg, err := conn.Receive(ctx, e.receiveWindow(now))
		switch {
		case ctx.Err() != nil:
		case link.IsTransport(err):
			linkErr = err
		case err != nil:
			// decode and other per-message errors leave the link up
			e.emitLog(telemetry.SeverityDebug, err.Error(), e.clock())
		case msg != nil:
			e.session.ReconnectAttempts = 0
			e.handle(conn, msg, e.clock())
		}
	}
}

// handle runs one message through the watchdog, decoder and aggregator and
// publishes the results
func (e *Engine) handle(conn link.Conn, msg message.Message, now time.Time) {
	if _, ok := msg.(*common.MessageHeartbeat); ok {
		if evt := e.watchdog.beat(e.session, now); evt != nil {
			e.emit(evt)
			e.emitLog(telemetry.SeverityDebug, evt.Reason, now)
		}
	}

	out, err := e.decoder.decode(msg, now)
	if err != nil {
		e.emitLog(telemetry.SeverityDebug, fmt.Sprintf("Skipped message: %s", err), now)
		return
	}

	for _, l := range out.logs {
		e.emit(l)
	}

	aggregate(e.session, out.delta)
	if !out.delta.Empty() {
		e.emit(out.delta)
	}

	if out.waypoints != nil {
		e.emit(out.waypoints)
		e.logger.Info("mission downloaded", slog.Int("waypoints", len(out.waypoints.Waypoints)))

		e.send(conn, &common.MessageMissionAck{
			TargetSystem:    e.target.SystemID,
			TargetComponent: e.target.ComponentID,
			Type:            common.MAV_MISSION_ACCEPTED,
		}, "acknowledging mission")
	}
}

// reconnect applies the backoff and replaces the connection. It returns the new
// connection, or the error that keeps the link down.
func (e *Engine) reconnect(ctx context.Context, conn link.Conn, cause error) (link.Conn, error) {
	s := e.session
	now := e.clock()

	if s.Healthy {
		s.Healthy = false
		e.emit(&telemetry.HealthEvent{Healthy: false, Reason: fmt.Sprintf("Connection error: %s", cause), Timestamp: now})
	}

	s.ReconnectAttempts++
	delay := Backoff(s.ReconnectAttempts)

	e.logger.Warn("link failed, reconnecting",
		slog.Any("error", cause),
		slog.Int("attempt", s.ReconnectAttempts),
		slog.Duration("backoff", delay))
	e.emitLog(telemetry.SeverityError, fmt.Sprintf("Connection error: %s, reconnecting in %s", cause, delay), now)

	if err := e.sleep(ctx, delay); err != nil {
		return conn, err
	}

	if conn != nil {
		e.closeConn(conn)
	}

	next, err := e.dialer(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("link reopened", slog.String("endpoint", next.Endpoint()))
	s.LastHeartbeat = e.clock()
	e.requestInitial(next)
	return next, nil
}

// requestInitial asks for the mission list and the home position
func (e *Engine) requestInitial(conn link.Conn) {
	e.mission.requestList()

	e.send(conn, &common.MessageMissionRequestList{
		TargetSystem:    e.target.SystemID,
		TargetComponent: e.target.ComponentID,
	}, "requesting mission list")

	e.send(conn, &common.MessageCommandLong{
		TargetSystem:    e.target.SystemID,
		TargetComponent: e.target.ComponentID,
		Command:         common.MAV_CMD_REQUEST_MESSAGE,
		Param1:          homePositionMessageID,
	}, "requesting home position")
}

// requestDue sends the mission item requests whose time has come
func (e *Engine) requestDue(conn link.Conn, now time.Time) {
	if evt := e.mission.retry(e.session, now); evt != nil {
		e.emit(evt)
	}

	for {
		seq, ok := e.mission.next(e.session, now)
		if !ok {
			return
		}

		e.send(conn, &common.MessageMissionRequestInt{
			TargetSystem:    e.target.SystemID,
			TargetComponent: e.target.ComponentID,
			Seq:             uint16(seq),
		}, fmt.Sprintf("requesting waypoint %d", seq))
	}
}

// receiveWindow shortens the receive timeout so queued requests go out on time
func (e *Engine) receiveWindow(now time.Time) time.Duration {
	window := e.receiveTimeout
	if d, ok := e.mission.wait(now); ok && d < window {
		window = d
	}
	return max(window, minReceiveWindow)
}

// send writes a request. Failures are reported but never stop the loop; a dead
// link is detected by the next receive.
func (e *Engine) send(conn link.Conn, msg message.Message, what string) {
	if err := conn.Send(msg); err != nil {
		e.logger.Error(what, slog.Any("error", err))
		e.emitLog(telemetry.SeverityError, fmt.Sprintf("Error %s: %s", what, err), e.clock())
	}
}

func (e *Engine) closeConn(conn link.Conn) {
	if err := conn.Close(); err != nil {
		e.logger.Warn("closing link", slog.Any("error", err))
	}
}

func (e *Engine) emitLog(severity telemetry.Severity, text string, now time.Time) {
	e.emit(&telemetry.LogEvent{Severity: severity, Text: text, Timestamp: now})
}

func (e *Engine) emit(evt telemetry.Event) {
	if err := e.publisher.Publish(evt); err != nil {
		e.logger.Debug("event not published", slog.String("kind", string(evt.Kind())), slog.Any("error", err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
