package engine

import (
	"context"
	"errors"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/roman-kulish/groundlink/internal/link"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

var errReset = errors.New("connection reset by peer")

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// step is one scripted Receive result. The clock moves by advance first.
type step struct {
	advance time.Duration
	msg     message.Message
	err     error
}

type fakeConn struct {
	clock  *fakeClock
	steps  []step
	sent   []message.Message
	closed bool
	done   func() // called when the script runs out

	sendErr func(msg message.Message) error // nil sends always succeed
}

func (c *fakeConn) Receive(ctx context.Context, _ time.Duration) (message.Message, error) {
	if len(c.steps) == 0 {
		c.done()
		return nil, ctx.Err()
	}

	st := c.steps[0]
	c.steps = c.steps[1:]
	c.clock.Advance(st.advance)
	return st.msg, st.err
}

func (c *fakeConn) Send(msg message.Message) error {
	c.sent = append(c.sent, msg)
	if c.sendErr != nil {
		return c.sendErr(msg)
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func (c *fakeConn) Endpoint() string { return "fake" }

// fakeDialer hands out conns in order and stops the run once they are used up
type fakeDialer struct {
	conns  []*fakeConn
	dialed int
	cancel context.CancelFunc
}

func (d *fakeDialer) Dial(ctx context.Context) (link.Conn, error) {
	if d.dialed >= len(d.conns) {
		d.cancel()
		return nil, errors.New("no more connections")
	}

	c := d.conns[d.dialed]
	c.done = d.cancel
	d.dialed++
	return c, nil
}

type recorder struct {
	events []telemetry.Event
}

func (r *recorder) Publish(evt telemetry.Event) error {
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) deltas() []*telemetry.Delta {
	var out []*telemetry.Delta
	for _, evt := range r.events {
		if d, ok := evt.(*telemetry.Delta); ok {
			out = append(out, d)
		}
	}
	return out
}

func (r *recorder) health() []*telemetry.HealthEvent {
	var out []*telemetry.HealthEvent
	for _, evt := range r.events {
		if h, ok := evt.(*telemetry.HealthEvent); ok {
			out = append(out, h)
		}
	}
	return out
}

func (r *recorder) waypointLists() []*telemetry.WaypointList {
	var out []*telemetry.WaypointList
	for _, evt := range r.events {
		if l, ok := evt.(*telemetry.WaypointList); ok {
			out = append(out, l)
		}
	}
	return out
}

func (r *recorder) logs() []*telemetry.LogEvent {
	var out []*telemetry.LogEvent
	for _, evt := range r.events {
		if l, ok := evt.(*telemetry.LogEvent); ok {
			out = append(out, l)
		}
	}
	return out
}

// harness runs an engine synchronously over scripted connections
type harness struct {
	clock  *fakeClock
	dialer *fakeDialer
	rec    *recorder
	sleeps []time.Duration
}

func newHarness(scripts ...[]step) *harness {
	h := harness{
		clock:  newFakeClock(),
		dialer: &fakeDialer{},
		rec:    &recorder{},
	}
	for _, s := range scripts {
		h.dialer.conns = append(h.dialer.conns, &fakeConn{clock: h.clock, steps: s})
	}
	return &h
}

func (h *harness) run(options ...func(e *Engine)) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.dialer.cancel = cancel

	options = append([]func(e *Engine){
		WithClock(h.clock.Now),
		WithSleeper(func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			h.clock.Advance(d)
			return nil
		}),
		WithItemRequestInterval(0),
	}, options...)

	e := New(h.dialer.Dial, link.Target{SystemID: 1, ComponentID: 1}, h.rec, options...)
	_ = e.Run(ctx)
}

func (h *harness) sent(conn int) []message.Message {
	return h.dialer.conns[conn].sent
}
