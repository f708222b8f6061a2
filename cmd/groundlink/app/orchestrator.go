package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roman-kulish/groundlink/internal/events"
	"github.com/roman-kulish/groundlink/internal/telemetry"
)

// Consumer processes an event stream until the channel is closed
type Consumer interface {
	Consume(events <-chan telemetry.Event)
}

// Source produces events until ctx is done. The returned channel is closed once
// it has stopped publishing.
type Source interface {
	Start(ctx context.Context) (<-chan struct{}, error)
}

type consumer struct {
	Consumer
	subscription *events.Subscription
}

// Orchestrator connects a Source to its consumers through an events.Emitter.
// Every consumer is subscribed before the source starts, so none of them misses
// the first events.
type Orchestrator struct {
	emitter   *events.Emitter
	consumers []consumer

	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewOrchestrator creates a new Orchestrator publishing through emitter
func NewOrchestrator(emitter *events.Emitter, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		emitter: emitter,
		logger:  logger,
	}
}

// AddConsumer subscribes c to the emitter under name
func (o *Orchestrator) AddConsumer(name string, c Consumer) error {
	sub, err := o.emitter.Subscribe(name)
	if err != nil {
		return fmt.Errorf("subscribing %s: %w", name, err)
	}

	o.consumers = append(o.consumers, consumer{Consumer: c, subscription: sub})
	return nil
}

// Run starts the consumers and the source, and blocks until the source has
// stopped and every consumer has processed the remaining events
func (o *Orchestrator) Run(ctx context.Context, source Source) error {
	for _, c := range o.consumers {
		o.wg.Add(1)
		go o.consume(c)
	}

	defer o.shutdown()

	done, err := source.Start(ctx)
	if err != nil {
		return fmt.Errorf("starting source: %w", err)
	}

	<-done // Wait for the source goroutine to finish
	return nil
}

func (o *Orchestrator) consume(c consumer) {
	defer o.wg.Done()

	c.Consume(c.subscription.Events())

	// a consumer may return before the stream ends; detach it so the emitter
	// does not wait on a reader that is gone
	c.subscription.Unsubscribe()

	if dropped := c.subscription.Dropped(); dropped > 0 {
		o.logger.Warn("subscriber lagged behind",
			slog.String("subscriber", c.subscription.Name()),
			slog.Uint64("dropped", dropped))
	}
}

// shutdown closes the emitter and waits for the consumers to drain
func (o *Orchestrator) shutdown() {
	o.emitter.Close()
	o.wg.Wait()
}
