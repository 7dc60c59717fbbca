package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meridian-data/catalog-engine/pkg/models"
)

// Bus fans committed change events out to subscriptions. One producer (the
// mutation commit path) appends; each subscription drains its own ordered
// queue on a dedicated consumer goroutine, so a slow or backing-off
// subscription never blocks the producer or its peers.
type Bus struct {
	transport  Transport
	sink       StatusSink
	maxRetries int
	logger     *zap.Logger

	// baseCtx is the lifetime of all consumers and carries the database
	// handle status writes need.
	baseCtx context.Context

	registry *Registry
}

// NewBus creates an event bus. baseCtx bounds the lifetime of every consumer
// it spawns; transport may be nil to use a fresh HTTP transport per
// subscription timeout.
func NewBus(baseCtx context.Context, transport Transport, sink StatusSink, maxRetries int, logger *zap.Logger) *Bus {
	return &Bus{
		transport:  transport,
		sink:       sink,
		maxRetries: maxRetries,
		logger:     logger.Named("event-bus"),
		baseCtx:    baseCtx,
		registry:   NewRegistry(),
	}
}

// Publish hands one committed event to every subscription whose filters
// select it. Never blocks: enqueueing is an append plus a non-blocking wake.
func (b *Bus) Publish(event models.ChangeEvent) {
	for _, c := range b.registry.All() {
		if !Matches(c.sub.EventFilters, event) {
			continue
		}
		c.enqueue(event)
	}
}

// Subscribe registers a subscription and starts its consumer. A subscription
// already registered under the same id is stopped and replaced, which resets
// its backoff state; events arriving during the swap go to the new consumer.
func (b *Bus) Subscribe(sub *models.EventSubscription) {
	c := b.newConsumer(sub)
	if prev := b.registry.Register(sub.ID, c); prev != nil {
		prev.stop(5 * time.Second)
	}
	go c.run()
	b.logger.Info("Subscription registered",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("name", sub.Name))
}

// Unsubscribe stops a subscription's consumer and forgets it. In-flight
// delivery is cancelled; no stale attempt outlives the removal.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	c := b.registry.Unregister(id)
	if c == nil {
		return
	}
	c.stop(5 * time.Second)
	b.logger.Info("Subscription removed", zap.String("subscription_id", id.String()))
}

// Shutdown stops every consumer, awaiting each with the bounded timeout and
// proceeding regardless. Best-effort graceful.
func (b *Bus) Shutdown(timeout time.Duration) {
	for _, c := range b.registry.Drain() {
		c.stop(timeout)
	}
	b.logger.Info("Event bus stopped")
}

func (b *Bus) newConsumer(sub *models.EventSubscription) *consumer {
	transport := b.transport
	if transport == nil {
		transport = NewHTTPTransport(sub.Timeout())
	}
	ctx, cancel := context.WithCancel(b.baseCtx)
	return &consumer{
		sub:    sub,
		pub:    NewPublisher(sub, transport, b.sink, b.maxRetries, b.logger),
		bus:    b,
		ctx:    ctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// consumer owns one subscription's ordered pending queue and delivery loop.
type consumer struct {
	sub *models.EventSubscription
	pub *Publisher
	bus *Bus

	mu      sync.Mutex
	pending []models.ChangeEvent

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *consumer) enqueue(event models.ChangeEvent) {
	c.mu.Lock()
	c.pending = append(c.pending, event)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run drains the pending queue batch by batch, in commit order. A batch is
// removed from the queue only after its delivery is acknowledged, so a crash
// of the loop re-delivers rather than drops (at-least-once). A terminal
// delivery outcome halts the consumer and deregisters it.
func (c *consumer) run() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.wake:
		}

		for {
			batch := c.peekBatch()
			if len(batch) == 0 {
				break
			}

			if err := c.pub.Deliver(c.ctx, batch); err != nil {
				if c.ctx.Err() != nil {
					return
				}
				// Terminal failure or retry ceiling: stop consuming and
				// drop out of the registry so no further events queue up
				// behind a dead endpoint.
				go c.bus.Unsubscribe(c.sub.ID)
				return
			}
			c.ackBatch(len(batch))
		}
	}
}

// peekBatch returns up to one batch of pending events without removing them.
func (c *consumer) peekBatch() []models.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.sub.Batch()
	if n > len(c.pending) {
		n = len(c.pending)
	}
	if n == 0 {
		return nil
	}
	batch := make([]models.ChangeEvent, n)
	copy(batch, c.pending[:n])
	return batch
}

func (c *consumer) ackBatch(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = c.pending[n:]
}

// stop signals the consumer and waits for it up to the timeout.
func (c *consumer) stop(timeout time.Duration) {
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(timeout):
	}
}
