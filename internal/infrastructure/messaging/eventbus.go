// Package messaging implements the event bus that fans out committed
// progression events to metrics, cache invalidation and other replicas.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/selfdev-app/selfdev/internal/domain/shared"
	"github.com/selfdev-app/selfdev/pkg/logger"
)

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic is returned when a handler panics.
	ErrHandlerPanic = errors.New("handler panicked")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Bus is an in-process shared.EventBus.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	async       bool
	workerPool  chan struct{}
	log         *logger.Logger
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// BusConfig configures a Bus.
type BusConfig struct {
	// Async runs handlers on a bounded worker pool instead of the caller.
	Async bool

	// Workers bounds concurrent async handlers.
	Workers int

	Logger *logger.Logger
}

// NewBus creates an in-memory event bus.
func NewBus(cfg BusConfig) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Bus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		async:      cfg.Async,
		workerPool: make(chan struct{}, cfg.Workers),
		log:        cfg.Logger.With(logger.Component("event_bus")),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *Bus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *Bus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish delivers the event to every matching handler. Handler errors are
// logged and never returned to the publisher.
func (b *Bus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		if b.async {
			b.executeAsync(event, h)
			continue
		}
		if err := b.execute(event, h); err != nil {
			b.log.Error("handler error", logger.String("event_type", string(event.EventType())), logger.Err(err))
		}
	}
	return nil
}

func (b *Bus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		start := time.Now()
		if err := b.execute(event, handler); err != nil {
			b.log.Error("async handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Latency(time.Since(start)),
				logger.Err(err),
			)
		}
	}()
}

func (b *Bus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
			b.log.Error("handler panic", logger.String("stack", string(debug.Stack())))
		}
	}()
	return handler(event)
}

// Close waits for in-flight async handlers and rejects further use.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DISTRIBUTED EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// Broadcaster carries serialized events between replicas.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, payload []byte) error

	// Listen delivers payloads until ctx is done or the returned stop is called.
	Listen(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// DistributedBus publishes locally and to other replicas through a
// Broadcaster. Events from other replicas are replayed on the local bus.
type DistributedBus struct {
	local       *Bus
	broadcaster Broadcaster
	channel     string
	instanceID  string
	log         *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	stop   func()
	wg     sync.WaitGroup
}

// DistributedBusConfig configures a DistributedBus.
type DistributedBusConfig struct {
	Broadcaster Broadcaster

	// Channel defaults to "selfdev:events".
	Channel    string
	InstanceID string
	Local      BusConfig
	Logger     *logger.Logger
}

// NewDistributedBus starts listening on the broadcast channel.
func NewDistributedBus(cfg DistributedBusConfig) (*DistributedBus, error) {
	if cfg.Broadcaster == nil {
		return nil, errors.New("broadcaster is required")
	}
	if cfg.Channel == "" {
		cfg.Channel = "selfdev:events"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Local.Logger == nil {
		cfg.Local.Logger = cfg.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, stop, err := cfg.Broadcaster.Listen(ctx, cfg.Channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen %s: %w", cfg.Channel, err)
	}

	b := &DistributedBus{
		local:       NewBus(cfg.Local),
		broadcaster: cfg.Broadcaster,
		channel:     cfg.Channel,
		instanceID:  cfg.InstanceID,
		log:         cfg.Logger.With(logger.Component("distributed_bus")),
		ctx:         ctx,
		cancel:      cancel,
		stop:        stop,
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.loop(messages)
	}()
	return b, nil
}

// Subscribe registers a local handler.
func (b *DistributedBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a local handler for all events.
func (b *DistributedBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish broadcasts the event and delivers it locally. A broadcast failure
// is logged; local delivery still happens.
func (b *DistributedBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	data, err := json.Marshal(wireEvent{
		InstanceID:  b.instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.broadcaster.Broadcast(b.ctx, b.channel, data); err != nil {
		b.log.Warn("broadcast failed", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}

	return b.local.Publish(event)
}

func (b *DistributedBus) loop(messages <-chan []byte) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case data, ok := <-messages:
			if !ok {
				return
			}
			b.handleRemote(data)
		}
	}
}

func (b *DistributedBus) handleRemote(data []byte) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		b.log.Error("failed to unmarshal event", logger.Err(err))
		return
	}
	// Own events were already delivered locally.
	if w.InstanceID == b.instanceID {
		return
	}
	if err := b.local.Publish(remoteEvent{w}); err != nil {
		b.log.Error("failed to process remote event", logger.Err(err))
	}
}

// Close stops listening and drains the local bus.
func (b *DistributedBus) Close() error {
	b.cancel()
	b.stop()
	b.wg.Wait()
	return b.local.Close()
}

type wireEvent struct {
	InstanceID  string           `json:"instance_id"`
	EventType   shared.EventType `json:"event_type"`
	AggregateID string           `json:"aggregate_id"`
	OccurredAt  time.Time        `json:"occurred_at"`
	Payload     map[string]any   `json:"payload"`
}

// remoteEvent is an event received from another replica.
type remoteEvent struct {
	w wireEvent
}

func (e remoteEvent) EventType() shared.EventType { return e.w.EventType }
func (e remoteEvent) AggregateID() string         { return e.w.AggregateID }
func (e remoteEvent) OccurredAt() time.Time       { return e.w.OccurredAt }
func (e remoteEvent) Payload() map[string]any     { return e.w.Payload }
