package platform

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RouteDirect selects events arriving over one-to-one channels,
// regardless of their channel id.
const RouteDirect = "@direct"

// HandlerFunc processes one event. Handlers for different events run
// concurrently; all shared state must live in the durable store.
type HandlerFunc func(ctx context.Context, evt Event)

// Observer receives dispatch instrumentation.
type Observer interface {
	ObserveEvent(kind string, duration time.Duration)
	ObservePanic(kind string)
}

type route struct {
	channel string
	kind    EventKind
}

// Dispatcher routes events to handlers keyed by (channel, event kind).
// Each event is handled on its own goroutine so overlap between handler
// executions is explicit.
type Dispatcher struct {
	mu       sync.RWMutex
	routes   map[route]HandlerFunc
	closed   bool
	logger   *zap.Logger
	observer Observer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher. logger and observer may be nil.
func NewDispatcher(logger *zap.Logger, observer Observer) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		routes:   make(map[route]HandlerFunc),
		logger:   logger,
		observer: observer,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handle registers a handler for a channel selector and event kind.
// Later registrations for the same route replace earlier ones.
func (d *Dispatcher) Handle(channelID string, kind EventKind, h HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routes[route{channel: channelID, kind: kind}] = h
}

// Dispatch hands the event to its matching handler on a new goroutine.
// Events with no matching route, or arriving after Close, are dropped
// silently.
func (d *Dispatcher) Dispatch(evt Event) {
	// The wait-group add happens under the same lock Close takes before
	// waiting, so late gateway events cannot race the drain.
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}
	h, ok := d.routes[route{channel: evt.ChannelID, kind: evt.Kind}]
	if !ok && evt.Direct {
		h, ok = d.routes[route{channel: RouteDirect, kind: evt.Kind}]
	}
	if ok {
		d.wg.Add(1)
	}
	d.mu.RUnlock()
	if !ok {
		return
	}

	go d.run(h, evt)
}

func (d *Dispatcher) run(h HandlerFunc, evt Event) {
	defer d.wg.Done()

	dispatchID := uuid.NewString()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				zap.String("dispatch_id", dispatchID),
				zap.String("kind", string(evt.Kind)),
				zap.String("channel_id", evt.ChannelID),
				zap.Any("panic", r),
			)
			if d.observer != nil {
				d.observer.ObservePanic(string(evt.Kind))
			}
			return
		}
		if d.observer != nil {
			d.observer.ObserveEvent(string(evt.Kind), time.Since(start))
		}
	}()

	d.logger.Debug("dispatching event",
		zap.String("dispatch_id", dispatchID),
		zap.String("kind", string(evt.Kind)),
		zap.String("channel_id", evt.ChannelID),
		zap.String("message_id", evt.MessageID),
	)

	h(d.ctx, evt)
}

// Close stops accepting events and waits for in-flight handlers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()
	d.wg.Wait()
}
