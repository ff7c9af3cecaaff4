package events

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// Subscription is a live event stream for one authenticated user
type Subscription struct {
	UserID string
	C      chan Event

	dispatcher *Dispatcher
	id         uint64
}

// Close unregisters the subscription
func (s *Subscription) Close() {
	s.dispatcher.unsubscribe(s.id)
}

// Dispatcher fans events out to per-user subscriptions and to external
// sinks. External sinks sit behind a circuit breaker so a failing
// transport cannot stall the write path.
type Dispatcher struct {
	logger  observability.Logger
	metrics observability.MetricsClient

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64

	sinks []sinkEntry
}

type sinkEntry struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker
}

// NewDispatcher creates an event dispatcher
func NewDispatcher(logger observability.Logger, metrics observability.MetricsClient) *Dispatcher {
	return &Dispatcher{
		logger:  logger.WithPrefix("events"),
		metrics: metrics,
		subs:    make(map[uint64]*Subscription),
	}
}

// AddSink registers an external sink behind a circuit breaker
func (d *Dispatcher) AddSink(name string, sink Sink) {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	d.mu.Lock()
	d.sinks = append(d.sinks, sinkEntry{sink: sink, breaker: breaker})
	d.mu.Unlock()
}

// Subscribe registers a stream for userID. Events are delivered
// best-effort: a slow consumer loses events instead of blocking writers.
func (d *Dispatcher) Subscribe(userID string) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	sub := &Subscription{
		UserID:     userID,
		C:          make(chan Event, 64),
		dispatcher: d,
		id:         d.nextID,
	}
	d.subs[sub.id] = sub
	return sub
}

func (d *Dispatcher) unsubscribe(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sub, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(sub.C)
	}
}

// Publish delivers an event to the owner's subscriptions and to external
// sinks. It never blocks and never returns an error.
func (d *Dispatcher) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	d.metrics.IncrementCounter("events_published", 1, map[string]string{
		"type": string(event.Type),
	})

	d.mu.RLock()
	for _, sub := range d.subs {
		// Ownership filter: an event is only ever delivered to the
		// resource owner
		if sub.UserID != event.OwnerUserID {
			continue
		}
		select {
		case sub.C <- event:
		default:
			d.metrics.IncrementCounter("events_dropped", 1, map[string]string{
				"type": string(event.Type),
			})
		}
	}
	d.mu.RUnlock()

	go d.notifySinks(event)
}

// notifySinks delivers one event to every external sink. Each sink's
// delivery error feeds its breaker; an open breaker skips the sink until
// the timeout elapses.
func (d *Dispatcher) notifySinks(event Event) {
	d.mu.RLock()
	sinks := make([]sinkEntry, len(d.sinks))
	copy(sinks, d.sinks)
	d.mu.RUnlock()

	for _, entry := range sinks {
		_, err := entry.breaker.Execute(func() (interface{}, error) {
			return nil, entry.sink.Notify(event)
		})
		if err != nil {
			d.metrics.IncrementCounter("event_sink_failures", 1, map[string]string{
				"sink": entry.breaker.Name(),
			})
			d.logger.Warn("Event sink delivery failed", map[string]interface{}{
				"sink":  entry.breaker.Name(),
				"type":  string(event.Type),
				"error": err.Error(),
			})
		}
	}
}
