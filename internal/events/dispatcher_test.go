package events

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phamhung075/4genthub-sub028/pkg/observability"
)

// countingSink records deliveries and fails on demand
type countingSink struct {
	calls int
	err   error
}

func (s *countingSink) Notify(event Event) error {
	s.calls++
	return s.err
}

func newTestDispatcher() *Dispatcher {
	return NewDispatcher(observability.NewNoopLogger(), observability.NewNoopMetrics())
}

func TestPublishFiltersByOwner(t *testing.T) {
	d := newTestDispatcher()
	alice := d.Subscribe("alice")
	defer alice.Close()
	bob := d.Subscribe("bob")
	defer bob.Close()

	d.Publish(Event{Type: EventTaskCreated, EntityType: "task", OwnerUserID: "alice"})

	select {
	case event := <-alice.C:
		assert.Equal(t, EventTaskCreated, event.Type)
		assert.False(t, event.Timestamp.IsZero())
	default:
		t.Fatal("owner subscription received nothing")
	}
	select {
	case <-bob.C:
		t.Fatal("event leaked to a non-owner subscription")
	default:
	}
}

func TestSinkBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	d := newTestDispatcher()
	sink := &countingSink{err: errors.New("transport down")}
	d.AddSink("flaky", sink)

	event := Event{Type: EventTaskUpdated, EntityType: "task", OwnerUserID: "alice"}
	for i := 0; i < 5; i++ {
		d.notifySinks(event)
	}
	require.Equal(t, 5, sink.calls)

	// The breaker is open now: further deliveries never reach the sink
	d.notifySinks(event)
	d.notifySinks(event)
	assert.Equal(t, 5, sink.calls)
}

func TestHealthySinkReceivesEveryEvent(t *testing.T) {
	d := newTestDispatcher()
	sink := &countingSink{}
	d.AddSink("stable", sink)

	event := Event{Type: EventContextUpdated, EntityType: "context", OwnerUserID: "alice"}
	for i := 0; i < 10; i++ {
		d.notifySinks(event)
	}
	assert.Equal(t, 10, sink.calls)
}
