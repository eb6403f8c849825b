package platform

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesByChannelAndKind(t *testing.T) {
	d := NewDispatcher(nil, nil)
	defer d.Close()

	var got atomic.Int64
	done := make(chan Event, 1)
	d.Handle("chan-1", EventMessage, func(ctx context.Context, evt Event) {
		got.Add(1)
		done <- evt
	})

	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1", Content: "hello"})

	select {
	case evt := <-done:
		assert.Equal(t, "hello", evt.Content)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	// Same channel, different kind: no route.
	d.Dispatch(Event{Kind: EventReactionAdd, ChannelID: "chan-1"})
	// Different channel: no route.
	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-2"})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), got.Load())
}

func TestDispatcherDirectFallback(t *testing.T) {
	d := NewDispatcher(nil, nil)
	defer d.Close()

	done := make(chan Event, 1)
	d.Handle(RouteDirect, EventMessage, func(ctx context.Context, evt Event) {
		done <- evt
	})

	d.Dispatch(Event{Kind: EventMessage, ChannelID: "dm-9", Direct: true})

	select {
	case evt := <-done:
		assert.Equal(t, "dm-9", evt.ChannelID)
	case <-time.After(time.Second):
		t.Fatal("direct event was not routed")
	}

	// Non-direct events never fall through to the direct route.
	d.Dispatch(Event{Kind: EventMessage, ChannelID: "guild-chan"})
	select {
	case <-done:
		t.Fatal("guild event routed to direct handler")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatcherHandlersOverlap(t *testing.T) {
	d := NewDispatcher(nil, nil)
	defer d.Close()

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	d.Handle("chan-1", EventMessage, func(ctx context.Context, evt Event) {
		wg.Done()
		<-release
	})

	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})
	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		// Both handlers entered before either finished.
	case <-time.After(time.Second):
		t.Fatal("handlers did not run concurrently")
	}
	close(release)
}

type observerStub struct {
	mu      sync.Mutex
	events  []string
	panics  []string
	signal  chan struct{}
	sigOnce sync.Once
}

func newObserverStub() *observerStub {
	return &observerStub{signal: make(chan struct{})}
}

func (o *observerStub) ObserveEvent(kind string, d time.Duration) {
	o.mu.Lock()
	o.events = append(o.events, kind)
	o.mu.Unlock()
	o.sigOnce.Do(func() { close(o.signal) })
}

func (o *observerStub) ObservePanic(kind string) {
	o.mu.Lock()
	o.panics = append(o.panics, kind)
	o.mu.Unlock()
	o.sigOnce.Do(func() { close(o.signal) })
}

func TestDispatcherRecoversFromPanic(t *testing.T) {
	obs := newObserverStub()
	d := NewDispatcher(nil, obs)
	defer d.Close()

	d.Handle("chan-1", EventMessage, func(ctx context.Context, evt Event) {
		panic("boom")
	})

	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})

	select {
	case <-obs.signal:
	case <-time.After(time.Second):
		t.Fatal("panic was not observed")
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	require.Len(t, obs.panics, 1)
	assert.Equal(t, string(EventMessage), obs.panics[0])
	assert.Empty(t, obs.events)
}

func TestDispatcherCloseWaitsForInflight(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var finished atomic.Bool
	entered := make(chan struct{})
	d.Handle("chan-1", EventMessage, func(ctx context.Context, evt Event) {
		close(entered)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
	})

	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})
	<-entered
	d.Close()
	assert.True(t, finished.Load())
}

func TestDispatcherDropsEventsAfterClose(t *testing.T) {
	d := NewDispatcher(nil, nil)

	var invoked atomic.Int64
	d.Handle("chan-1", EventMessage, func(ctx context.Context, evt Event) {
		invoked.Add(1)
	})
	d.Close()

	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), invoked.Load())
}

func TestDispatcherCloseIsSafeUnderConcurrentDispatch(t *testing.T) {
	d := NewDispatcher(nil, nil)
	d.Handle("chan-1", EventMessage, func(ctx context.Context, evt Event) {})

	// A gateway can still deliver events while shutdown is in progress;
	// Close must drain without tripping the wait-group.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})
			}
		}()
	}

	d.Close()
	wg.Wait()

	// The drain is final: nothing runs afterwards.
	d.Dispatch(Event{Kind: EventMessage, ChannelID: "chan-1"})
}
