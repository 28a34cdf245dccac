package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeDeliversParsedEvents(t *testing.T) {
	fb := newFakeBus()
	br := NewBridge(fb, "dpanel:events")
	var got atomic.Value
	br.OnEvent(func(ev *DomainEvent) { got.Store(ev) })
	require.NoError(t, br.Start(context.Background()))

	fb.Emit("dpanel:events", []byte(`{"type":"TICKET_CREATED","guildId":"G1","ticketId":42}`))

	ev, ok := got.Load().(*DomainEvent)
	require.True(t, ok)
	assert.Equal(t, "TICKET_CREATED", ev.Type)
	assert.Equal(t, "G1", ev.GuildID)
	assert.JSONEq(t, `{"type":"TICKET_CREATED","guildId":"G1","ticketId":42}`, string(ev.Raw))
}

func TestBridgeDropsMalformedMessages(t *testing.T) {
	fb := newFakeBus()
	br := NewBridge(fb, "dpanel:events")
	var calls atomic.Int64
	br.OnEvent(func(*DomainEvent) { calls.Add(1) })
	require.NoError(t, br.Start(context.Background()))

	fb.Emit("dpanel:events", []byte(`not json at all`))
	fb.Emit("dpanel:events", []byte(`{"guildId":"G1"}`))                 // missing type
	fb.Emit("dpanel:events", []byte(`{"type":"LEVEL_UP"}`))              // missing guildId
	fb.Emit("dpanel:events", []byte(`{"type":"LEVEL_UP","guildId":"G1"}`)) // fine

	assert.Equal(t, int64(1), calls.Load())
}

func TestBridgeIsolatesHandlerPanics(t *testing.T) {
	fb := newFakeBus()
	br := NewBridge(fb, "dpanel:events")
	var after atomic.Int64
	br.OnEvent(func(*DomainEvent) { panic("boom") })
	br.OnEvent(func(*DomainEvent) { after.Add(1) })
	require.NoError(t, br.Start(context.Background()))

	// must not panic out of the bus callback, and the second handler
	// must still run
	fb.Emit("dpanel:events", []byte(`{"type":"X","guildId":"G1"}`))
	assert.Equal(t, int64(1), after.Load())
}

func TestBridgeSubscriptionCloseRemovesOnlyItself(t *testing.T) {
	fb := newFakeBus()
	br := NewBridge(fb, "dpanel:events")
	var a, b atomic.Int64
	subA := br.OnEvent(func(*DomainEvent) { a.Add(1) })
	br.OnEvent(func(*DomainEvent) { b.Add(1) })
	require.NoError(t, br.Start(context.Background()))

	subA.Close()
	subA.Close() // idempotent
	fb.Emit("dpanel:events", []byte(`{"type":"X","guildId":"G1"}`))

	assert.Equal(t, int64(0), a.Load())
	assert.Equal(t, int64(1), b.Load())
}

func TestServerEventFanoutEndToEnd(t *testing.T) {
	fb := newFakeBus()
	s := newTestServer(fb, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(context.Background())

	sub1 := newFakeTransport()
	sub2 := newFakeTransport()
	other := newFakeTransport()
	c1 := s.Registry().Add(sub1)
	c2 := s.Registry().Add(sub2)
	c3 := s.Registry().Add(other)
	require.NoError(t, dispatch(s, c1, `{"type":"auth","token":"T1","guildId":"G1"}`))
	require.NoError(t, dispatch(s, c2, `{"type":"auth","token":"T2","guildId":"G1"}`))
	require.NoError(t, dispatch(s, c3, `{"type":"auth","token":"T1","guildId":"G2"}`))

	fb.Emit("dpanel:events", []byte(`{"type":"TICKET_CREATED","guildId":"G1"}`))

	want := `{"type":"event","event":{"type":"TICKET_CREATED","guildId":"G1"}}`
	for _, ft := range []*fakeTransport{sub1, sub2} {
		ft := ft
		require.Eventually(t, func() bool {
			frames := ft.sent()
			return len(frames) == 3 // authenticated, subscribed, event
		}, time.Second, 5*time.Millisecond)
		assert.JSONEq(t, want, ft.sent()[2])
	}

	// G2 subscriber never sees the G1 event
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, other.sent(), 2)
}

func TestServerFanoutAfterUnsubscribe(t *testing.T) {
	fb := newFakeBus()
	s := newTestServer(fb, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(context.Background())

	ft := newFakeTransport()
	c := s.Registry().Add(ft)
	require.NoError(t, dispatch(s, c, `{"type":"auth","token":"T1","guildId":"G1"}`))
	require.NoError(t, dispatch(s, c, `{"type":"unsubscribe","guildId":"G1"}`))

	fb.Emit("dpanel:events", []byte(`{"type":"RULE_UPDATED","guildId":"G1"}`))

	time.Sleep(20 * time.Millisecond)
	// authenticated, subscribed, unsubscribed — and nothing after
	assert.Len(t, ft.sent(), 3)
}

func TestServerShutdownDrains(t *testing.T) {
	fb := newFakeBus()
	s := newTestServer(fb, nil)
	require.NoError(t, s.Start(context.Background()))

	ft := newFakeTransport()
	c := s.Registry().Add(ft)
	require.NoError(t, dispatch(s, c, `{"type":"auth","token":"T1","guildId":"G1"}`))

	s.Shutdown(context.Background())

	assert.Equal(t, 0, s.Registry().Size())
	closed, _, reason := ft.isClosed()
	require.True(t, closed)
	assert.Equal(t, "server shutdown", reason)

	// events after shutdown reach nobody and must not panic
	fb.Emit("dpanel:events", []byte(`{"type":"X","guildId":"G1"}`))
}
