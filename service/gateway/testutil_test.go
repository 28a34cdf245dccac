package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"DPanel/service/bus"
)

// fakeTransport records frames instead of writing a socket.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	writable bool
	sendErr  error
	closed   bool
	code     int
	reason   string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{writable: true}
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.frames = append(t.frames, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Writable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writable && !t.closed
}

func (t *fakeTransport) Close(code int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.code = code
	t.reason = reason
}

func (t *fakeTransport) sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.frames))
	for i, f := range t.frames {
		out[i] = string(f)
	}
	return out
}

func (t *fakeTransport) isClosed() (bool, int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed, t.code, t.reason
}

// fakeBus is an in-process bus: Emit drives subscribed handlers,
// Publish records and reports a configurable receiver count.
type fakeBus struct {
	mu        sync.Mutex
	subs      map[string][]bus.Handler
	published map[string][][]byte
	receivers int64
	pubErr    error
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		subs:      make(map[string][]bus.Handler),
		published: make(map[string][][]byte),
		receivers: 1,
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, data []byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubErr != nil {
		return 0, b.pubErr
	}
	b.published[channel] = append(b.published[channel], append([]byte(nil), data...))
	return b.receivers, nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string, h bus.Handler) (bus.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[channel] = append(b.subs[channel], h)
	return fakeSub{}, nil
}

func (b *fakeBus) Close() error { return nil }

func (b *fakeBus) Emit(channel string, data []byte) {
	b.mu.Lock()
	hs := append([]bus.Handler(nil), b.subs[channel]...)
	b.mu.Unlock()
	for _, h := range hs {
		h(channel, data)
	}
}

func (b *fakeBus) publishedOn(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[channel]...)
}

type fakeSub struct{}

func (fakeSub) Close() error { return nil }

// manualClock steps time by hand for liveness tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBadToken = errors.New("bad token")

// tokenTable resolves fixed tokens to user IDs.
func tokenTable(m map[string]string) TokenVerifier {
	return TokenVerifierFunc(func(_ context.Context, token string) (string, error) {
		if u, ok := m[token]; ok {
			return u, nil
		}
		return "", errBadToken
	})
}

func newTestServer(b bus.Bus, clock func() time.Time) *Server {
	return NewServer(Options{
		GatewayID:      "gw-test",
		Bus:            b,
		EventChannel:   "dpanel:events",
		CommandChannel: "dpanel:commands",
		Verifier:       tokenTable(map[string]string{"T1": "U1", "T2": "U2"}),
		SweepEvery:     30 * time.Second,
		IdleTimeout:    60 * time.Second,
		SendQueueSize:  16,
		FanoutWorkers:  2,
		FanoutQueue:    64,
		Clock:          clock,
	})
}

// dispatch runs one inbound frame through the registered handler, the
// same way the read loop does.
func dispatch(s *Server, c *Conn, raw string) error {
	f, err := ParseClientFrame([]byte(raw))
	if err != nil {
		_ = c.Transport.Send(BuildError("Invalid message format"))
		return nil
	}
	h := s.Disp().GetHandler(f.Type)
	if h == nil {
		return nil
	}
	return h.Handle(context.Background(), &Context{S: s}, f, c)
}
