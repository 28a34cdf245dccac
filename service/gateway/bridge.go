package gateway

import (
	"context"
	"sync"

	"DPanel/logger"
	"DPanel/service/bus"
	"DPanel/tools/safe"
)

type EventHandler func(ev *DomainEvent)

// Bridge owns the one dedicated bus subscription for inbound domain
// events. Messages parse to DomainEvent or get dropped; registered
// handlers run with panic isolation so one cannot starve the rest or
// kill the bus callback.
type Bridge struct {
	b       bus.Bus
	channel string

	mu       sync.RWMutex
	handlers map[int64]EventHandler
	nextID   int64

	sub      bus.Subscription
	stopOnce sync.Once
}

func NewBridge(b bus.Bus, channel string) *Bridge {
	return &Bridge{
		b:        b,
		channel:  channel,
		handlers: make(map[int64]EventHandler),
	}
}

// EventSubscription removes exactly one handler on Close.
type EventSubscription struct {
	br   *Bridge
	id   int64
	once sync.Once
}

func (s *EventSubscription) Close() {
	s.once.Do(func() {
		s.br.mu.Lock()
		delete(s.br.handlers, s.id)
		s.br.mu.Unlock()
	})
}

func (br *Bridge) OnEvent(h EventHandler) *EventSubscription {
	br.mu.Lock()
	br.nextID++
	id := br.nextID
	br.handlers[id] = h
	br.mu.Unlock()
	return &EventSubscription{br: br, id: id}
}

// Start opens the bus subscription. The bootstrap owns exactly one
// Start/Stop pair for the process lifetime.
func (br *Bridge) Start(ctx context.Context) error {
	sub, err := br.b.Subscribe(ctx, br.channel, br.onMessage)
	if err != nil {
		return err
	}
	br.sub = sub
	logger.Infof("[bridge] subscribed channel=%s", br.channel)
	return nil
}

func (br *Bridge) Stop() {
	br.stopOnce.Do(func() {
		if br.sub != nil {
			_ = br.sub.Close()
		}
	})
}

func (br *Bridge) onMessage(_ string, data []byte) {
	ev, err := ParseDomainEvent(data)
	if err != nil {
		// no originating connection to blame; log and drop
		sample := data
		if len(sample) > 256 {
			sample = sample[:256]
		}
		logger.Infof("[bridge] drop bad event err=%v sample=%q", err, sample)
		return
	}

	br.mu.RLock()
	hs := make([]EventHandler, 0, len(br.handlers))
	for _, h := range br.handlers {
		hs = append(hs, h)
	}
	br.mu.RUnlock()

	for _, h := range hs {
		h := h
		safe.Run("event-handler", func() { h(ev) })
	}
}
