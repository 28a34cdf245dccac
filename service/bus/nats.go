package bus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"DPanel/tools/safe"
)

// NatsBus carries bus channels over NATS core subjects. NATS does not
// report receiver counts, so Publish reports one receiver on success.
type NatsBus struct {
	nc *nats.Conn
}

type NatsConfig struct {
	Servers       []string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

func NewNatsBus(cfg NatsConfig) (*NatsBus, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(_ context.Context, channel string, data []byte) (int64, error) {
	msg := nats.NewMsg(channel)
	msg.Data = data
	if err := b.nc.PublishMsg(msg); err != nil {
		return 0, errors.Wrapf(err, "publish %s", channel)
	}
	// best effort: core NATS gives no receiver count
	return 1, nil
}

func (b *NatsBus) Subscribe(_ context.Context, channel string, h Handler) (Subscription, error) {
	sub, err := b.nc.Subscribe(channel, func(m *nats.Msg) {
		data := append([]byte(nil), m.Data...)
		safe.Run("nats-bus-handler", func() {
			h(m.Subject, data)
		})
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", channel)
	}
	_ = sub.SetPendingLimits(1_000_000, 64*1024*1024)
	return &natsSub{sub: sub}, nil
}

func (b *NatsBus) Close() error {
	return b.nc.Drain()
}

type natsSub struct {
	sub  *nats.Subscription
	once sync.Once
	err  error
}

func (s *natsSub) Close() error {
	s.once.Do(func() { s.err = s.sub.Drain() })
	return s.err
}
