package bus

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"DPanel/logger"
	"DPanel/tools/safe"
)

// RedisBus carries bus channels over Redis pub/sub. PUBLISH returns the
// receiver count, which is exactly the publish-result heuristic the
// command path wants.
type RedisBus struct {
	rdb *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisBus(cfg RedisConfig) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return &RedisBus{rdb: rdb}, nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, data []byte) (int64, error) {
	n, err := b.rdb.Publish(ctx, channel, data).Result()
	if err != nil {
		return 0, errors.Wrapf(err, "publish %s", channel)
	}
	return n, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel)
	// force the SUBSCRIBE round-trip so a bad connection fails here,
	// not on the first missed message
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errors.Wrapf(err, "subscribe %s", channel)
	}

	sub := &redisSub{ps: ps}
	go func() {
		for msg := range ps.Channel() {
			m := msg
			safe.Run("redis-bus-handler", func() {
				h(m.Channel, []byte(m.Payload))
			})
		}
		logger.Infof("[bus] redis subscription closed channel=%s", channel)
	}()
	return sub, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}

type redisSub struct {
	ps   *redis.PubSub
	once sync.Once
	err  error
}

func (s *redisSub) Close() error {
	s.once.Do(func() { s.err = s.ps.Close() })
	return s.err
}
