package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceStore mirrors "user has a live dashboard session" into Redis
// with TTL keys so the bot process can cheaply check whether anyone is
// watching. Purely ephemeral: keys expire on their own if the gateway
// dies. A nil *PresenceStore is a no-op on every method.
type PresenceStore struct {
	rdb       *redis.Client
	gatewayID string
	ttl       time.Duration
}

type PresenceConfig struct {
	Addr      string
	Password  string
	DB        int
	GatewayID string
	TTL       time.Duration
}

func NewPresenceStore(cfg PresenceConfig) (*PresenceStore, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = 90 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return &PresenceStore{rdb: rdb, gatewayID: cfg.GatewayID, ttl: cfg.TTL}, nil
}

// presence key: dash:presence:<user>
// value: gateway_id, TTL controls the online validity period
func presenceKey(user string) string { return "dash:presence:" + user }

// Online marks the user online and renews the TTL.
func (p *PresenceStore) Online(ctx context.Context, user string) error {
	if p == nil || user == "" {
		return nil
	}
	return p.rdb.Set(ctx, presenceKey(user), p.gatewayID, p.ttl).Err()
}

// Offline deletes the presence key.
func (p *PresenceStore) Offline(ctx context.Context, user string) error {
	if p == nil || user == "" {
		return nil
	}
	return p.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup reports whether any gateway holds a session for the user.
func (p *PresenceStore) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	if p == nil {
		return "", false, nil
	}
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (p *PresenceStore) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
