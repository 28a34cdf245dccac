package global

import (
	"os"
	"strconv"
	"strings"
	"time"

	"DPanel/tools/ids"
)

// AppConfig is the whole configuration surface of the gateway process.
// Everything comes from env with workable local-dev defaults.
type AppConfig struct {
	GatewayID  string
	ListenAddr string
	WSPath     string

	BusKind     string // "redis" | "nats"
	RedisAddr   string
	RedisPass   string
	RedisDB     int
	NatsServers []string

	EventChannel   string // bot -> gateway domain events
	CommandChannel string // gateway -> bot commands

	JWTSecret []byte

	SweepEvery  time.Duration // liveness sweep interval
	IdleTimeout time.Duration // evict after this much silence; keep >= 2x SweepEvery

	PresenceEnabled bool
	PresenceTTL     time.Duration

	SendQueueSize  int
	FanoutWorkers  int
	FanoutQueue    int
	AllowedOrigins []string
}

func Load() AppConfig {
	cfg := AppConfig{
		GatewayID:       env("GATEWAY_ID", "dash-gw-1"),
		ListenAddr:      env("LISTEN_ADDR", ":8090"),
		WSPath:          env("WS_PATH", "/ws"),
		BusKind:         env("BUS_KIND", "redis"),
		RedisAddr:       env("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         envInt("REDIS_DB", 0),
		NatsServers:     []string{env("NATS_URL", "nats://127.0.0.1:4222")},
		EventChannel:    env("EVENT_CHANNEL", "dpanel:events"),
		CommandChannel:  env("COMMAND_CHANNEL", "dpanel:commands"),
		JWTSecret:       []byte(env("JWT_SECRET", "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=")),
		SweepEvery:      envDur("SWEEP_EVERY", 30*time.Second),
		IdleTimeout:     envDur("IDLE_TIMEOUT", 60*time.Second),
		PresenceEnabled: envBool("PRESENCE_ENABLED", false),
		PresenceTTL:     envDur("PRESENCE_TTL", 90*time.Second),
		SendQueueSize:   envInt("SEND_QUEUE_SIZE", 256),
		FanoutWorkers:   envInt("FANOUT_WORKERS", 4),
		FanoutQueue:     envInt("FANOUT_QUEUE", 1024),
		AllowedOrigins:  envList("ALLOWED_ORIGINS"),
	}
	if cfg.IdleTimeout < 2*cfg.SweepEvery {
		// avoid false-positive evictions
		cfg.IdleTimeout = 2 * cfg.SweepEvery
	}
	return cfg
}

func ConfigIds() {
	ids.SetNodeID(envInt64("NODE_ID", 100))
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// envList splits a comma-separated env value; empty or unset means an
// empty list.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDur(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
