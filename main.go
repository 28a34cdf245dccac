package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"DPanel/global"
	"DPanel/logger"
	"DPanel/middleware"
	"DPanel/service/bus"
	"DPanel/service/gateway"
	"DPanel/service/storage"
	"DPanel/tools/security"
)

func main() {
	global.ConfigIds()
	cfg := global.Load()

	b, err := buildBus(cfg)
	if err != nil {
		logger.Errorf("bus init failed: %v", err)
		os.Exit(1)
	}

	var presence *storage.PresenceStore
	if cfg.PresenceEnabled {
		presence, err = storage.NewPresenceStore(storage.PresenceConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPass,
			DB:        cfg.RedisDB,
			GatewayID: cfg.GatewayID,
			TTL:       cfg.PresenceTTL,
		})
		if err != nil {
			logger.Errorf("presence init failed: %v", err)
			os.Exit(1)
		}
	}

	jwtOpts := security.DefaultOptions(cfg.JWTSecret)
	verifier := gateway.TokenVerifierFunc(func(_ context.Context, token string) (string, error) {
		return security.VerifySubject(jwtOpts, token)
	})

	srv := gateway.NewServer(gateway.Options{
		GatewayID:      cfg.GatewayID,
		Bus:            b,
		EventChannel:   cfg.EventChannel,
		CommandChannel: cfg.CommandChannel,
		Verifier:       verifier,
		Presence:       presence,
		SweepEvery:     cfg.SweepEvery,
		IdleTimeout:    cfg.IdleTimeout,
		SendQueueSize:  cfg.SendQueueSize,
		FanoutWorkers:  cfg.FanoutWorkers,
		FanoutQueue:    cfg.FanoutQueue,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		logger.Errorf("gateway start failed: %v", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Origin(cfg.AllowedOrigins))
	r.GET(cfg.WSPath, srv.HandleWS)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "conns": srv.Registry().Size()})
	})

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: r}
	go func() {
		logger.Infof("[HTTP] listening on %s ws=%s", cfg.ListenAddr, cfg.WSPath)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Infof("shutting down")

	// force-exit fallback if the drain wedges
	go func() {
		time.Sleep(15 * time.Second)
		logger.Errorf("drain timed out, forcing exit")
		os.Exit(1)
	}()

	srv.Shutdown(ctx)
	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = httpSrv.Shutdown(shCtx)
	_ = b.Close()
	_ = presence.Close()
}

func buildBus(cfg global.AppConfig) (bus.Bus, error) {
	switch cfg.BusKind {
	case "nats":
		return bus.NewNatsBus(bus.NatsConfig{
			Servers: cfg.NatsServers,
			Name:    cfg.GatewayID,
		})
	default:
		return bus.NewRedisBus(bus.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
	}
}
