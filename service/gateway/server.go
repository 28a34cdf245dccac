package gateway

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"DPanel/logger"
	"DPanel/service/bus"
)

// Presence mirrors session liveness into an external store so the bot
// process can check who is watching. Implementations must tolerate
// concurrent calls; *storage.PresenceStore is the shipped one.
type Presence interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

type Options struct {
	GatewayID      string
	Bus            bus.Bus
	EventChannel   string
	CommandChannel string
	Verifier       TokenVerifier
	Presence       Presence // nil disables the mirror

	SweepEvery  time.Duration
	IdleTimeout time.Duration

	SendQueueSize int
	FanoutWorkers int
	FanoutQueue   int

	Clock func() time.Time // tests only; nil => time.Now
}

// Server wires registry, dispatcher, monitor, bridge, fan-out and the
// command publisher for one gateway instance. Nothing here is global:
// multiple Servers can coexist in one process.
type Server struct {
	gwID     string
	reg      *Registry
	disp     *Dispatcher
	fan      *Fanout
	mon      *Monitor
	bridge   *Bridge
	pub      *Publisher
	verifier TokenVerifier
	presence Presence

	sendQueue int
	evtSub    *EventSubscription
}

func NewServer(opts Options) *Server {
	s := &Server{
		gwID:      opts.GatewayID,
		reg:       NewRegistry(opts.Clock),
		disp:      NewDispatcher(),
		fan:       NewFanout(opts.FanoutWorkers, opts.FanoutQueue),
		verifier:  opts.Verifier,
		presence:  opts.Presence,
		sendQueue: opts.SendQueueSize,
	}
	s.bridge = NewBridge(opts.Bus, opts.EventChannel)
	s.pub = NewPublisher(opts.Bus, opts.CommandChannel)
	s.mon = NewMonitor(s.reg, opts.SweepEvery, opts.IdleTimeout, opts.Clock,
		func(c *Conn) {
			s.closeConn(c, websocket.ClosePolicyViolation, "timeout")
		},
		func(c *Conn) {
			// keep the presence TTL ahead of sessions that outlive it
			if u := s.reg.UserOf(c.ID); u != "" {
				s.presenceRefresh(u)
			}
		})

	s.disp.Register(AuthHandler{})
	s.disp.Register(SubscribeHandler{})
	s.disp.Register(UnsubscribeHandler{})
	s.disp.Register(PingHandler{})
	s.disp.Register(PongHandler{})
	return s
}

func (s *Server) GwID() string          { return s.gwID }
func (s *Server) Registry() *Registry   { return s.reg }
func (s *Server) Disp() *Dispatcher     { return s.disp }
func (s *Server) Publisher() *Publisher { return s.pub }
func (s *Server) Bridge() *Bridge       { return s.bridge }
func (s *Server) Monitor() *Monitor     { return s.mon }

// Start registers the fan-out with the bridge, opens the bus
// subscription and starts the liveness sweep.
func (s *Server) Start(ctx context.Context) error {
	s.evtSub = s.bridge.OnEvent(s.broadcastEvent)
	if err := s.bridge.Start(ctx); err != nil {
		s.evtSub.Close()
		return err
	}
	s.mon.Start()
	logger.Infof("[gateway] %s started", s.gwID)
	return nil
}

// Shutdown drains in order: stop inbound event delivery first, then
// close the sockets, then the sweep — never write a socket
// mid-teardown. The HTTP listener is the caller's to close afterwards.
func (s *Server) Shutdown(ctx context.Context) {
	if s.evtSub != nil {
		s.evtSub.Close()
	}
	s.bridge.Stop()

	for _, c := range s.reg.Snapshot() {
		s.closeConn(c, websocket.CloseGoingAway, "server shutdown")
	}

	s.mon.Stop()
	s.fan.Close()
	logger.Infof("[gateway] %s drained, %d conns left", s.gwID, s.reg.Size())
}

// broadcastEvent is the bridge handler: resolve subscribers at
// delivery time, serialize once, hand to the worker pool. Zero
// matches is a normal no-op.
func (s *Server) broadcastEvent(ev *DomainEvent) {
	conns := s.reg.ByGuild(ev.GuildID)
	if len(conns) == 0 {
		return
	}
	s.fan.Broadcast(conns, BuildEventFrame(ev))
}

// closeConn is the single convergence point of all three close paths
// (client close, protocol rejection, liveness eviction): registry
// removal is unconditional, transport close best-effort.
func (s *Server) closeConn(c *Conn, code int, reason string) {
	removed := s.reg.drop(c.ID)
	c.Transport.Close(code, reason)
	if removed != nil && removed.UserID != "" {
		s.presenceOffline(removed.UserID)
	}
}

func (s *Server) presenceOnline(ctx context.Context, userID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Online(ctx, userID); err != nil {
		logger.Infof("[presence] online err user=%s: %v", userID, err)
	}
}

// presenceRefresh renews the TTL key during the liveness sweep so a
// session that outlives the TTL stays visible to the bot.
func (s *Server) presenceRefresh(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.presenceOnline(ctx, userID)
}

func (s *Server) presenceOffline(userID string) {
	if s.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.presence.Offline(ctx, userID); err != nil {
		logger.Infof("[presence] offline err user=%s: %v", userID, err)
	}
}
