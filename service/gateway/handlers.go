package gateway

import (
	"context"

	"github.com/gorilla/websocket"

	"DPanel/logger"
	"DPanel/tools/errs"
)

// TokenVerifier is the external identity collaborator: given an opaque
// token it returns a user ID or an error. The call may block; only the
// calling connection's read loop waits on it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

type TokenVerifierFunc func(ctx context.Context, token string) (string, error)

func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// AuthHandler drives the Unauthenticated -> Authenticated transition.
// A failed handshake is terminal for the connection; everything else
// leaves it open.
type AuthHandler struct{}

func (AuthHandler) Type() string { return FrameAuth }

func (AuthHandler) Handle(ctx context.Context, gc *Context, f *ClientFrame, c *Conn) error {
	s := gc.S
	if s.Registry().IsAuthenticated(c.ID) {
		// auth is accepted exactly once per connection
		_ = c.Transport.Send(BuildError(errs.ErrAlreadyAuthed.Msg))
		return nil
	}

	ap, err := f.AuthPayload()
	if err != nil {
		_ = c.Transport.Send(BuildError(errs.ErrInvalidFormat.Msg))
		return nil
	}

	userID, verr := s.verifier.Verify(ctx, ap.Token)
	if verr != nil || userID == "" {
		logger.Infof("[auth] reject conn=%s: %v", c.ID, verr)
		_ = c.Transport.Send(BuildError(errs.ErrInvalidToken.Msg))
		s.closeConn(c, websocket.ClosePolicyViolation, "invalid token")
		return nil
	}

	if !s.Registry().Authenticate(c.ID, userID) {
		// connection vanished while the verify round-trip was in flight
		return nil
	}
	s.presenceOnline(ctx, userID)
	_ = c.Transport.Send(BuildAuthenticated(userID))

	if ap.GuildID != "" {
		if s.Registry().Subscribe(c.ID, ap.GuildID) {
			_ = c.Transport.Send(BuildSubscribed(ap.GuildID))
		}
	}
	return nil
}

type SubscribeHandler struct{}

func (SubscribeHandler) Type() string { return FrameSubscribe }

func (SubscribeHandler) Handle(_ context.Context, gc *Context, f *ClientFrame, c *Conn) error {
	gp, err := f.GuildPayload()
	if err != nil || gp.GuildID == "" {
		_ = c.Transport.Send(BuildError(errs.ErrInvalidFormat.Msg))
		return nil
	}
	if !gc.S.Registry().Subscribe(c.ID, gp.GuildID) {
		if gc.S.Registry().Get(c.ID) == nil {
			// dropped mid-flight, nobody left to answer
			return nil
		}
		_ = c.Transport.Send(BuildError(errs.ErrNotAuthenticated.Msg))
		return nil
	}
	_ = c.Transport.Send(BuildSubscribed(gp.GuildID))
	return nil
}

type UnsubscribeHandler struct{}

func (UnsubscribeHandler) Type() string { return FrameUnsubscribe }

func (UnsubscribeHandler) Handle(_ context.Context, gc *Context, f *ClientFrame, c *Conn) error {
	gp, err := f.GuildPayload()
	if err != nil || gp.GuildID == "" {
		_ = c.Transport.Send(BuildError(errs.ErrInvalidFormat.Msg))
		return nil
	}
	if !gc.S.Registry().IsAuthenticated(c.ID) {
		if gc.S.Registry().Get(c.ID) == nil {
			return nil
		}
		_ = c.Transport.Send(BuildError(errs.ErrNotAuthenticated.Msg))
		return nil
	}
	// idempotent: succeeds even when the guild was never subscribed
	if gc.S.Registry().Unsubscribe(c.ID, gp.GuildID) {
		_ = c.Transport.Send(BuildUnsubscribed(gp.GuildID))
	}
	return nil
}

// PingHandler answers client pings and refreshes liveness. Valid in
// any non-closed state, authenticated or not.
type PingHandler struct{}

func (PingHandler) Type() string { return FramePing }

func (PingHandler) Handle(_ context.Context, gc *Context, _ *ClientFrame, c *Conn) error {
	gc.S.Registry().Touch(c.ID)
	_ = c.Transport.Send(BuildPong())
	return nil
}

// PongHandler refreshes liveness only; no reply.
type PongHandler struct{}

func (PongHandler) Type() string { return FramePong }

func (PongHandler) Handle(_ context.Context, gc *Context, _ *ClientFrame, c *Conn) error {
	gc.S.Registry().Touch(c.ID)
	return nil
}
