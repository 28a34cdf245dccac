package gateway

import (
	"context"

	"DPanel/logger"
)

type Context struct {
	S *Server
}

type Handler interface {
	Type() string
	Handle(ctx context.Context, gc *Context, f *ClientFrame, c *Conn) error
}

type Dispatcher struct {
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

func (d *Dispatcher) Register(h Handler) { d.handlers[h.Type()] = h }

// GetHandler returns nil for unrecognized frame types; the read loop
// logs and ignores those frames.
func (d *Dispatcher) GetHandler(typ string) Handler {
	h, ok := d.handlers[typ]
	if !ok {
		logger.Infof("[dispatch] no handler for type=%s", typ)
		return nil
	}
	return h
}
