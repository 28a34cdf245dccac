package gateway

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"DPanel/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // origin policy enforced by middleware
}

// HandleWS upgrades the request and runs the connection's read loop.
// The loop is the per-connection sequencer: frames are handled one at
// a time, so auth always completes before a subscribe is looked at,
// and the identity round-trip suspends only this connection.
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[ws] upgrade error: %v", err)
		return
	}

	t := newWSTransport(ws, s.sendQueue)
	rec := s.reg.Add(t)

	// transport-level pongs count as liveness too
	ws.SetPongHandler(func(string) error {
		s.reg.Touch(rec.ID)
		return nil
	})

	_ = t.Send(BuildConnected())
	logger.Infof("[ws] accept conn=%s remote=%s", rec.ID, ws.RemoteAddr())

	ctx := c.Request.Context()
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[ws] peer closed conn=%s err=%v", rec.ID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[ws] read timeout conn=%s err=%v", rec.ID, rerr)
			} else {
				logger.Infof("[ws] read err conn=%s err=%v", rec.ID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		f, perr := ParseClientFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[ws] bad frame conn=%s err=%v sample=%q", rec.ID, perr, sample)
			_ = t.Send(BuildError("Invalid message format"))
			continue
		}

		h := s.disp.GetHandler(f.Type)
		if h == nil {
			continue
		}
		if herr := h.Handle(ctx, &Context{S: s}, f, rec); herr != nil {
			logger.Infof("[ws] handler err conn=%s type=%s err=%v", rec.ID, f.Type, herr)
			continue
		}
	}

	// all exit paths converge on the same removal
	s.closeConn(rec, websocket.CloseNormalClosure, "")
}
