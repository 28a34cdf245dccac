package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"DPanel/logger"
)

// Transport is the outbound half of one client socket. Send enqueues
// without blocking; a full queue is an error the caller may treat as
// backpressure rather than a dead peer.
type Transport interface {
	Send(data []byte) error
	Writable() bool
	Close(code int, reason string)
}

// Conn is the per-socket record owned by the Registry. All mutable
// fields are guarded by the Registry lock; nothing outside the
// Registry writes them.
type Conn struct {
	ID            string
	Transport     Transport
	UserID        string
	Authenticated bool
	Guilds        map[string]struct{}
	LastSeen      time.Time
}

var (
	errConnClosed = errors.New("transport closed")
	errQueueFull  = errors.New("send queue full")
)

const writeWait = 10 * time.Second

// wsTransport adapts a gorilla connection: a buffered send queue
// drained by a single writer goroutine, so handler goroutines and the
// fan-out workers never write the socket directly.
type wsTransport struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	code   int
	reason string
}

func newWSTransport(ws *websocket.Conn, queueSize int) *wsTransport {
	if queueSize <= 0 {
		queueSize = 256
	}
	t := &wsTransport{
		ws:   ws,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	go t.writeLoop()
	return t
}

func (t *wsTransport) Send(data []byte) error {
	select {
	case <-t.done:
		return errConnClosed
	default:
	}
	select {
	case t.send <- data:
		return nil
	default:
		// slow client: skip, the liveness sweep decides its fate
		return errQueueFull
	}
}

func (t *wsTransport) Writable() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

func (t *wsTransport) Close(code int, reason string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.code, t.reason = code, reason
		t.mu.Unlock()
		close(t.done)
	})
}

func (t *wsTransport) writeLoop() {
	for {
		select {
		case data := <-t.send:
			if err := t.write(data); err != nil {
				logger.Infof("[ws] write err: %v", err)
				t.Close(websocket.CloseAbnormalClosure, "write error")
				t.finish()
				return
			}
		case <-t.done:
			// flush whatever was queued before the close was requested
			for {
				select {
				case data := <-t.send:
					if err := t.write(data); err != nil {
						t.finish()
						return
					}
				default:
					t.finish()
					return
				}
			}
		}
	}
}

func (t *wsTransport) write(data []byte) error {
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return t.ws.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) finish() {
	t.mu.Lock()
	code, reason := t.code, t.reason
	t.mu.Unlock()
	if code == 0 {
		code = websocket.CloseNormalClosure
	}
	_ = t.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = t.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason))
	_ = t.ws.Close()
}
