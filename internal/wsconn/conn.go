// Package wsconn wraps gorilla/websocket with the read/write helpers the
// session loop and registry need, plus the wire frame types (message.go).
// It holds no dispatch logic; that lives in the session package.
package wsconn

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Upgrader upgrades permissively; CORS origin checking is performed by the
// surrounding HTTP layer (out of core scope per spec.md §6).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Conn wraps *websocket.Conn, serializing writes: gorilla panics on
// concurrent writers, so every write path goes through writeMu.
type Conn struct {
	c       *websocket.Conn
	writeMu sync.Mutex
}

// Upgrade upgrades an incoming HTTP request to a websocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &Conn{c: c}, nil
}

// ReadMessage reads one text/binary frame and returns the raw payload.
func (cw *Conn) ReadMessage() ([]byte, error) {
	if cw == nil || cw.c == nil {
		return nil, errors.New("wsconn: connection is closed")
	}
	_, msg, err := cw.c.ReadMessage()
	return msg, err
}

// WriteRaw writes raw bytes as a text frame with a bounded write deadline.
// A zero timeout disables the deadline.
func (cw *Conn) WriteRaw(b []byte, timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("wsconn: connection is closed")
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()

	if timeout > 0 {
		if err := cw.c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return cw.c.WriteMessage(websocket.TextMessage, b)
}

// WritePing sends a ping control frame, used by the session loop's
// heartbeat.
func (cw *Conn) WritePing(timeout time.Duration) error {
	if cw == nil || cw.c == nil {
		return errors.New("wsconn: connection is closed")
	}
	cw.writeMu.Lock()
	defer cw.writeMu.Unlock()
	if timeout > 0 {
		cw.c.SetWriteDeadline(time.Now().Add(timeout))
	}
	return cw.c.WriteMessage(websocket.PingMessage, nil)
}

// SetPongHandler registers the pong handler used to detect a dead peer.
func (cw *Conn) SetPongHandler(h func(string) error) {
	if cw == nil || cw.c == nil {
		return
	}
	cw.c.SetPongHandler(h)
}

// SetReadDeadline extends the read deadline (renewed on every pong).
func (cw *Conn) SetReadDeadline(t time.Time) error {
	if cw == nil || cw.c == nil {
		return errors.New("wsconn: connection is closed")
	}
	return cw.c.SetReadDeadline(t)
}

// SetReadLimit caps the size of a single inbound frame (spec.md §4.2: "Frames
// exceeding a configurable byte cap are rejected").
func (cw *Conn) SetReadLimit(n int64) {
	if cw == nil || cw.c == nil {
		return
	}
	cw.c.SetReadLimit(n)
}

// Close closes the underlying connection.
func (cw *Conn) Close() error {
	if cw == nil || cw.c == nil {
		return nil
	}
	return cw.c.Close()
}

// RemoteAddr returns the peer address, or "" if unavailable.
func (cw *Conn) RemoteAddr() string {
	if cw == nil || cw.c == nil || cw.c.RemoteAddr() == nil {
		return ""
	}
	return cw.c.RemoteAddr().String()
}

// IsUnexpectedCloseError reports whether err represents an abnormal close,
// as opposed to the set of codes considered a normal teardown.
func IsUnexpectedCloseError(err error, codes ...int) bool {
	return websocket.IsUnexpectedCloseError(err, codes...)
}
