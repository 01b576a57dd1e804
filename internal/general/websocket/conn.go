// Package websocket is the socket transport for live sessions: the first
// frame authenticates, a ping loop keeps the peer honest, and every write
// goes through one per-connection lock.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
	readLimit        = 1 << 20 // 1 MiB
)

// Message is the envelope of every frame in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Conn is an authenticated socket. Writes are safe from any goroutine;
// reads belong to one goroutine.
type Conn struct {
	conn        *websocket.Conn
	readTimeout time.Duration

	writeMu sync.Mutex
	closed  bool
}

func newConn(conn *websocket.Conn, readTimeout time.Duration) *Conn {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})
	return &Conn{conn: conn, readTimeout: readTimeout}
}

// WriteJSON marshals v and writes a single text frame.
func (c *Conn) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Send writes a typed message whose data is v.
func (c *Conn) Send(msgType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.WriteJSON(Message{Type: msgType, Data: data})
}

// SendError writes {"type":"error"} for the command that failed.
func (c *Conn) SendError(command, kind, message string) error {
	return c.WriteJSON(map[string]any{
		"type":    "error",
		"command": command,
		"kind":    kind,
		"error":   message,
	})
}

// Read blocks for the next message, extending the read deadline.
func (c *Conn) Read() (Message, error) {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	_, payload, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, ErrBadFrame
	}
	return msg, nil
}

// ErrBadFrame is returned by Read for frames that are not a JSON envelope.
// The connection stays usable.
var ErrBadFrame = errors.New("websocket: bad json frame")

// KeepAlive pings every interval until ctx ends or a ping fails, in which
// case the socket is closed to unblock the reader.
func (c *Conn) KeepAlive(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
			c.writeMu.Unlock()
			if err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}

// Close sends a close frame with code and reason, then closes the socket.
func (c *Conn) Close(code int, reason string) {
	c.writeMu.Lock()
	if !c.closed {
		c.closed = true
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(wsCloseAckWindow),
		)
	}
	c.writeMu.Unlock()
	_ = c.conn.Close()
}

// IsUnexpectedClose reports whether err is a close other than a normal
// shutdown or the peer going away.
func IsUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// Close codes re-exported for callers.
const (
	CloseNormalClosure     = websocket.CloseNormalClosure
	CloseInternalServerErr = websocket.CloseInternalServerErr
	ClosePolicyViolation   = websocket.ClosePolicyViolation
)
