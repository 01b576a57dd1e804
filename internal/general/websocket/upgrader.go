package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"ridemarket/internal/general/jwt"
	"ridemarket/internal/general/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tune the handshake and keepalive.
type Options struct {
	AuthTimeout  time.Duration
	PingInterval time.Duration
}

func (o Options) readTimeout() time.Duration {
	return 2 * o.PingInterval
}

// Acceptor upgrades requests and authenticates the first frame.
type Acceptor struct {
	logger *logger.Logger
	jwtMgr *jwt.Manager
	opts   Options
}

// NewAcceptor builds an Acceptor. Zero options fall back to 5s auth and
// 30s pings.
func NewAcceptor(logger *logger.Logger, jwtMgr *jwt.Manager, opts Options) *Acceptor {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 5 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	return &Acceptor{logger: logger, jwtMgr: jwtMgr, opts: opts}
}

// PingInterval is the keepalive period for accepted connections.
func (a *Acceptor) PingInterval() time.Duration { return a.opts.PingInterval }

// ErrAuth is returned when the handshake fails; the socket is already closed.
var ErrAuth = errors.New("websocket: authentication failed")

// Accept upgrades the request and waits for {"type":"auth","token":"Bearer …"}.
// On success the peer gets auth_success and the caller owns the Conn.
func (a *Acceptor) Accept(w http.ResponseWriter, r *http.Request) (*Conn, *jwt.Claims, error) {
	ctx := r.Context()
	raw, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error(ctx, "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return nil, nil, err
	}
	conn := newConn(raw, a.opts.readTimeout())
	raw.SetReadLimit(readLimit)

	if err := raw.SetReadDeadline(time.Now().Add(a.opts.AuthTimeout)); err != nil {
		a.fail(ctx, conn, "ws_set_deadline_failed", "internal server error", err)
		return nil, nil, err
	}
	msgType, first, err := raw.ReadMessage()
	if err != nil {
		a.fail(ctx, conn, "ws_auth_read_failed", "authentication timeout: send the auth message first", err)
		return nil, nil, ErrAuth
	}
	if msgType != websocket.TextMessage {
		a.fail(ctx, conn, "ws_auth_invalid_format", "auth message must be in text format", nil)
		return nil, nil, ErrAuth
	}
	claims, err := jwt.ValidateWSAuth(first, a.jwtMgr)
	if err != nil {
		a.fail(ctx, conn, "ws_auth_failed", "authentication failed: invalid token", err)
		return nil, nil, ErrAuth
	}

	if err := conn.WriteJSON(map[string]any{
		"type":      "auth_success",
		"success":   true,
		"user_id":   claims.Subject,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		conn.Close(CloseInternalServerErr, "write failed")
		return nil, nil, err
	}
	a.logger.Info(ctx, "ws_connected", "WebSocket authenticated", map[string]any{"user_id": claims.Subject})
	return conn, claims, nil
}

func (a *Acceptor) fail(ctx context.Context, conn *Conn, action, message string, err error) {
	a.logger.Warn(ctx, action, "WebSocket handshake rejected", err, nil)
	_ = conn.WriteJSON(map[string]any{
		"type":    "auth_error",
		"error":   message,
		"success": false,
	})
	conn.Close(ClosePolicyViolation, "unauthenticated")
}
