package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ridemarket/internal/domain/geo"
	"ridemarket/internal/domain/user"
	"ridemarket/internal/general/apperr"
	"ridemarket/internal/general/httpx"
	"ridemarket/internal/general/logger"
	"ridemarket/internal/general/websocket"
	sessionsvc "ridemarket/internal/software/session/service"
)

// Socket commands.
const (
	CmdOpenChat      = "open_chat"
	CmdCloseChat     = "close_chat"
	CmdTyping        = "typing"
	CmdStopTyping    = "stop_typing"
	CmdSend          = "send"
	CmdLocation      = "location"
	CmdLocationError = "location_error"
)

// Sessions opens live sessions.
type Sessions interface {
	Open(ctx context.Context, userID string) (*sessionsvc.Session, error)
}

// LocationSink receives fixes pushed by driver devices.
type LocationSink interface {
	Report(driverID string, point geo.Point, accuracyMeters *float64) error
	ReportError(driverID, code string)
	Forget(driverID string)
}

// Gateway serves GET /ws: one authenticated socket per session.
type Gateway struct {
	acceptor     *websocket.Acceptor
	sessions     Sessions
	locations    LocationSink
	locationRate rate.Limit
	httpx.Responder
}

// NewGateway wires the socket gateway. locationsPerSecond bounds how often
// a connection may push a location fix.
func NewGateway(logger *logger.Logger, acceptor *websocket.Acceptor, sessions Sessions, locations LocationSink, locationsPerSecond float64) *Gateway {
	if locationsPerSecond <= 0 {
		locationsPerSecond = 1
	}
	return &Gateway{
		acceptor:     acceptor,
		sessions:     sessions,
		locations:    locations,
		locationRate: rate.Limit(locationsPerSecond),
		Responder:    httpx.Responder{Logger: logger},
	}
}

// RegisterRoutes mounts the socket endpoint. Auth happens in the first frame.
func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", g.ServeWS)
}

type rideCommand struct {
	RideID string `json:"ride_id"`
	Text   string `json:"text,omitempty"`
}

type locationCommand struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

type locationErrorCommand struct {
	Code string `json:"code"`
}

// connState is what one read loop carries between frames.
type connState struct {
	conn     *websocket.Conn
	session  *sessionsvc.Session
	userID   string
	limiter  *rate.Limiter
	reported bool
}

// ServeWS upgrades, authenticates, opens the session and pumps both ways
// until either side goes away.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, claims, err := g.acceptor.Accept(w, r)
	if err != nil {
		return
	}
	ctx, cancel := context.WithCancel(g.WithReqID(r))
	defer cancel()

	session, err := g.sessions.Open(ctx, claims.Subject)
	if err != nil {
		g.Logger.Warn(ctx, "ws_session_open_failed", "Could not open session", err, map[string]any{"user_id": claims.Subject})
		kind, msg := describe(err)
		_ = conn.SendError("open", kind, msg)
		conn.Close(websocket.ClosePolicyViolation, "session unavailable")
		return
	}

	st := &connState{
		conn:    conn,
		session: session,
		userID:  claims.Subject,
		limiter: rate.NewLimiter(g.locationRate, 1),
	}
	defer func() {
		session.Close()
		if st.reported {
			g.locations.Forget(st.userID)
		}
	}()

	go conn.KeepAlive(ctx, g.acceptor.PingInterval())
	go g.pump(ctx, conn, session)

	for {
		msg, err := conn.Read()
		if errors.Is(err, websocket.ErrBadFrame) {
			_ = conn.SendError("", apperr.KindInvalid.String(), "bad json")
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedClose(err) {
				g.Logger.Warn(ctx, "ws_unexpected_close", "Connection closed unexpectedly", err, map[string]any{"user_id": st.userID})
			} else {
				g.Logger.Info(ctx, "ws_connection_closed", "Connection closed", map[string]any{"user_id": st.userID})
			}
			conn.Close(websocket.CloseNormalClosure, "bye")
			return
		}
		g.dispatch(ctx, st, msg)
	}
}

// pump forwards session events until the session ends, then closes the
// socket so the reader returns.
func (g *Gateway) pump(ctx context.Context, conn *websocket.Conn, session *sessionsvc.Session) {
	for ev := range session.Events() {
		if err := conn.Send("event", ev); err != nil {
			g.Logger.Warn(ctx, "ws_write_failed", "Failed to push session event", err, map[string]any{"topic": ev.Topic})
			break
		}
	}
	conn.Close(websocket.CloseNormalClosure, "session ended")
}

func (g *Gateway) dispatch(ctx context.Context, st *connState, msg websocket.Message) {
	callCtx, cancel := context.WithTimeout(ctx, httpx.CallTimeout)
	defer cancel()

	var (
		reply any
		err   error
	)
	switch msg.Type {
	case CmdOpenChat, CmdCloseChat, CmdTyping, CmdStopTyping, CmdSend:
		var cmd rideCommand
		if err = decode(msg.Data, &cmd); err != nil {
			break
		}
		rideID := strings.TrimSpace(cmd.RideID)
		if rideID == "" {
			err = apperr.E(apperr.KindInvalid, "ws."+msg.Type, "ride_id is required", nil)
			break
		}
		callCtx = g.Logger.WithRideID(callCtx, rideID)
		switch msg.Type {
		case CmdOpenChat:
			err = st.session.OpenChat(callCtx, rideID)
		case CmdCloseChat:
			err = st.session.CloseChat(callCtx, rideID)
		case CmdTyping:
			err = st.session.Keystroke(callCtx, rideID)
		case CmdStopTyping:
			err = st.session.StopTyping(callCtx, rideID)
		case CmdSend:
			reply, err = st.session.SendMessage(callCtx, rideID, cmd.Text)
		}

	case CmdLocation:
		if !g.driver(st) {
			err = apperr.E(apperr.KindForbidden, "ws.location", "only drivers report location", nil)
			break
		}
		if !st.limiter.Allow() {
			g.Logger.Debug(ctx, "ws_location_throttled", "Dropping location frame over the rate limit", map[string]any{"user_id": st.userID})
			return
		}
		var cmd locationCommand
		if err = decode(msg.Data, &cmd); err != nil {
			break
		}
		if err = g.locations.Report(st.userID, geo.Point{Lat: cmd.Lat, Lng: cmd.Lng}, cmd.Accuracy); err != nil {
			err = apperr.E(apperr.KindInvalid, "ws.location", err.Error(), err)
			break
		}
		st.reported = true

	case CmdLocationError:
		if !g.driver(st) {
			err = apperr.E(apperr.KindForbidden, "ws.location_error", "only drivers report location", nil)
			break
		}
		var cmd locationErrorCommand
		if err = decode(msg.Data, &cmd); err != nil {
			break
		}
		g.locations.ReportError(st.userID, cmd.Code)
		st.reported = true

	default:
		err = apperr.E(apperr.KindInvalid, "ws.dispatch", "unknown message type", nil)
	}

	if err != nil {
		kind, text := describe(err)
		if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
			g.Logger.Error(callCtx, "ws_command_failed", "Socket command failed", err, map[string]any{"command": msg.Type})
		}
		_ = st.conn.SendError(msg.Type, kind, text)
		return
	}
	ack := map[string]any{"command": msg.Type, "at": time.Now().UTC()}
	if reply != nil {
		ack["result"] = reply
	}
	_ = st.conn.Send("ack", ack)
}

func (g *Gateway) driver(st *connState) bool {
	return st.session.Actor().Role == user.RoleDriver
}

func decode(data json.RawMessage, dst any) error {
	if len(data) == 0 {
		return apperr.E(apperr.KindInvalid, "ws.decode", "missing data", nil)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.E(apperr.KindInvalid, "ws.decode", "invalid data", err)
	}
	return nil
}

// describe maps err to the kind and message a client may see.
func describe(err error) (string, string) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		return apperr.KindOf(err).String(), "internal error"
	}
	return apperr.KindOf(err).String(), apperr.Message(err)
}
