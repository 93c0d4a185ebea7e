package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const (
	outboundBuffer = 256
	inboundBuffer  = 64
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler runs proctored sessions over WebSocket.
type WSHandler struct {
	sessionService *service.SessionService
	clock          proctor.Clock
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		clock:          proctor.SystemClock{},
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// sessionQuery is the device report carried on the upgrade URL.
type sessionQuery struct {
	Viewport int  `form:"viewport" binding:"min=0,max=16384"`
	Touch    bool `form:"touch"`
}

// SessionStream godoc
// WS /ws/v1/student/contests/:contest_id/session?token=...
// Streams one proctored attempt: client signals in, session notices out.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	contestID, ok := contestParam(c)
	if !ok {
		return
	}

	var q sessionQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	info := model.ClientInfo{
		UserAgent:     c.Request.UserAgent(),
		ViewportWidth: q.Viewport,
		TouchPrimary:  q.Touch,
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	studentID := claims.UserID
	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("contest_id", contestID).
		Logger()

	ctx, cancelCause := context.WithCancelCause(context.Background())
	cancel := func() { cancelCause(context.Canceled) }
	defer cancel()

	release := h.sessionService.Attach(contestID, studentID, func() {
		cancelCause(service.ErrSessionReplaced)
	})
	defer release()

	outbound := make(chan proctor.Notice, outboundBuffer)
	notifier := proctor.NotifierFunc(func(n proctor.Notice) {
		select {
		case outbound <- n:
		default:
			wsLog.Warn().Str("kind", string(n.Kind)).Msg("Client too slow, dropping connection")
			cancel()
		}
	})

	written := make(chan struct{})
	go h.writeLoop(conn, outbound, cancel, written, wsLog)

	ctrl, err := h.sessionService.Open(ctx, contestID, studentID, info, notifier)
	if err != nil {
		close(outbound)
		<-written

		_, code := sessionErrorCode(err)
		if code == response.ErrInternal {
			wsLog.Error().Err(err).Msg("Failed to open session")
		}
		_ = conn.WriteError(string(code), response.GetMessage(code))
		_ = conn.CloseNormal(string(code))
		return
	}

	wsLog.Info().Msg("Student connected")

	events := make(chan proctor.Event, inboundBuffer)
	go h.readLoop(ctx, conn, events, cancel, wsLog)

	runErr := ctrl.Run(ctx, events)

	// Run has returned, so nothing else can notify.
	close(outbound)
	<-written

	switch {
	case ctrl.Phase() == proctor.PhaseFinished:
		wsLog.Info().Msg("Session finished, closing connection")
		_ = conn.CloseNormal("finished")
	case errors.Is(context.Cause(ctx), service.ErrSessionReplaced):
		wsLog.Info().Msg("Session opened elsewhere, closing connection")
		_ = conn.WriteError(string(response.ErrSessionReplaced), response.GetMessage(response.ErrSessionReplaced))
		_ = conn.CloseNormal(string(response.ErrSessionReplaced))
	case runErr != nil && !errors.Is(runErr, context.Canceled):
		wsLog.Error().Err(runErr).Msg("Session loop stopped")
	default:
		wsLog.Debug().Msg("Connection closed")
	}
}

// writeLoop sends notices in order until outbound is closed. Write failures
// cancel the session so Run returns.
func (h *WSHandler) writeLoop(conn *ws.Conn, outbound <-chan proctor.Notice, cancel func(), done chan<- struct{}, log zerolog.Logger) {
	defer close(done)

	failed := false
	for n := range outbound {
		if failed {
			continue
		}
		msg, err := ws.FromNotice(n)
		if err != nil {
			log.Error().Err(err).Str("kind", string(n.Kind)).Msg("Failed to encode notice")
			continue
		}
		if err := conn.WriteTyped(msg); err != nil {
			log.Debug().Err(err).Msg("Write failed")
			failed = true
			cancel()
		}
	}
}

// readLoop decodes client messages into session events. Pings are answered
// here so they never queue behind session work.
func (h *WSHandler) readLoop(ctx context.Context, conn *ws.Conn, events chan<- proctor.Event, cancel func(), log zerolog.Logger) {
	defer cancel()

	for {
		var req ws.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		if req.Action == ws.ActionPing {
			_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			continue
		}

		ev, err := req.ToEvent(h.clock.Now())
		if err != nil {
			log.Debug().Err(err).Str("action", string(req.Action)).Msg("Rejected client message")
			code := response.ErrInvalidPayload
			if errors.Is(err, ws.ErrUnknownAction) {
				code = response.ErrUnknownAction
			}
			_ = conn.WriteError(string(code), err.Error())
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
