package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/chogm/discordlite/internal/application/config"
	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/application/metric"
	"github.com/chogm/discordlite/internal/infra/appctx"
	"github.com/chogm/discordlite/internal/push"
	"github.com/chogm/discordlite/internal/realtime"
	"github.com/chogm/discordlite/internal/usecase"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

type WebSocketHandler struct {
	upgrader *websocket.Upgrader

	chatHub   realtime.ChatHub
	signalHub realtime.SignalHub

	channelUsecase usecase.ChannelUsecase
	userUsecase    usecase.UserUsecase
	pushService    push.Service
}

func NewWebSocketHandler(
	cfg *config.Config,
	chatHub realtime.ChatHub,
	signalHub realtime.SignalHub,
	channelUsecase usecase.ChannelUsecase,
	userUsecase usecase.UserUsecase,
	pushService push.Service,
) *WebSocketHandler {
	return &WebSocketHandler{
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.Debug {
					return true
				}

				// Non-browser clients send no Origin header.
				origin := r.Header.Get("Origin")
				return origin == "" || origin == cfg.Domain
			},
		},
		chatHub:        chatHub,
		signalHub:      signalHub,
		channelUsecase: channelUsecase,
		userUsecase:    userUsecase,
		pushService:    pushService,
	}
}

// wsSession adapts one gorilla connection to the hubs. Gorilla connections
// allow only one concurrent writer; hub broadcasts and the ping ticker both
// write here.
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}

	return s.conn.WriteJSON(v)
}

// HandleChat serves one chat subscription: every inbound frame is persisted
// through the channel usecase and then fanned out to all subscribers.
func (h *WebSocketHandler) HandleChat(c echo.Context) error {
	userID, channelID, session, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer session.conn.Close()

	h.chatHub.Join(channelID, userID, session)
	defer h.chatHub.Leave(channelID, userID, session)

	h.keepAlive(c.Request().Context(), session)

	for {
		_, msg, err := session.conn.ReadMessage()
		if err != nil {
			h.handleWebsocketError(err, userID)
			return nil
		}

		var req realtime.ChatMessageRequest
		if err = json.Unmarshal(msg, &req); err != nil {
			session.Send(realtime.ErrorFrame{Error: "invalid message frame"})
			continue
		}

		message, err := h.channelUsecase.PostMessage(c.Request().Context(), userID, channelID, req.Content)
		if err != nil {
			session.Send(realtime.ErrorFrame{Error: chatErrorMessage(err)})
			continue
		}

		metric.ObserveChatMessage()
		h.chatHub.Broadcast(channelID, message)
	}
}

// HandleSignaling serves one signaling session: inbound envelopes are relayed
// to their target, with a push fallback for undeliverable call requests.
func (h *WebSocketHandler) HandleSignaling(c echo.Context) error {
	userID, channelID, session, err := h.openSession(c)
	if err != nil {
		return err
	}
	defer session.conn.Close()

	h.signalHub.Join(channelID, userID, session)
	defer h.signalHub.Leave(channelID, userID)

	h.keepAlive(c.Request().Context(), session)

	for {
		_, msg, err := session.conn.ReadMessage()
		if err != nil {
			h.handleWebsocketError(err, userID)
			return nil
		}

		var envelope realtime.SignalEnvelope
		if err = json.Unmarshal(msg, &envelope); err != nil {
			session.Send(realtime.ErrorFrame{Error: "invalid signal envelope"})
			continue
		}

		if err = envelope.Validate(); err != nil {
			session.Send(realtime.ErrorFrame{Error: err.Error()})
			continue
		}

		delivered := h.signalHub.Forward(channelID, userID, envelope)
		metric.ObserveSignalEnvelope(envelope.Type, delivered)

		if !delivered && envelope.Type == realtime.TypeCallRequest && envelope.TargetUserID != "" {
			h.escalateCallRequest(c.Request().Context(), userID, channelID, envelope)
		}
	}
}

// escalateCallRequest reaches an offline callee through the push collaborator
// so the call survives the app being backgrounded.
func (h *WebSocketHandler) escalateCallRequest(ctx context.Context, fromUserID, channelID uuid.UUID, envelope realtime.SignalEnvelope) {
	targetUserID, err := uuid.Parse(envelope.TargetUserID)
	if err != nil {
		return
	}

	var payload realtime.CallRequestPayload
	if err = json.Unmarshal(envelope.Payload, &payload); err != nil || payload.CallID == "" {
		return
	}

	metric.ObserveCallPushFallback()

	h.pushService.SendIncomingCall(ctx, targetUserID, push.IncomingCallPayload{
		CallID:     payload.CallID,
		ChannelID:  channelID.String(),
		FromUserID: fromUserID.String(),
		CallerName: h.userUsecase.LookupDisplayName(ctx, fromUserID),
	})
}

func (h *WebSocketHandler) openSession(c echo.Context) (uuid.UUID, uuid.UUID, *wsSession, error) {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return uuid.Nil, uuid.Nil, nil, echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
	}

	channelID, err := uuid.Parse(c.Param("channelId"))
	if err != nil {
		return uuid.Nil, uuid.Nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid channel id")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", slog.Any(constant.Error, err))
		return uuid.Nil, uuid.Nil, nil, err
	}

	return userID, channelID, &wsSession{conn: conn}, nil
}

// keepAlive installs the read deadline refreshed by pongs and a ping ticker.
func (h *WebSocketHandler) keepAlive(ctx context.Context, session *wsSession) {
	session.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	session.conn.SetPongHandler(func(string) error {
		session.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				session.mu.Lock()
				session.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := session.conn.WriteMessage(websocket.PingMessage, nil)
				session.mu.Unlock()

				if err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (h *WebSocketHandler) handleWebsocketError(err error, userID uuid.UUID) {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway:
			slog.Info("user disconnected from websocket", slog.Any(constant.UserID, userID))
		default:
			slog.Error("websocket close error", slog.Any(constant.Error, err))
		}
		return
	}

	slog.Error("websocket read", slog.Any(constant.Error, err), slog.Any(constant.UserID, userID))
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, usecase.ErrEmptyContent):
		return "message cannot be empty"
	case errors.Is(err, usecase.ErrNotMember):
		return "not a member of the channel"
	default:
		return "message error"
	}
}
