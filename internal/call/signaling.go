package call

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/realtime"
)

const signalWriteTimeout = 5 * time.Second

// Signaler is an open signaling connection scoped to one channel.
type Signaler interface {
	Send(envelope realtime.SignalEnvelope) error
	Close() error
}

// DialFunc opens a signaling connection for a channel. Every envelope
// received on it is handed to onEnvelope until the connection closes.
type DialFunc func(ctx context.Context, channelID string, onEnvelope func(realtime.SignalEnvelope)) (Signaler, error)

// SignalingClient dials the relay's signaling websocket endpoint.
type SignalingClient struct {
	BaseURL string
	Token   string
}

// Dial implements DialFunc.
func (c *SignalingClient) Dial(ctx context.Context, channelID string, onEnvelope func(realtime.SignalEnvelope)) (Signaler, error) {
	url := websocketURL(c.BaseURL) + "/api/v1/ws/signaling/" + channelID

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.Token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("dial signaling socket: %w", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	s := &signalSocket{conn: conn}

	go s.readLoop(onEnvelope)

	return s, nil
}

type signalSocket struct {
	conn *websocket.Conn

	// writeMu serializes writes; gorilla connections allow only one
	// concurrent writer.
	writeMu sync.Mutex
}

func (s *signalSocket) Send(envelope realtime.SignalEnvelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(signalWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}

	if err := s.conn.WriteJSON(envelope); err != nil {
		return fmt.Errorf("write signal envelope: %w", err)
	}

	return nil
}

func (s *signalSocket) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
	s.writeMu.Unlock()

	return s.conn.Close()
}

func (s *signalSocket) readLoop(onEnvelope func(realtime.SignalEnvelope)) {
	for {
		var frame struct {
			realtime.SignalEnvelope
			Error string `json:"error"`
		}

		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}

		if frame.Error != "" {
			slog.Error("signaling error frame", slog.Any(constant.Error, frame.Error))
			continue
		}

		if frame.Type == "" {
			continue
		}

		onEnvelope(frame.SignalEnvelope)
	}
}

func websocketURL(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
