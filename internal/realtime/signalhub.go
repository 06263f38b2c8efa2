package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/application/metric"
)

// SignalHub routes signaling envelopes between the participants of a call.
// Unlike the chat hub it is keyed by user identity: at most one live session
// per (channel, user) pair, last writer wins.
type SignalHub interface {
	Join(channelID, userID uuid.UUID, session Session)
	Leave(channelID, userID uuid.UUID)

	// Forward stamps fromUserID onto the envelope and delivers it. A
	// targeted envelope goes to the target's session only; an untargeted
	// one goes to everyone in the channel except the sender. The return
	// value reports whether at least one recipient got the envelope.
	Forward(channelID, fromUserID uuid.UUID, envelope SignalEnvelope) bool
}

type signalHub struct {
	rooms map[uuid.UUID]map[uuid.UUID]Session

	mu sync.RWMutex
}

func NewSignalHub() SignalHub {
	return &signalHub{
		rooms: make(map[uuid.UUID]map[uuid.UUID]Session),
	}
}

func (h *signalHub) Join(channelID, userID uuid.UUID, session Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[channelID]
	if !ok {
		room = make(map[uuid.UUID]Session)
		h.rooms[channelID] = room
	}

	if _, replaced := room[userID]; !replaced {
		metric.IncSignalSessions()
	}

	room[userID] = session
}

func (h *signalHub) Leave(channelID, userID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[channelID]
	if !ok {
		return
	}

	if _, ok := room[userID]; !ok {
		return
	}

	delete(room, userID)
	metric.DecSignalSessions()

	if len(room) == 0 {
		delete(h.rooms, channelID)
	}
}

func (h *signalHub) Forward(channelID, fromUserID uuid.UUID, envelope SignalEnvelope) bool {
	// The relay owns the sender identity on the wire.
	envelope.FromUserID = fromUserID.String()

	if envelope.TargetUserID != "" {
		target, err := uuid.Parse(envelope.TargetUserID)
		if err != nil {
			return false
		}

		session, ok := h.targetSession(channelID, target)
		if !ok {
			return false
		}

		if err := session.Send(envelope); err != nil {
			slog.Error(
				"signal forward send",
				slog.Any(constant.Error, err),
				slog.Any(constant.ChannelID, channelID),
				slog.Any(constant.UserID, target),
			)
			return false
		}

		return true
	}

	// Untargeted envelopes fan out to everyone but the sender. The current
	// call protocol always targets one user; this path exists for
	// channel-scoped events.
	h.mu.RLock()
	room := h.rooms[channelID]
	recipients := make([]Session, 0, len(room))
	users := make([]uuid.UUID, 0, len(room))
	for userID, session := range room {
		if userID == fromUserID {
			continue
		}
		recipients = append(recipients, session)
		users = append(users, userID)
	}
	h.mu.RUnlock()

	for i, session := range recipients {
		if err := session.Send(envelope); err != nil {
			slog.Error(
				"signal broadcast send",
				slog.Any(constant.Error, err),
				slog.Any(constant.ChannelID, channelID),
				slog.Any(constant.UserID, users[i]),
			)
		}
	}

	return len(recipients) > 0
}

func (h *signalHub) targetSession(channelID, userID uuid.UUID) (Session, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[channelID]
	if !ok {
		return nil, false
	}

	session, ok := room[userID]
	return session, ok
}
