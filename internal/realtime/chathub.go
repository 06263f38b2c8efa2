package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/application/metric"
)

// ChatHub fans chat messages out to every session subscribed to a channel.
// It keeps no message history.
type ChatHub interface {
	Join(channelID, userID uuid.UUID, session Session)
	Leave(channelID, userID uuid.UUID, session Session)

	// Broadcast delivers message to every current subscriber of the
	// channel. Delivery is best-effort per recipient: a failed send is
	// logged and skipped without affecting the others.
	Broadcast(channelID uuid.UUID, message any)
}

type chatHub struct {
	// rooms is channel -> session -> subscriber user id. Keying on the
	// session keeps duplicate registrations harmless.
	rooms map[uuid.UUID]map[Session]uuid.UUID

	mu sync.RWMutex
}

func NewChatHub() ChatHub {
	return &chatHub{
		rooms: make(map[uuid.UUID]map[Session]uuid.UUID),
	}
}

func (h *chatHub) Join(channelID, userID uuid.UUID, session Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[channelID]
	if !ok {
		room = make(map[Session]uuid.UUID)
		h.rooms[channelID] = room
	}

	room[session] = userID
	metric.IncChatSessions()
}

func (h *chatHub) Leave(channelID, userID uuid.UUID, session Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[channelID]
	if !ok {
		return
	}

	if subscriber, ok := room[session]; !ok || subscriber != userID {
		return
	}

	delete(room, session)
	metric.DecChatSessions()

	if len(room) == 0 {
		delete(h.rooms, channelID)
	}
}

func (h *chatHub) Broadcast(channelID uuid.UUID, message any) {
	// Snapshot under the read lock, then send without it, so a slow
	// recipient never blocks join/leave or the other sends.
	h.mu.RLock()
	room := h.rooms[channelID]
	sessions := make([]Session, 0, len(room))
	users := make([]uuid.UUID, 0, len(room))
	for session, userID := range room {
		sessions = append(sessions, session)
		users = append(users, userID)
	}
	h.mu.RUnlock()

	for i, session := range sessions {
		if err := session.Send(message); err != nil {
			slog.Error(
				"chat broadcast send",
				slog.Any(constant.Error, err),
				slog.Any(constant.ChannelID, channelID),
				slog.Any(constant.UserID, users[i]),
			)
		}
	}
}
