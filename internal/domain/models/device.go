package models

import (
	"time"

	"github.com/google/uuid"
)

// Device is a push-notification token registered by a client app.
type Device struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Platform  string    `json:"platform" db:"platform"`
	Token     string    `json:"token" db:"token"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func NewDevice(userID uuid.UUID, platform, token string) *Device {
	return &Device{
		ID:        uuid.New(),
		UserID:    userID,
		Platform:  platform,
		Token:     token,
		CreatedAt: time.Now(),
	}
}
