package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chogm/discordlite/internal/domain/models"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	ListByChannelID(ctx context.Context, channelID uuid.UUID, limit int) ([]*models.Message, error)
}

type messageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) MessageRepository {
	return &messageRepo{db: db}
}

func (r *messageRepo) Create(ctx context.Context, message *models.Message) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO messages (id, channel_id, sender_id, content, created_at) VALUES ($1, $2, $3, $4, $5)",
		message.ID,
		message.ChannelID,
		message.SenderID,
		message.Content,
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

func (r *messageRepo) ListByChannelID(ctx context.Context, channelID uuid.UUID, limit int) ([]*models.Message, error) {
	var messages []*models.Message

	query := `
		SELECT id, channel_id, sender_id, content, created_at
		FROM messages
		WHERE channel_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &messages, query, channelID, limit)
	if err != nil {
		return nil, err
	}

	return messages, nil
}
