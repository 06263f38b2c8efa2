package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chogm/discordlite/internal/domain/models"
)

type ChannelRepository interface {
	Create(ctx context.Context, channel *models.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, userID, channelID uuid.UUID) error
	RemoveMember(ctx context.Context, userID, channelID uuid.UUID) error
	IsMember(ctx context.Context, userID, channelID uuid.UUID) (bool, error)

	GetChannelsByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Channel, error)
}

type channelRepo struct {
	db *sqlx.DB
}

func NewChannelRepo(db *sqlx.DB) ChannelRepository {
	return &channelRepo{db: db}
}

func (r *channelRepo) Create(ctx context.Context, channel *models.Channel) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO channels (id, creator_id, name) VALUES ($1, $2, $3)",
		channel.ID,
		channel.CreatorID,
		channel.Name,
	)

	return err
}

func (r *channelRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel

	err := r.db.GetContext(ctx, &channel, "SELECT * FROM channels WHERE id = $1", id)
	if err != nil {
		return nil, err
	}

	return &channel, nil
}

func (r *channelRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM channels WHERE id = $1", id)

	return err
}

func (r *channelRepo) AddMember(ctx context.Context, userID, channelID uuid.UUID) error {
	_, err := r.db.ExecContext(
		ctx,
		"INSERT INTO channel_members (user_id, channel_id, joined_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		userID,
		channelID,
		time.Now(),
	)
	return err
}

func (r *channelRepo) RemoveMember(ctx context.Context, userID, channelID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM channel_members WHERE user_id = $1 AND channel_id = $2", userID, channelID)
	return err
}

func (r *channelRepo) IsMember(ctx context.Context, userID, channelID uuid.UUID) (bool, error) {
	var count int

	query := "SELECT COUNT(*) FROM channel_members WHERE user_id = $1 AND channel_id = $2"

	if err := r.db.GetContext(ctx, &count, query, userID, channelID); err != nil {
		return false, err
	}

	return count > 0, nil
}

func (r *channelRepo) GetChannelsByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Channel, error) {
	var channels []*models.Channel

	query := `
		SELECT c.*
		FROM channels c
		INNER JOIN channel_members cm ON c.id = cm.channel_id
		WHERE cm.user_id = $1
	`

	err := r.db.SelectContext(ctx, &channels, query, userID)
	if err != nil {
		return nil, err
	}

	return channels, nil
}
