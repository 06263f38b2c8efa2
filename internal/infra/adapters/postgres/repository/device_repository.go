package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chogm/discordlite/internal/domain/models"
)

type DeviceRepository interface {
	Upsert(ctx context.Context, device *models.Device) error
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Device, error)
}

type deviceRepo struct {
	db *sqlx.DB
}

func NewDeviceRepo(db *sqlx.DB) DeviceRepository {
	return &deviceRepo{db: db}
}

func (r *deviceRepo) Upsert(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (id, user_id, platform, token, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, token) DO UPDATE SET platform = EXCLUDED.platform
	`

	_, err := r.db.ExecContext(ctx, query, device.ID, device.UserID, device.Platform, device.Token, device.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert device: %w", err)
	}

	return nil
}

func (r *deviceRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Device, error) {
	var devices []*models.Device

	query := "SELECT id, user_id, platform, token, created_at FROM devices WHERE user_id = $1"

	err := r.db.SelectContext(ctx, &devices, query, userID)
	if err != nil {
		return nil, err
	}

	return devices, nil
}
