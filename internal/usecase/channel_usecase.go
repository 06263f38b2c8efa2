package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/chogm/discordlite/internal/domain/models"
	"github.com/chogm/discordlite/internal/infra/adapters/postgres/repository"
)

var (
	ErrNotMember    = errors.New("user is not a member of the channel")
	ErrEmptyContent = errors.New("message cannot be empty")
)

type ChannelUsecase interface {
	CreateChannel(ctx context.Context, creatorID uuid.UUID, name string) (*models.Channel, error)
	DeleteChannel(ctx context.Context, userID, channelID uuid.UUID) error
	JoinChannel(ctx context.Context, userID, channelID uuid.UUID) error
	ListChannels(ctx context.Context, userID uuid.UUID) ([]*models.Channel, error)

	// PostMessage persists content as a message from userID in channelID
	// and returns it with its durable id and timestamp. Fails with
	// ErrEmptyContent or ErrNotMember.
	PostMessage(ctx context.Context, userID, channelID uuid.UUID, content string) (*models.Message, error)

	ListMessages(ctx context.Context, userID, channelID uuid.UUID, limit int) ([]*models.Message, error)
	IsMember(ctx context.Context, userID, channelID uuid.UUID) (bool, error)
}

type channelUsecase struct {
	channelRepo repository.ChannelRepository
	messageRepo repository.MessageRepository
}

func NewChannelUsecase(channelRepo repository.ChannelRepository, messageRepo repository.MessageRepository) ChannelUsecase {
	return &channelUsecase{
		channelRepo: channelRepo,
		messageRepo: messageRepo,
	}
}

func (uc *channelUsecase) CreateChannel(ctx context.Context, creatorID uuid.UUID, name string) (*models.Channel, error) {
	channel := models.NewChannel(creatorID, name)

	if err := uc.channelRepo.Create(ctx, channel); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}

	// The creator is always a member of their own channel.
	if err := uc.channelRepo.AddMember(ctx, creatorID, channel.ID); err != nil {
		return nil, fmt.Errorf("add creator to channel: %w", err)
	}

	return channel, nil
}

func (uc *channelUsecase) DeleteChannel(ctx context.Context, userID, channelID uuid.UUID) error {
	channel, err := uc.channelRepo.GetByID(ctx, channelID)
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}

	if channel.CreatorID != userID {
		return ErrNotMember
	}

	return uc.channelRepo.Delete(ctx, channelID)
}

func (uc *channelUsecase) JoinChannel(ctx context.Context, userID, channelID uuid.UUID) error {
	if _, err := uc.channelRepo.GetByID(ctx, channelID); err != nil {
		return fmt.Errorf("get channel: %w", err)
	}

	return uc.channelRepo.AddMember(ctx, userID, channelID)
}

func (uc *channelUsecase) ListChannels(ctx context.Context, userID uuid.UUID) ([]*models.Channel, error) {
	return uc.channelRepo.GetChannelsByUserID(ctx, userID)
}

func (uc *channelUsecase) PostMessage(ctx context.Context, userID, channelID uuid.UUID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	member, err := uc.channelRepo.IsMember(ctx, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, ErrNotMember
	}

	message := models.NewMessage(channelID, userID, content)

	if err = uc.messageRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	return message, nil
}

func (uc *channelUsecase) ListMessages(ctx context.Context, userID, channelID uuid.UUID, limit int) ([]*models.Message, error) {
	member, err := uc.channelRepo.IsMember(ctx, userID, channelID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !member {
		return nil, ErrNotMember
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	return uc.messageRepo.ListByChannelID(ctx, channelID, limit)
}

func (uc *channelUsecase) IsMember(ctx context.Context, userID, channelID uuid.UUID) (bool, error) {
	return uc.channelRepo.IsMember(ctx, userID, channelID)
}
