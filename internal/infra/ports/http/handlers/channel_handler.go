package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/infra/appctx"
	"github.com/chogm/discordlite/internal/infra/ports/http/dto"
	"github.com/chogm/discordlite/internal/usecase"
)

type ChannelHandler struct {
	channelUsecase usecase.ChannelUsecase
}

func NewChannelHandler(channelUsecase usecase.ChannelUsecase) *ChannelHandler {
	return &ChannelHandler{
		channelUsecase: channelUsecase,
	}
}

func (h *ChannelHandler) CreateChannel(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	var req dto.CreateChannelRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "channel name is required"})
	}

	channel, err := h.channelUsecase.CreateChannel(c.Request().Context(), userID, req.Name)
	if err != nil {
		slog.Error("create channel failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not create channel"})
	}

	return c.JSON(http.StatusCreated, channel)
}

func (h *ChannelHandler) ListChannels(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	channels, err := h.channelUsecase.ListChannels(c.Request().Context(), userID)
	if err != nil {
		slog.Error("list channels failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list channels"})
	}

	return c.JSON(http.StatusOK, channels)
}

func (h *ChannelHandler) JoinChannel(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}

	if err = h.channelUsecase.JoinChannel(c.Request().Context(), userID, channelID); err != nil {
		slog.Error("join channel failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusNotFound, map[string]string{"error": "channel not found"})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *ChannelHandler) DeleteChannel(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}

	if err = h.channelUsecase.DeleteChannel(c.Request().Context(), userID, channelID); err != nil {
		if errors.Is(err, usecase.ErrNotMember) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "only the creator can delete a channel"})
		}

		slog.Error("delete channel failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusNotFound, map[string]string{"error": "channel not found"})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *ChannelHandler) ListMessages(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	channelID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	messages, err := h.channelUsecase.ListMessages(c.Request().Context(), userID, channelID, limit)
	if err != nil {
		if errors.Is(err, usecase.ErrNotMember) {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "not a member of the channel"})
		}

		slog.Error("list messages failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not list messages"})
	}

	return c.JSON(http.StatusOK, messages)
}
