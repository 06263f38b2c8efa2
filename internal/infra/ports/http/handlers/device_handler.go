package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/domain/models"
	"github.com/chogm/discordlite/internal/infra/appctx"
	"github.com/chogm/discordlite/internal/infra/adapters/postgres/repository"
	"github.com/chogm/discordlite/internal/infra/ports/http/dto"
)

type DeviceHandler struct {
	deviceRepo repository.DeviceRepository
}

func NewDeviceHandler(deviceRepo repository.DeviceRepository) *DeviceHandler {
	return &DeviceHandler{deviceRepo: deviceRepo}
}

// RegisterDevice stores a push token for the authenticated user so the
// incoming-call fallback can reach them.
func (h *DeviceHandler) RegisterDevice(c echo.Context) error {
	userID, ok := appctx.UserID(c.Request().Context())
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid user ID in context"})
	}

	var req dto.RegisterDeviceRequest
	if err := c.Bind(&req); err != nil || req.Platform == "" || req.Token == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "platform and token are required"})
	}

	device := models.NewDevice(userID, req.Platform, req.Token)

	if err := h.deviceRepo.Upsert(c.Request().Context(), device); err != nil {
		slog.Error("register device failed", slog.Any(constant.Error, err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not register device"})
	}

	return c.NoContent(http.StatusNoContent)
}
