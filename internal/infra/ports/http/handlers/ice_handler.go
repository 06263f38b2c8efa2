package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/chogm/discordlite/internal/application/config"
)

type IceHandler struct {
	cfg *config.Config
}

func NewIceHandler(cfg *config.Config) *IceHandler {
	return &IceHandler{cfg: cfg}
}

type iceServerEntry struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type iceConfigResponse struct {
	IceServers []iceServerEntry `json:"iceServers"`
}

// IceServers serves the ICE configuration clients feed into their peer
// connections. TURN entries carry short-lived credentials derived from the
// coturn static-auth-secret; a default STUN entry keeps calls possible with
// nothing configured.
func (h *IceHandler) IceServers(c echo.Context) error {
	response := iceConfigResponse{}

	if len(h.cfg.TurnServers) > 0 && h.cfg.Coturn.Secret != "" {
		username, credential := h.turnCredentials()

		urls := make([]string, 0, len(h.cfg.TurnServers))
		for _, server := range h.cfg.TurnServers {
			urls = append(urls, server.URLs...)
		}

		response.IceServers = append(response.IceServers, iceServerEntry{
			URLs:       urls,
			Username:   username,
			Credential: credential,
		})
	}

	for _, server := range h.cfg.StunServers {
		response.IceServers = append(response.IceServers, iceServerEntry{URLs: server.URLs})
	}

	if len(response.IceServers) == 0 {
		response.IceServers = append(response.IceServers, iceServerEntry{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}

	return c.JSON(http.StatusOK, response)
}

// turnCredentials mints coturn REST-API credentials: the username is an
// expiry timestamp and the password its HMAC-SHA1 under the shared secret.
func (h *IceHandler) turnCredentials() (string, string) {
	expiration := time.Now().Add(time.Hour).Unix()
	username := fmt.Sprintf("%d", expiration)

	mac := hmac.New(sha1.New, []byte(h.cfg.Coturn.Secret))
	mac.Write([]byte(username))
	password := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return username, password
}
