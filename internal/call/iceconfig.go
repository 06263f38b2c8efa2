package call

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/chogm/discordlite/internal/application/constant"
)

const (
	iceConfigTTL          = 5 * time.Minute
	iceConfigFetchTimeout = 5 * time.Second
)

var defaultStunServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// IceProvider yields the ICE servers to use for the next peer connection.
type IceProvider interface {
	GetOrRefresh(ctx context.Context) []webrtc.ICEServer
}

// IceConfigCache fetches the relay's ICE configuration and caches it for five
// minutes. A failed refresh keeps whatever was cached before; with nothing
// cached it falls back to a default STUN list. It never returns an error --
// a call can proceed on stale or STUN-only servers.
type IceConfigCache struct {
	BaseURL string
	Token   string

	// HTTPClient defaults to a client with a short timeout.
	HTTPClient *http.Client

	mu        sync.Mutex
	servers   []webrtc.ICEServer
	fetchedAt time.Time
}

type iceServerEntry struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

type iceConfigResponse struct {
	IceServers []iceServerEntry `json:"iceServers"`
}

func (c *IceConfigCache) GetOrRefresh(ctx context.Context) []webrtc.ICEServer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.servers) > 0 && time.Since(c.fetchedAt) < iceConfigTTL {
		return c.servers
	}

	servers, err := c.fetch(ctx)
	if err != nil {
		slog.Error("fetch ice config", slog.Any(constant.Error, err))

		if len(c.servers) > 0 {
			return c.servers
		}

		return defaultStunServers
	}

	c.servers = servers
	c.fetchedAt = time.Now()

	return c.servers
}

func (c *IceConfigCache) fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, iceConfigFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, c.BaseURL+"/api/v1/calls/ice", nil)
	if err != nil {
		return nil, fmt.Errorf("build ice config request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: iceConfigFetchTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ice config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ice config status %d", resp.StatusCode)
	}

	var body iceConfigResponse
	if err = json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode ice config: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(body.IceServers))
	for _, entry := range body.IceServers {
		if len(entry.URLs) == 0 {
			continue
		}

		server := webrtc.ICEServer{URLs: entry.URLs}
		if entry.Username != "" && entry.Credential != "" {
			server.Username = entry.Username
			server.Credential = entry.Credential
		}

		servers = append(servers, server)
	}

	if len(servers) == 0 {
		return nil, fmt.Errorf("ice config contained no servers")
	}

	return servers, nil
}
