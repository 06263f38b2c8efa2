package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/infra/adapters/postgres/repository"
)

const sendTimeout = 5 * time.Second

// IncomingCallPayload is the out-of-band notification for a call_request
// whose target had no live signaling session.
type IncomingCallPayload struct {
	CallID     string `json:"callId"`
	ChannelID  string `json:"channelId"`
	FromUserID string `json:"fromUserId"`
	CallerName string `json:"callerName"`
}

// Service delivers incoming-call notifications out of band. Best effort:
// implementations swallow failures.
type Service interface {
	SendIncomingCall(ctx context.Context, targetUserID uuid.UUID, payload IncomingCallPayload)
}

// NewService returns the webhook-backed service when a URL is configured and
// a no-op otherwise.
func NewService(webhookURL string, deviceRepo repository.DeviceRepository) Service {
	if webhookURL == "" {
		return &noopService{}
	}

	return &webhookService{
		url:        webhookURL,
		deviceRepo: deviceRepo,
		client:     &http.Client{Timeout: sendTimeout},
	}
}

type noopService struct{}

func (*noopService) SendIncomingCall(ctx context.Context, targetUserID uuid.UUID, payload IncomingCallPayload) {
	slog.Info(
		"push delivery disabled, dropping incoming-call notification",
		slog.Any(constant.UserID, targetUserID),
		slog.Any(constant.CallID, payload.CallID),
	)
}

// webhookService POSTs the call payload plus the target's registered device
// tokens to an external delivery endpoint (APNs/FCM bridging lives there).
type webhookService struct {
	url        string
	deviceRepo repository.DeviceRepository
	client     *http.Client
}

type webhookRequest struct {
	TargetUserID string              `json:"targetUserId"`
	Call         IncomingCallPayload `json:"call"`
	Devices      []webhookDevice     `json:"devices"`
}

type webhookDevice struct {
	Platform string `json:"platform"`
	Token    string `json:"token"`
}

func (s *webhookService) SendIncomingCall(ctx context.Context, targetUserID uuid.UUID, payload IncomingCallPayload) {
	if err := s.send(ctx, targetUserID, payload); err != nil {
		slog.Error(
			"send incoming-call push",
			slog.Any(constant.Error, err),
			slog.Any(constant.UserID, targetUserID),
			slog.Any(constant.CallID, payload.CallID),
		)
	}
}

func (s *webhookService) send(ctx context.Context, targetUserID uuid.UUID, payload IncomingCallPayload) error {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	devices, err := s.deviceRepo.ListByUserID(sendCtx, targetUserID)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return nil
	}

	request := webhookRequest{
		TargetUserID: targetUserID.String(),
		Call:         payload,
		Devices:      make([]webhookDevice, 0, len(devices)),
	}
	for _, device := range devices {
		request.Devices = append(request.Devices, webhookDevice{
			Platform: device.Platform,
			Token:    device.Token,
		})
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal push request: %w", err)
	}

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post push webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push webhook status %d", resp.StatusCode)
	}

	return nil
}
