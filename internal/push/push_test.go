package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/chogm/discordlite/internal/domain/models"
)

type memDeviceRepo struct {
	devices map[uuid.UUID][]*models.Device
}

func (r *memDeviceRepo) Upsert(ctx context.Context, device *models.Device) error {
	if r.devices == nil {
		r.devices = make(map[uuid.UUID][]*models.Device)
	}
	r.devices[device.UserID] = append(r.devices[device.UserID], device)
	return nil
}

func (r *memDeviceRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Device, error) {
	return r.devices[userID], nil
}

func TestWebhookServicePostsCallAndDevices(t *testing.T) {
	userID := uuid.New()

	repo := &memDeviceRepo{}
	if err := repo.Upsert(context.Background(), models.NewDevice(userID, "android", "fcm-token-1")); err != nil {
		t.Fatalf("seed device: %v", err)
	}

	var received atomic.Pointer[webhookRequest]
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}

		var body webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received.Store(&body)
	}))
	defer backend.Close()

	service := NewService(backend.URL, repo)
	service.SendIncomingCall(context.Background(), userID, IncomingCallPayload{
		CallID:     "call-1",
		ChannelID:  "chan-1",
		FromUserID: "caller-1",
		CallerName: "Alice",
	})

	body := received.Load()
	if body == nil {
		t.Fatal("webhook was never called")
	}
	if body.TargetUserID != userID.String() {
		t.Fatalf("targetUserId = %q, want %q", body.TargetUserID, userID)
	}
	if body.Call.CallID != "call-1" || body.Call.CallerName != "Alice" {
		t.Fatalf("unexpected call payload: %+v", body.Call)
	}
	if len(body.Devices) != 1 || body.Devices[0].Token != "fcm-token-1" || body.Devices[0].Platform != "android" {
		t.Fatalf("unexpected devices: %+v", body.Devices)
	}
}

func TestWebhookServiceSkipsUserWithoutDevices(t *testing.T) {
	var hits atomic.Int64
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer backend.Close()

	service := NewService(backend.URL, &memDeviceRepo{})
	service.SendIncomingCall(context.Background(), uuid.New(), IncomingCallPayload{CallID: "call-1"})

	if hits.Load() != 0 {
		t.Fatalf("webhook called %d times for a user with no devices", hits.Load())
	}
}

func TestNewServiceWithoutURLIsNoop(t *testing.T) {
	service := NewService("", &memDeviceRepo{})

	// Must not panic or block.
	service.SendIncomingCall(context.Background(), uuid.New(), IncomingCallPayload{CallID: "call-1"})
}
