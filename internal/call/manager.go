package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/chogm/discordlite/internal/application/constant"
	"github.com/chogm/discordlite/internal/realtime"
)

// ErrCallInProgress is returned when an outgoing call is attempted while a
// session is already active. Calls are never queued.
var ErrCallInProgress = errors.New("a call is already in progress")

// AudioRouter switches the audio I/O route when a call connects and restores
// it on teardown.
type AudioRouter interface {
	Activate()
	Deactivate()
}

type noopAudio struct{}

func (noopAudio) Activate()   {}
func (noopAudio) Deactivate() {}

// Options wires a Manager to its collaborators. Dial, NewTransport and Ice
// are required; the rest are optional.
type Options struct {
	// DisplayName is stamped into outgoing call_request payloads so the
	// callee can render the caller without a lookup.
	DisplayName string

	Dial         DialFunc
	NewTransport TransportFactory
	Ice          IceProvider

	Audio AudioRouter

	OnStateChange  func(State)
	OnIncomingCall func(Session)
}

// Manager drives the lifecycle of the single call this process may hold, from
// request through termination. All transitions run under one mutex; the
// signaling socket, the peer transport and the push decoder all feed events
// into it concurrently.
type Manager struct {
	mu sync.Mutex

	state     State
	session   *Session
	signaler  Signaler
	transport PeerTransport

	// pending buffers remote ICE candidates that arrived before the
	// remote description. They are replayed once, in arrival order, the
	// moment the description is set.
	pending     []realtime.ICECandidatePayload
	remoteReady bool

	micMuted bool

	displayName  string
	dial         DialFunc
	newTransport TransportFactory
	ice          IceProvider
	audio        AudioRouter

	onStateChange  func(State)
	onIncomingCall func(Session)
}

func NewManager(opts Options) *Manager {
	audio := opts.Audio
	if audio == nil {
		audio = noopAudio{}
	}

	return &Manager{
		state:          StateIdle,
		displayName:    opts.DisplayName,
		dial:           opts.Dial,
		newTransport:   opts.NewTransport,
		ice:            opts.Ice,
		audio:          audio,
		onStateChange:  opts.OnStateChange,
		onIncomingCall: opts.OnIncomingCall,
	}
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ActiveSession returns a copy of the current session, if any.
func (m *Manager) ActiveSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// StartOutgoing initiates a call to targetUserID in channelID. It opens the
// signaling connection and sends call_request; the rest of the handshake is
// driven by inbound envelopes.
func (m *Manager) StartOutgoing(ctx context.Context, channelID, targetUserID string) error {
	var err error
	m.withLock(func() {
		if m.state != StateIdle {
			err = ErrCallInProgress
			return
		}

		callID := uuid.New().String()
		m.session = &Session{
			CallID:    callID,
			ChannelID: channelID,
			PeerID:    targetUserID,
			Outgoing:  true,
		}
		m.state = StateOutgoing

		if err = m.connectSignaling(ctx, channelID); err != nil {
			m.cleanupLocked()
			return
		}

		m.ice.GetOrRefresh(ctx)

		m.sendSignal(realtime.TypeCallRequest, targetUserID, realtime.CallRequestPayload{
			CallID:     callID,
			ChannelID:  channelID,
			CallerName: m.displayName,
		})
	})

	return err
}

// HandleIncomingPush constructs a session from a decoded incoming-call push
// and moves to the incoming state. The signaling connection is opened lazily
// on accept. Ignored unless idle.
func (m *Manager) HandleIncomingPush(callID, channelID, fromUserID, callerName string) {
	var incoming *Session
	m.withLock(func() {
		if m.state != StateIdle {
			return
		}

		m.session = &Session{
			CallID:    callID,
			ChannelID: channelID,
			PeerID:    fromUserID,
			PeerName:  callerName,
			Outgoing:  false,
		}
		m.state = StateIncoming

		s := *m.session
		incoming = &s
	})

	if incoming != nil && m.onIncomingCall != nil {
		m.onIncomingCall(*incoming)
	}
}

// Accept answers the ringing incoming call: it connects signaling and sends
// call_accept, then waits for the caller's offer.
func (m *Manager) Accept(ctx context.Context) error {
	var err error
	m.withLock(func() {
		if m.state != StateIncoming || m.session == nil {
			return
		}

		if err = m.connectSignaling(ctx, m.session.ChannelID); err != nil {
			m.cleanupLocked()
			return
		}

		m.state = StateConnecting
		m.sendSignal(realtime.TypeCallAccept, m.session.PeerID, realtime.CallControlPayload{
			CallID: m.session.CallID,
		})
	})

	return err
}

// Reject declines the ringing incoming call and returns to idle.
func (m *Manager) Reject() {
	m.withLock(func() {
		if m.state != StateIncoming || m.session == nil {
			return
		}

		m.sendSignal(realtime.TypeCallReject, m.session.PeerID, realtime.CallControlPayload{
			CallID: m.session.CallID,
		})
		m.cleanupLocked()
	})
}

// End terminates the call from any non-idle state.
func (m *Manager) End() {
	m.withLock(func() {
		if m.state == StateIdle || m.session == nil {
			return
		}

		m.sendSignal(realtime.TypeCallEnd, m.session.PeerID, realtime.CallControlPayload{
			CallID: m.session.CallID,
		})
		m.cleanupLocked()
	})
}

// SetMicMuted toggles outbound audio.
func (m *Manager) SetMicMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.micMuted = muted
	if m.transport != nil {
		m.transport.SetMicrophoneMuted(muted)
	}
}

// HandleEnvelope feeds one inbound signaling envelope through the transition
// table. Envelopes invalid for the current state are ignored.
func (m *Manager) HandleEnvelope(ctx context.Context, envelope realtime.SignalEnvelope) {
	var incoming *Session
	m.withLock(func() {
		switch envelope.Type {
		case realtime.TypeCallRequest:
			incoming = m.handleCallRequest(envelope)

		case realtime.TypeCallAccept:
			if m.state == StateOutgoing {
				m.startOffer(ctx)
			}

		case realtime.TypeCallReject:
			if m.state == StateOutgoing {
				m.cleanupLocked()
			}

		case realtime.TypeCallEnd:
			if m.state != StateIdle {
				m.cleanupLocked()
			}

		case realtime.TypeSDPOffer:
			if m.state == StateConnecting {
				m.handleRemoteOffer(ctx, envelope)
			}

		case realtime.TypeSDPAnswer:
			if m.state == StateConnecting {
				m.handleRemoteAnswer(envelope)
			}

		case realtime.TypeICECandidate:
			m.handleRemoteCandidate(envelope)
		}
	})

	if incoming != nil && m.onIncomingCall != nil {
		m.onIncomingCall(*incoming)
	}
}

func (m *Manager) handleCallRequest(envelope realtime.SignalEnvelope) *Session {
	if m.state != StateIdle || envelope.FromUserID == "" {
		return nil
	}

	var payload realtime.CallRequestPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return nil
	}
	if payload.CallID == "" || payload.ChannelID == "" {
		return nil
	}

	callerName := payload.CallerName
	if callerName == "" {
		callerName = "Caller"
	}

	m.session = &Session{
		CallID:    payload.CallID,
		ChannelID: payload.ChannelID,
		PeerID:    envelope.FromUserID,
		PeerName:  callerName,
		Outgoing:  false,
	}
	m.state = StateIncoming

	s := *m.session
	return &s
}

// startOffer runs on the caller once the callee accepted: fetch ICE config,
// build the transport and send the offer.
func (m *Manager) startOffer(ctx context.Context) {
	if m.session == nil {
		return
	}

	m.state = StateConnecting

	if err := m.ensureTransport(ctx); err != nil {
		slog.Error("setup transport", slog.Any(constant.Error, err), slog.Any(constant.CallID, m.session.CallID))
		m.cleanupLocked()
		return
	}

	sdp, err := m.transport.CreateOffer()
	if err != nil {
		slog.Error("create offer", slog.Any(constant.Error, err), slog.Any(constant.CallID, m.session.CallID))
		m.cleanupLocked()
		return
	}

	m.sendSignal(realtime.TypeSDPOffer, m.session.PeerID, realtime.SDPPayload{
		CallID: m.session.CallID,
		SDP:    sdp,
	})
}

// handleRemoteOffer runs on the callee: apply the caller's offer, replay any
// queued candidates and answer.
func (m *Manager) handleRemoteOffer(ctx context.Context, envelope realtime.SignalEnvelope) {
	if m.session == nil {
		return
	}

	var payload realtime.SDPPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.SDP == "" {
		return
	}

	if err := m.ensureTransport(ctx); err != nil {
		slog.Error("setup transport", slog.Any(constant.Error, err), slog.Any(constant.CallID, m.session.CallID))
		m.cleanupLocked()
		return
	}

	if err := m.transport.SetRemoteOffer(payload.SDP); err != nil {
		slog.Error("apply remote offer", slog.Any(constant.Error, err), slog.Any(constant.CallID, m.session.CallID))
		m.cleanupLocked()
		return
	}

	m.drainPendingLocked()

	sdp, err := m.transport.CreateAnswer()
	if err != nil {
		slog.Error("create answer", slog.Any(constant.Error, err), slog.Any(constant.CallID, m.session.CallID))
		m.cleanupLocked()
		return
	}

	m.sendSignal(realtime.TypeSDPAnswer, m.session.PeerID, realtime.SDPPayload{
		CallID: m.session.CallID,
		SDP:    sdp,
	})
}

// handleRemoteAnswer runs on the caller: apply the callee's answer and replay
// queued candidates.
func (m *Manager) handleRemoteAnswer(envelope realtime.SignalEnvelope) {
	if m.transport == nil {
		return
	}

	var payload realtime.SDPPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.SDP == "" {
		return
	}

	if err := m.transport.SetRemoteAnswer(payload.SDP); err != nil {
		slog.Error("apply remote answer", slog.Any(constant.Error, err))
		m.cleanupLocked()
		return
	}

	m.drainPendingLocked()
}

func (m *Manager) handleRemoteCandidate(envelope realtime.SignalEnvelope) {
	if m.state == StateIdle {
		return
	}

	var payload realtime.ICECandidatePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.Candidate == "" {
		return
	}

	if m.transport == nil || !m.remoteReady {
		m.pending = append(m.pending, payload)
		return
	}

	if err := m.transport.AddRemoteCandidate(payload); err != nil {
		slog.Error("add remote candidate", slog.Any(constant.Error, err))
	}
}

func (m *Manager) drainPendingLocked() {
	m.remoteReady = true

	for _, candidate := range m.pending {
		if err := m.transport.AddRemoteCandidate(candidate); err != nil {
			slog.Error("replay queued candidate", slog.Any(constant.Error, err))
		}
	}
	m.pending = nil
}

func (m *Manager) ensureTransport(ctx context.Context) error {
	if m.transport != nil {
		return nil
	}

	servers := m.ice.GetOrRefresh(ctx)

	transport, err := m.newTransport(servers, TransportEvents{
		OnICECandidate: m.handleLocalCandidate,
		OnConnected:    m.handleTransportConnected,
		OnClosed:       m.handleTransportClosed,
	})
	if err != nil {
		return fmt.Errorf("new peer transport: %w", err)
	}

	m.transport = transport
	transport.SetMicrophoneMuted(m.micMuted)

	return nil
}

func (m *Manager) handleLocalCandidate(candidate realtime.ICECandidatePayload) {
	m.withLock(func() {
		if m.session == nil {
			return
		}

		candidate.CallID = m.session.CallID
		m.sendSignal(realtime.TypeICECandidate, m.session.PeerID, candidate)
	})
}

func (m *Manager) handleTransportConnected() {
	m.withLock(func() {
		if m.state != StateConnecting {
			return
		}

		m.state = StateConnected
		m.audio.Activate()
	})
}

func (m *Manager) handleTransportClosed() {
	m.withLock(func() {
		if m.state == StateConnecting || m.state == StateConnected {
			m.cleanupLocked()
		}
	})
}

func (m *Manager) connectSignaling(ctx context.Context, channelID string) error {
	if m.signaler != nil {
		return nil
	}

	signaler, err := m.dial(ctx, channelID, func(envelope realtime.SignalEnvelope) {
		m.HandleEnvelope(context.Background(), envelope)
	})
	if err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}

	m.signaler = signaler
	return nil
}

// sendSignal marshals payload into an envelope and sends it. Failures are
// logged and swallowed: the state machine recovers through call_end or a
// transport event, never by blocking the caller.
func (m *Manager) sendSignal(envelopeType, targetUserID string, payload any) {
	if m.signaler == nil {
		return
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal signal payload", slog.Any(constant.Error, err))
		return
	}

	err = m.signaler.Send(realtime.SignalEnvelope{
		Type:         envelopeType,
		TargetUserID: targetUserID,
		Payload:      raw,
	})
	if err != nil {
		slog.Error("send signal", slog.Any(constant.Error, err))
	}
}

// cleanupLocked tears everything down and returns to idle. Every path back to
// idle funnels through here so no field survives into the next call.
func (m *Manager) cleanupLocked() {
	if m.signaler != nil {
		m.signaler.Close()
		m.signaler = nil
	}

	if m.transport != nil {
		m.transport.Close()
		m.transport = nil
	}

	m.pending = nil
	m.remoteReady = false
	m.micMuted = false
	m.session = nil

	if m.state == StateConnected || m.state == StateConnecting {
		m.audio.Deactivate()
	}
	m.state = StateIdle
}

// withLock runs fn as a single-writer transition and fires the state observer
// after the lock is released.
func (m *Manager) withLock(fn func()) {
	m.mu.Lock()
	before := m.state
	fn()
	after := m.state
	m.mu.Unlock()

	if before != after && m.onStateChange != nil {
		m.onStateChange(after)
	}
}
