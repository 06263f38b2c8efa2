package call

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/chogm/discordlite/internal/realtime"
)

type fakeSignaler struct {
	mu     sync.Mutex
	sent   []realtime.SignalEnvelope
	closed int
}

func (s *fakeSignaler) Send(envelope realtime.SignalEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, envelope)
	return nil
}

func (s *fakeSignaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSignaler) envelopes() []realtime.SignalEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.SignalEnvelope, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSignaler) lastOfType(t *testing.T, envelopeType string) realtime.SignalEnvelope {
	t.Helper()
	for _, envelope := range s.envelopes() {
		if envelope.Type == envelopeType {
			return envelope
		}
	}
	t.Fatalf("no %s envelope was sent; sent: %+v", envelopeType, s.envelopes())
	return realtime.SignalEnvelope{}
}

type fakeTransport struct {
	mu         sync.Mutex
	events     TransportEvents
	offers     int
	answers    int
	remoteSDP  []string
	candidates []realtime.ICECandidatePayload
	muted      []bool
	closed     int

	offerErr error
}

func (tr *fakeTransport) CreateOffer() (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.offerErr != nil {
		return "", tr.offerErr
	}
	tr.offers++
	return "offer-sdp", nil
}

func (tr *fakeTransport) CreateAnswer() (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.answers++
	return "answer-sdp", nil
}

func (tr *fakeTransport) SetRemoteOffer(sdp string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.remoteSDP = append(tr.remoteSDP, sdp)
	return nil
}

func (tr *fakeTransport) SetRemoteAnswer(sdp string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.remoteSDP = append(tr.remoteSDP, sdp)
	return nil
}

func (tr *fakeTransport) AddRemoteCandidate(candidate realtime.ICECandidatePayload) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.candidates = append(tr.candidates, candidate)
	return nil
}

func (tr *fakeTransport) SetMicrophoneMuted(muted bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.muted = append(tr.muted, muted)
}

func (tr *fakeTransport) Close() error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.closed++
	return nil
}

func (tr *fakeTransport) addedCandidates() []realtime.ICECandidatePayload {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]realtime.ICECandidatePayload, len(tr.candidates))
	copy(out, tr.candidates)
	return out
}

type fakeAudio struct {
	mu         sync.Mutex
	activated  int
	deactivate int
}

func (a *fakeAudio) Activate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.activated++
}

func (a *fakeAudio) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deactivate++
}

// harness bundles a Manager with its fakes so tests can push envelopes and
// inspect the outcome.
type harness struct {
	manager   *Manager
	signaler  *fakeSignaler
	transport *fakeTransport
	audio     *fakeAudio

	mu       sync.Mutex
	states   []State
	incoming []Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		signaler:  &fakeSignaler{},
		transport: &fakeTransport{},
		audio:     &fakeAudio{},
	}

	h.manager = NewManager(Options{
		DisplayName: "Alice",
		Dial: func(ctx context.Context, channelID string, onEnvelope func(realtime.SignalEnvelope)) (Signaler, error) {
			return h.signaler, nil
		},
		NewTransport: func(servers []webrtc.ICEServer, events TransportEvents) (PeerTransport, error) {
			h.transport.events = events
			return h.transport, nil
		},
		Ice:   staticIce{},
		Audio: h.audio,
		OnStateChange: func(s State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.states = append(h.states, s)
		},
		OnIncomingCall: func(s Session) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.incoming = append(h.incoming, s)
		},
	})

	return h
}

type staticIce struct{}

func (staticIce) GetOrRefresh(ctx context.Context) []webrtc.ICEServer {
	return defaultStunServers
}

func (h *harness) deliver(t *testing.T, envelopeType, fromUserID string, payload any) {
	t.Helper()

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	h.manager.HandleEnvelope(context.Background(), realtime.SignalEnvelope{
		Type:       envelopeType,
		FromUserID: fromUserID,
		Payload:    raw,
	})
}

func (h *harness) observedStates() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]State, len(h.states))
	copy(out, h.states)
	return out
}

func (h *harness) incomingCalls() []Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Session, len(h.incoming))
	copy(out, h.incoming)
	return out
}

func requireState(t *testing.T, m *Manager, want State) {
	t.Helper()
	if got := m.State(); got != want {
		t.Fatalf("state = %s, want %s", got, want)
	}
}

func TestOutgoingCallHandshake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}
	requireState(t, h.manager, StateOutgoing)

	request := h.signaler.lastOfType(t, realtime.TypeCallRequest)
	if request.TargetUserID != "bob" {
		t.Fatalf("call_request target = %q, want bob", request.TargetUserID)
	}

	var requestPayload realtime.CallRequestPayload
	if err := json.Unmarshal(request.Payload, &requestPayload); err != nil {
		t.Fatalf("unmarshal call_request payload: %v", err)
	}
	if requestPayload.CallID == "" || requestPayload.ChannelID != "chan-1" || requestPayload.CallerName != "Alice" {
		t.Fatalf("unexpected call_request payload: %+v", requestPayload)
	}

	h.deliver(t, realtime.TypeCallAccept, "bob", realtime.CallControlPayload{CallID: requestPayload.CallID})
	requireState(t, h.manager, StateConnecting)

	offer := h.signaler.lastOfType(t, realtime.TypeSDPOffer)
	var offerPayload realtime.SDPPayload
	if err := json.Unmarshal(offer.Payload, &offerPayload); err != nil {
		t.Fatalf("unmarshal sdp_offer payload: %v", err)
	}
	if offerPayload.SDP != "offer-sdp" || offerPayload.CallID != requestPayload.CallID {
		t.Fatalf("unexpected sdp_offer payload: %+v", offerPayload)
	}

	h.deliver(t, realtime.TypeSDPAnswer, "bob", realtime.SDPPayload{
		CallID: requestPayload.CallID,
		SDP:    "remote-answer",
	})

	if got := h.transport.remoteSDP; len(got) != 1 || got[0] != "remote-answer" {
		t.Fatalf("remote descriptions = %v, want [remote-answer]", got)
	}

	h.transport.events.OnConnected()
	requireState(t, h.manager, StateConnected)
	if h.audio.activated != 1 {
		t.Fatalf("audio activated %d times, want 1", h.audio.activated)
	}

	h.manager.End()
	requireState(t, h.manager, StateIdle)

	h.signaler.lastOfType(t, realtime.TypeCallEnd)
	if h.transport.closed != 1 || h.signaler.closed != 1 {
		t.Fatalf("teardown: transport closed %d, signaler closed %d, want 1 and 1", h.transport.closed, h.signaler.closed)
	}
	if h.audio.deactivate != 1 {
		t.Fatalf("audio deactivated %d times, want 1", h.audio.deactivate)
	}
	if _, ok := h.manager.ActiveSession(); ok {
		t.Fatal("session survived teardown")
	}

	want := []State{StateOutgoing, StateConnecting, StateConnected, StateIdle}
	got := h.observedStates()
	if len(got) != len(want) {
		t.Fatalf("observed states %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("observed states %v, want %v", got, want)
		}
	}
}

func TestIncomingCallHandshake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.deliver(t, realtime.TypeCallRequest, "caller-1", realtime.CallRequestPayload{
		CallID:     "call-9",
		ChannelID:  "chan-2",
		CallerName: "Bob",
	})
	requireState(t, h.manager, StateIncoming)

	incoming := h.incomingCalls()
	if len(incoming) != 1 {
		t.Fatalf("onIncomingCall fired %d times, want 1", len(incoming))
	}
	if incoming[0].PeerName != "Bob" || incoming[0].CallID != "call-9" || incoming[0].Outgoing {
		t.Fatalf("unexpected incoming session: %+v", incoming[0])
	}

	// Candidates can race ahead of the offer; they must wait for it.
	h.deliver(t, realtime.TypeICECandidate, "caller-1", realtime.ICECandidatePayload{
		CallID:    "call-9",
		Candidate: "candidate-early",
	})

	if err := h.manager.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	requireState(t, h.manager, StateConnecting)
	h.signaler.lastOfType(t, realtime.TypeCallAccept)

	h.deliver(t, realtime.TypeSDPOffer, "caller-1", realtime.SDPPayload{
		CallID: "call-9",
		SDP:    "remote-offer",
	})

	answer := h.signaler.lastOfType(t, realtime.TypeSDPAnswer)
	var answerPayload realtime.SDPPayload
	if err := json.Unmarshal(answer.Payload, &answerPayload); err != nil {
		t.Fatalf("unmarshal sdp_answer payload: %v", err)
	}
	if answerPayload.SDP != "answer-sdp" {
		t.Fatalf("unexpected sdp_answer payload: %+v", answerPayload)
	}

	candidates := h.transport.addedCandidates()
	if len(candidates) != 1 || candidates[0].Candidate != "candidate-early" {
		t.Fatalf("queued candidate was not replayed: %v", candidates)
	}

	// A candidate arriving after the offer applies immediately.
	h.deliver(t, realtime.TypeICECandidate, "caller-1", realtime.ICECandidatePayload{
		CallID:    "call-9",
		Candidate: "candidate-late",
	})

	candidates = h.transport.addedCandidates()
	if len(candidates) != 2 || candidates[1].Candidate != "candidate-late" {
		t.Fatalf("late candidate was not applied directly: %v", candidates)
	}
}

func TestQueuedCandidatesReplayInOrderExactlyOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}
	h.deliver(t, realtime.TypeCallAccept, "bob", realtime.CallControlPayload{CallID: "c"})

	for _, c := range []string{"one", "two", "three"} {
		h.deliver(t, realtime.TypeICECandidate, "bob", realtime.ICECandidatePayload{
			CallID:    "c",
			Candidate: c,
		})
	}

	if got := h.transport.addedCandidates(); len(got) != 0 {
		t.Fatalf("candidates applied before the remote description: %v", got)
	}

	h.deliver(t, realtime.TypeSDPAnswer, "bob", realtime.SDPPayload{CallID: "c", SDP: "remote-answer"})

	got := h.transport.addedCandidates()
	if len(got) != 3 {
		t.Fatalf("replayed %d candidates, want 3", len(got))
	}
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Candidate != want {
			t.Fatalf("candidate %d = %q, want %q", i, got[i].Candidate, want)
		}
	}

	// A second description event must not replay the queue again.
	h.deliver(t, realtime.TypeSDPAnswer, "bob", realtime.SDPPayload{CallID: "c", SDP: "renegotiated"})
	if got := h.transport.addedCandidates(); len(got) != 3 {
		t.Fatalf("queued candidates replayed twice: %v", got)
	}
}

func TestStartOutgoingWhileBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}

	if err := h.manager.StartOutgoing(ctx, "chan-1", "carol"); !errors.Is(err, ErrCallInProgress) {
		t.Fatalf("second StartOutgoing = %v, want ErrCallInProgress", err)
	}
}

func TestCallRequestIgnoredWhileBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}

	h.deliver(t, realtime.TypeCallRequest, "carol", realtime.CallRequestPayload{
		CallID:    "other",
		ChannelID: "chan-2",
	})

	requireState(t, h.manager, StateOutgoing)
	if len(h.incomingCalls()) != 0 {
		t.Fatal("busy manager surfaced a second incoming call")
	}

	session, ok := h.manager.ActiveSession()
	if !ok || session.PeerID != "bob" {
		t.Fatalf("active session hijacked: %+v", session)
	}
}

func TestCallEndFromEitherSide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.manager.HandleIncomingPush("call-3", "chan-1", "caller-1", "Bob")
	requireState(t, h.manager, StateIncoming)

	if err := h.manager.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	h.manager.End()
	requireState(t, h.manager, StateIdle)

	h2 := newHarness(t)
	h2.manager.HandleIncomingPush("call-4", "chan-1", "caller-1", "Bob")

	if err := h2.manager.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	// Accept connected signaling; now a remote call_end tears down.
	h2.deliver(t, realtime.TypeCallEnd, "caller-1", realtime.CallControlPayload{CallID: "call-4"})
	requireState(t, h2.manager, StateIdle)
	if h2.signaler.closed != 1 {
		t.Fatalf("signaler closed %d times, want 1", h2.signaler.closed)
	}
}

func TestRejectWhileRinging(t *testing.T) {
	h := newHarness(t)

	h.manager.HandleIncomingPush("call-5", "chan-1", "caller-1", "Bob")
	requireState(t, h.manager, StateIncoming)

	h.manager.Reject()
	requireState(t, h.manager, StateIdle)
	if _, ok := h.manager.ActiveSession(); ok {
		t.Fatal("session survived reject")
	}
}

func TestRejectAfterAcceptIsNoOp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.manager.HandleIncomingPush("call-5", "chan-1", "caller-1", "Bob")
	if err := h.manager.Accept(ctx); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	h.manager.Reject()
	requireState(t, h.manager, StateConnecting)
}

func TestHandleIncomingPushIgnoredWhileBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}

	h.manager.HandleIncomingPush("call-7", "chan-2", "carol", "Carol")

	requireState(t, h.manager, StateOutgoing)
	if len(h.incomingCalls()) != 0 {
		t.Fatal("push-constructed call surfaced while busy")
	}
}

func TestSDPIgnoredOutsideConnecting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}

	// Still ringing: an offer before call_accept must not build a transport.
	h.deliver(t, realtime.TypeSDPOffer, "bob", realtime.SDPPayload{CallID: "c", SDP: "early"})

	requireState(t, h.manager, StateOutgoing)
	if len(h.transport.remoteSDP) != 0 {
		t.Fatalf("premature offer was applied: %v", h.transport.remoteSDP)
	}
}

func TestRemoteRejectTearsDownCaller(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}

	h.deliver(t, realtime.TypeCallReject, "bob", realtime.CallControlPayload{CallID: "c"})

	requireState(t, h.manager, StateIdle)
	if h.signaler.closed != 1 {
		t.Fatalf("signaler closed %d times, want 1", h.signaler.closed)
	}
}

func TestTransportFailureEndsCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}
	h.deliver(t, realtime.TypeCallAccept, "bob", realtime.CallControlPayload{CallID: "c"})
	h.transport.events.OnConnected()
	requireState(t, h.manager, StateConnected)

	h.transport.events.OnClosed()

	requireState(t, h.manager, StateIdle)
	if h.audio.deactivate != 1 {
		t.Fatalf("audio deactivated %d times, want 1", h.audio.deactivate)
	}
}

func TestMutePersistsAcrossTransportCreation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.manager.SetMicMuted(true)

	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}
	h.deliver(t, realtime.TypeCallAccept, "bob", realtime.CallControlPayload{CallID: "c"})

	if got := h.transport.muted; len(got) == 0 || got[0] != true {
		t.Fatalf("mute state was not applied to the new transport: %v", got)
	}

	h.manager.End()

	// Teardown resets mute so the next call starts unmuted.
	if err := h.manager.StartOutgoing(ctx, "chan-1", "bob"); err != nil {
		t.Fatalf("StartOutgoing: %v", err)
	}
	h.deliver(t, realtime.TypeCallAccept, "bob", realtime.CallControlPayload{CallID: "c"})

	muted := h.transport.muted
	if muted[len(muted)-1] != false {
		t.Fatalf("mute leaked into the next call: %v", muted)
	}
}

func TestEndWhileIdleIsNoOp(t *testing.T) {
	h := newHarness(t)

	h.manager.End()
	h.manager.Reject()

	requireState(t, h.manager, StateIdle)
	if len(h.signaler.envelopes()) != 0 {
		t.Fatalf("idle teardown sent envelopes: %v", h.signaler.envelopes())
	}
	if len(h.observedStates()) != 0 {
		t.Fatalf("idle no-ops fired state changes: %v", h.observedStates())
	}
}
