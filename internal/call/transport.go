package call

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/chogm/discordlite/internal/realtime"
)

// PeerTransport is the media-plane half of a call: one peer connection
// carrying bidirectional audio. The manager owns its lifecycle.
type PeerTransport interface {
	CreateOffer() (string, error)
	CreateAnswer() (string, error)
	SetRemoteOffer(sdp string) error
	SetRemoteAnswer(sdp string) error
	AddRemoteCandidate(candidate realtime.ICECandidatePayload) error
	SetMicrophoneMuted(muted bool)
	Close() error
}

// TransportEvents are the transport-to-manager callbacks. They may be invoked
// from transport-internal goroutines at any time after construction.
type TransportEvents struct {
	// OnICECandidate fires for every locally gathered candidate.
	OnICECandidate func(realtime.ICECandidatePayload)

	// OnConnected fires once the transport reports an established
	// connection.
	OnConnected func()

	// OnClosed fires when the transport reports failed, disconnected or
	// closed.
	OnClosed func()
}

// TransportFactory builds a PeerTransport from the ICE servers in effect for
// this call.
type TransportFactory func(iceServers []webrtc.ICEServer, events TransportEvents) (PeerTransport, error)

type pionTransport struct {
	pc       *webrtc.PeerConnection
	track    *webrtc.TrackLocalStaticSample
	micMuted bool
}

// NewPionTransport is the production TransportFactory, backed by a
// pion/webrtc peer connection with a single audio transceiver.
func NewPionTransport(iceServers []webrtc.ICEServer, events TransportEvents) (PeerTransport, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio0", "discordlite",
	)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("new audio track: %w", err)
	}

	if _, err = pc.AddTrack(track); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio track: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || events.OnICECandidate == nil {
			return
		}

		init := c.ToJSON()

		var sdpMid string
		if init.SDPMid != nil {
			sdpMid = *init.SDPMid
		}
		var sdpMLineIndex uint16
		if init.SDPMLineIndex != nil {
			sdpMLineIndex = *init.SDPMLineIndex
		}

		events.OnICECandidate(realtime.ICECandidatePayload{
			Candidate:     init.Candidate,
			SDPMid:        sdpMid,
			SDPMLineIndex: sdpMLineIndex,
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if events.OnConnected != nil {
				events.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			if events.OnClosed != nil {
				events.OnClosed()
			}
		default:
		}
	})

	return &pionTransport{pc: pc, track: track}, nil
}

func (t *pionTransport) CreateOffer() (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}

	if err = t.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	return offer.SDP, nil
}

func (t *pionTransport) CreateAnswer() (string, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	if err = t.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	return answer.SDP, nil
}

func (t *pionTransport) SetRemoteOffer(sdp string) error {
	err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}

	return nil
}

func (t *pionTransport) SetRemoteAnswer(sdp string) error {
	err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
	if err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}

	return nil
}

func (t *pionTransport) AddRemoteCandidate(candidate realtime.ICECandidatePayload) error {
	sdpMid := candidate.SDPMid
	sdpMLineIndex := candidate.SDPMLineIndex

	err := t.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &sdpMid,
		SDPMLineIndex: &sdpMLineIndex,
	})
	if err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}

	return nil
}

func (t *pionTransport) SetMicrophoneMuted(muted bool) {
	t.micMuted = muted

	// Replacing the track with nil stops outbound audio without
	// renegotiation; restoring it resumes.
	for _, sender := range t.pc.GetSenders() {
		if muted {
			sender.ReplaceTrack(nil)
		} else {
			sender.ReplaceTrack(t.track)
		}
	}
}

func (t *pionTransport) Close() error {
	return t.pc.Close()
}
