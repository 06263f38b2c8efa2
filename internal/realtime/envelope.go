package realtime

import (
	"encoding/json"
	"errors"
)

// Envelope types exchanged over the signaling socket.
const (
	TypeCallRequest  = "call_request"
	TypeCallAccept   = "call_accept"
	TypeCallReject   = "call_reject"
	TypeCallEnd      = "call_end"
	TypeSDPOffer     = "sdp_offer"
	TypeSDPAnswer    = "sdp_answer"
	TypeICECandidate = "ice_candidate"
)

// SignalEnvelope is the wire frame of the signaling socket. FromUserID is
// always stamped by the relay before delivery; a client-supplied value is
// discarded.
type SignalEnvelope struct {
	Type         string          `json:"type"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	FromUserID   string          `json:"fromUserId,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Validate checks the fields every inbound envelope must carry.
func (e *SignalEnvelope) Validate() error {
	switch e.Type {
	case TypeCallRequest, TypeCallAccept, TypeCallReject, TypeCallEnd,
		TypeSDPOffer, TypeSDPAnswer, TypeICECandidate:
		return nil
	case "":
		return errors.New("missing envelope type")
	default:
		return errors.New("unknown envelope type: " + e.Type)
	}
}

// CallRequestPayload is the payload of a call_request envelope.
type CallRequestPayload struct {
	CallID     string `json:"callId"`
	ChannelID  string `json:"channelId"`
	CallerName string `json:"callerName,omitempty"`
}

// CallControlPayload is the payload of call_accept, call_reject and call_end.
type CallControlPayload struct {
	CallID string `json:"callId"`
}

// SDPPayload is the payload of sdp_offer and sdp_answer.
type SDPPayload struct {
	CallID string `json:"callId"`
	SDP    string `json:"sdp"`
}

// ICECandidatePayload is the payload of ice_candidate.
type ICECandidatePayload struct {
	CallID        string `json:"callId"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// ErrorFrame is sent back on a single connection when its inbound frame could
// not be handled. The connection stays open.
type ErrorFrame struct {
	Error string `json:"error"`
}

// ChatMessageRequest is the inbound frame of the chat socket.
type ChatMessageRequest struct {
	Content string `json:"content"`
}
