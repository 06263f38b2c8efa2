package realtime

import (
	"encoding/json"
	"testing"
)

func TestSignalEnvelopeValidate(t *testing.T) {
	valid := []string{
		TypeCallRequest, TypeCallAccept, TypeCallReject, TypeCallEnd,
		TypeSDPOffer, TypeSDPAnswer, TypeICECandidate,
	}

	for _, typ := range valid {
		envelope := SignalEnvelope{Type: typ}
		if err := envelope.Validate(); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", typ, err)
		}
	}

	for _, typ := range []string{"", "ping", "CALL_REQUEST"} {
		envelope := SignalEnvelope{Type: typ}
		if err := envelope.Validate(); err == nil {
			t.Errorf("Validate(%q) accepted an invalid type", typ)
		}
	}
}

func TestSignalEnvelopeWireFormat(t *testing.T) {
	raw := `{"type":"sdp_offer","targetUserId":"u2","payload":{"callId":"c1","sdp":"v=0"}}`

	var envelope SignalEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if envelope.Type != TypeSDPOffer || envelope.TargetUserID != "u2" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}

	var payload SDPPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.CallID != "c1" || payload.SDP != "v=0" {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	out, err := json.Marshal(SignalEnvelope{Type: TypeCallEnd, FromUserID: "u1"})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if string(out) != `{"type":"call_end","fromUserId":"u1"}` {
		t.Fatalf("unexpected wire form: %s", out)
	}
}
