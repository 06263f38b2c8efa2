package call

// State is the lifecycle phase of the local call session.
type State string

const (
	StateIdle       State = "idle"
	StateOutgoing   State = "outgoing"
	StateIncoming   State = "incoming"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
)

// Session describes the single call this process is part of. It exists from
// initiation (outgoing) or first observation (incoming) until the manager
// returns to idle, at which point it is discarded entirely.
type Session struct {
	CallID    string
	ChannelID string
	PeerID    string
	PeerName  string
	Outgoing  bool
}
