package realtime

// Session is one live client connection as seen by the hubs. Send serializes
// the value as JSON onto the underlying transport; it is the only hub
// operation that may block or fail, and implementations must be safe for
// concurrent use.
type Session interface {
	Send(v any) error
}
