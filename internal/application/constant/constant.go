package constant

// Attribute keys for slog.
const (
	Error     = "error"
	UserID    = "user_id"
	UserName  = "user_name"
	ChannelID = "channel_id"
	CallID    = "call_id"
)
