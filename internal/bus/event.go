package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds published by the chat client.
const (
	KindConnStatus      = "conn.status_changed"
	KindConnServerError = "conn.server_error"
	KindChatUpdated     = "chat.updated"
	KindChatSendFailed  = "chat.send_failed"
	KindChatFetchFailed = "chat.fetch_failed"
	KindPresenceTyping  = "presence.peer_typing"
	KindHubJoined       = "hub.joined"
	KindHubLeft         = "hub.left"
)
