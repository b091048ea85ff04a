package protocol

import (
	"errors"
	"strings"
	"time"
)

// DeliveryState is the sender-side receipt state of a message.
type DeliveryState string

const (
	StateNone      DeliveryState = ""
	StateSent      DeliveryState = "sent"
	StateDelivered DeliveryState = "delivered"
	StateSeen      DeliveryState = "seen"
)

func (s DeliveryState) rank() int {
	switch s {
	case StateSent:
		return 1
	case StateDelivered:
		return 2
	case StateSeen:
		return 3
	}
	return 0
}

// Advance returns the later of s and next. Receipts never move backwards.
func (s DeliveryState) Advance(next DeliveryState) DeliveryState {
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Message is one chat message as carried on the wire and held in a local log.
type Message struct {
	ID            string        `json:"id,omitempty"`
	ClientID      string        `json:"clientId,omitempty"`
	SenderID      string        `json:"senderId"`
	ReceiverID    string        `json:"receiverId"`
	CampaignID    string        `json:"campaignId,omitempty"`
	Content       string        `json:"content"`
	CreatedAt     time.Time     `json:"createdAt"`
	DeliveryState DeliveryState `json:"deliveryState,omitempty"`
}

// Confirmed reports whether the message carries a durable id.
func (m Message) Confirmed() bool {
	return m.ID != ""
}

// Between reports whether the message belongs to the conversation of a and b,
// in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// SendRequest is the body of POST /messages.
type SendRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	CampaignID string `json:"campaignId,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
}

// Validate checks the fields every message must carry.
func (r SendRequest) Validate() error {
	switch {
	case r.SenderID == "":
		return errors.New("senderId required")
	case r.ReceiverID == "":
		return errors.New("receiverId required")
	case r.SenderID == r.ReceiverID:
		return errors.New("senderId and receiverId must differ")
	case strings.TrimSpace(r.Content) == "":
		return errors.New("content required")
	}
	return nil
}

// ConversationSummary is one row of GET /messages/conversations/{userId}.
type ConversationSummary struct {
	UserID      string    `json:"userId"`
	LastMessage string    `json:"lastMessage"`
	CreatedAt   time.Time `json:"createdAt"`
	CampaignID  string    `json:"campaignId,omitempty"`
}
