// Package protocol defines the JSON frames exchanged on the realtime channel
// and the REST payloads shared by client and server.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind names a realtime event.
type Kind string

const (
	KindJoin              Kind = "join"
	KindJoined            Kind = "joined"
	KindSendMessage       Kind = "sendMessage"
	KindReceiveMessage    Kind = "receiveMessage"
	KindTyping            Kind = "typing"
	KindStopTyping        Kind = "stopTyping"
	KindMarkMessageAsSeen Kind = "markMessageAsSeen"
	KindMessageSeenUpdate Kind = "messageSeenUpdate"
	KindMessageDelivered  Kind = "messageDelivered"
	KindError             Kind = "error"
)

// Error codes carried by KindError frames.
const (
	CodeAuth       = "auth"
	CodeBadRequest = "bad_request"
	CodeForbidden  = "forbidden"
	CodeNotFound   = "not_found"
)

// Envelope is one frame on the realtime channel.
type Envelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given kind.
func NewEnvelope(kind Kind, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: kind}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Envelope{Type: kind, Data: data}, nil
}

// Decode unmarshals the envelope's data into v.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("decode %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return nil
}

// Join asks the server to subscribe the socket to the caller's room.
type Join struct {
	UserID string `json:"userId"`
}

// Joined confirms the room subscription.
type Joined struct {
	UserID string `json:"userId"`
}

// Typing is the payload of both typing and stopTyping.
type Typing struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// SeenRequest acknowledges that UserID has viewed MessageID.
type SeenRequest struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId"`
}

// SeenUpdate tells the original sender that MessageID was viewed.
type SeenUpdate struct {
	MessageID string `json:"messageId"`
	UserID    string `json:"userId,omitempty"`
}

// Delivered tells the sender that the receiver's session got the message.
// MessageID is empty when the relayed copy had not been persisted yet.
type Delivered struct {
	MessageID  string `json:"messageId,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	ReceiverID string `json:"receiverId"`
}

// ErrorPayload reports a rejected frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
