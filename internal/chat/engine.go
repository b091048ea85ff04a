// Package chat merges optimistic local sends, server confirmations and
// inbound pushes into one ordered, duplicate-free conversation log.
package chat

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/collab/internal/protocol"
)

// ProvisionalPrefix marks locally generated client ids.
const ProvisionalPrefix = "tmp-"

type entry struct {
	msg protocol.Message
	// seq is the arrival order, used to break createdAt ties.
	seq uint64
	// staged holds a receipt that arrived before the durable id.
	staged protocol.DeliveryState
}

// Engine is the log of one two-party conversation. It is not safe for
// concurrent use; Conversation drives it from the event loop.
type Engine struct {
	self, peer string
	entries    []*entry
	seq        uint64
	newID      func() string
}

// NewEngine creates an empty log for the conversation between self and peer.
func NewEngine(self, peer string) *Engine {
	return &Engine{
		self:  self,
		peer:  peer,
		newID: func() string { return ProvisionalPrefix + uuid.NewString() },
	}
}

// Belongs reports whether m is part of this conversation, in either direction.
func (e *Engine) Belongs(m protocol.Message) bool {
	return m.Between(e.self, e.peer)
}

// Messages returns a copy of the log in display order.
func (e *Engine) Messages() []protocol.Message {
	out := make([]protocol.Message, len(e.entries))
	for i, en := range e.entries {
		out[i] = en.msg
	}
	return out
}

// Len returns the number of entries.
func (e *Engine) Len() int {
	return len(e.entries)
}

// AddProvisional appends an optimistic entry for a local send and returns it.
// The entry's ClientID is the correlation key echoed back by the server.
func (e *Engine) AddProvisional(content, campaignID string, now time.Time) protocol.Message {
	m := protocol.Message{
		ClientID:   e.newID(),
		SenderID:   e.self,
		ReceiverID: e.peer,
		CampaignID: campaignID,
		Content:    content,
		CreatedAt:  now,
	}
	e.append(m)
	e.sort()
	return m
}

// LoadHistory merges an authoritative snapshot. Snapshot entries replace the
// matching local ones; local entries the snapshot does not cover (pending
// sends, pushes that raced the fetch) are kept.
func (e *Engine) LoadHistory(snapshot []protocol.Message) {
	for _, m := range snapshot {
		if !e.Belongs(m) || m.ID == "" {
			continue
		}
		e.merge(m)
	}
	e.sort()
}

// OnConfirmed applies a durable copy of a message. It is idempotent on the
// durable id. A matching unconfirmed entry is replaced in place; otherwise
// the message is appended.
func (e *Engine) OnConfirmed(m protocol.Message) bool {
	if m.ID == "" || !e.Belongs(m) {
		return false
	}
	changed := e.merge(m)
	e.sort()
	return changed
}

// OnInboundPush applies a receiveMessage push. Messages outside the
// conversation are ignored. Pushes carrying a durable id go through the
// confirmation path; relayed copies without one are appended once per
// (sender, clientId) and upgraded in place when the durable copy arrives.
func (e *Engine) OnInboundPush(m protocol.Message) bool {
	if !e.Belongs(m) {
		return false
	}
	if m.ID != "" {
		return e.OnConfirmed(m)
	}
	// Any entry for (sender, clientId) already represents this send,
	// including a durable copy that arrived first.
	if m.ClientID != "" && e.findClient(m.SenderID, m.ClientID) >= 0 {
		return false
	}
	m.DeliveryState = protocol.StateNone
	e.append(m)
	e.sort()
	return true
}

// Rollback removes the unconfirmed entry for clientID after a failed write.
// It reports whether an entry was removed; a confirmed entry is never removed.
func (e *Engine) Rollback(clientID string) bool {
	i := e.findUnconfirmed(e.self, clientID)
	if i < 0 {
		return false
	}
	e.entries = slices.Delete(e.entries, i, i+1)
	return true
}

// MarkDelivered advances the sender-side state of one of the local user's
// messages. messageID may be empty when the receipt refers to a relayed copy.
func (e *Engine) MarkDelivered(messageID, clientID string) bool {
	return e.receipt(messageID, clientID, protocol.StateDelivered)
}

// MarkSeen advances one of the local user's messages to seen.
func (e *Engine) MarkSeen(messageID string) bool {
	return e.receipt(messageID, "", protocol.StateSeen)
}

func (e *Engine) receipt(messageID, clientID string, state protocol.DeliveryState) bool {
	i := -1
	if messageID != "" {
		i = e.findID(messageID)
	}
	if i < 0 && clientID != "" {
		i = e.findClient(e.self, clientID)
	}
	if i < 0 {
		return false
	}
	en := e.entries[i]
	if en.msg.SenderID != e.self {
		return false
	}
	if !en.msg.Confirmed() {
		before := en.staged
		en.staged = en.staged.Advance(state)
		return before != en.staged
	}
	next := en.msg.DeliveryState.Advance(state)
	if next == en.msg.DeliveryState {
		return false
	}
	en.msg.DeliveryState = next
	return true
}

// merge applies a durable message and reports whether the log changed.
func (e *Engine) merge(m protocol.Message) bool {
	if i := e.findID(m.ID); i >= 0 {
		en := e.entries[i]
		state := en.msg.DeliveryState
		if m.ClientID == "" {
			m.ClientID = en.msg.ClientID
		}
		m.DeliveryState = e.ownState(m, state)
		if sameMessage(en.msg, m) {
			return false
		}
		en.msg = m
		return true
	}

	var i int
	if m.ClientID != "" {
		i = e.findUnconfirmed(m.SenderID, m.ClientID)
	} else {
		i = e.findFallback(m)
	}
	if i >= 0 {
		en := e.entries[i]
		if m.ClientID == "" {
			m.ClientID = en.msg.ClientID
		}
		m.DeliveryState = e.ownState(m, en.staged)
		en.msg = m
		en.staged = protocol.StateNone
		return true
	}

	m.DeliveryState = e.ownState(m, protocol.StateNone)
	e.append(m)
	return true
}

// ownState gives confirmed local messages at least the sent state and keeps
// the peer's messages stateless.
func (e *Engine) ownState(m protocol.Message, prior protocol.DeliveryState) protocol.DeliveryState {
	if m.SenderID != e.self {
		return protocol.StateNone
	}
	return protocol.StateSent.Advance(prior).Advance(m.DeliveryState)
}

func (e *Engine) append(m protocol.Message) {
	e.seq++
	e.entries = append(e.entries, &entry{msg: m, seq: e.seq})
}

func (e *Engine) sort() {
	slices.SortStableFunc(e.entries, func(a, b *entry) int {
		if c := a.msg.CreatedAt.Compare(b.msg.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
}

func (e *Engine) findID(id string) int {
	return slices.IndexFunc(e.entries, func(en *entry) bool { return en.msg.ID == id })
}

func (e *Engine) findClient(sender, clientID string) int {
	return slices.IndexFunc(e.entries, func(en *entry) bool {
		return en.msg.ClientID == clientID && en.msg.SenderID == sender
	})
}

func (e *Engine) findUnconfirmed(sender, clientID string) int {
	return slices.IndexFunc(e.entries, func(en *entry) bool {
		return !en.msg.Confirmed() && en.msg.ClientID == clientID && en.msg.SenderID == sender
	})
}

// findFallback returns the oldest unconfirmed entry with the same sender,
// receiver and content. Entries are kept sorted, so the first hit is the oldest.
func (e *Engine) findFallback(m protocol.Message) int {
	return slices.IndexFunc(e.entries, func(en *entry) bool {
		return !en.msg.Confirmed() &&
			en.msg.SenderID == m.SenderID &&
			en.msg.ReceiverID == m.ReceiverID &&
			en.msg.Content == m.Content
	})
}

func sameMessage(a, b protocol.Message) bool {
	return a.ID == b.ID &&
		a.ClientID == b.ClientID &&
		a.SenderID == b.SenderID &&
		a.ReceiverID == b.ReceiverID &&
		a.CampaignID == b.CampaignID &&
		a.Content == b.Content &&
		a.CreatedAt.Equal(b.CreatedAt) &&
		a.DeliveryState == b.DeliveryState
}
