package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/chat"
	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/status"
)

// Directory lists the user's conversations.
type Directory interface {
	Conversations(ctx context.Context, userID string) ([]protocol.ConversationSummary, error)
}

// Thread is the part of chat.Conversation the TUI drives.
type Thread interface {
	Peer() string
	LoadHistory(ctx context.Context) error
	SubmitLocalMessage(ctx context.Context, content string) (protocol.Message, <-chan error, error)
	NotifyTyping()
	MarkVisible()
	Snapshot(ctx context.Context) ([]protocol.Message, error)
	Close()
}

// Opener opens the conversation with peer.
type Opener func(peer string) Thread

// ViewModel caches what the screens render. Bus events are folded in
// with Apply; views read through the getters.
type ViewModel struct {
	mu sync.RWMutex

	self       string
	dir        Directory
	open       Opener
	summaries  []protocol.ConversationSummary
	active     Thread
	messages   []protocol.Message
	peerTyping bool
	connState  status.State
	Flash      Flash
}

// NewViewModel creates a view model for user self.
func NewViewModel(self string, dir Directory, open Opener) *ViewModel {
	return &ViewModel{
		self:      self,
		dir:       dir,
		open:      open,
		connState: status.Disconnected,
	}
}

// Self returns the local user id.
func (vm *ViewModel) Self() string {
	return vm.self
}

// LoadConversations fetches the conversation summaries.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	list, err := vm.dir.Conversations(ctx, vm.self)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.summaries = list
	vm.mu.Unlock()
	return nil
}

// Open switches the thread to peer, closing the previous one. A failed
// history fetch leaves the thread open so realtime traffic still shows.
func (vm *ViewModel) Open(ctx context.Context, peer string) error {
	if peer == "" || peer == vm.self {
		return errors.New("pick another user to chat with")
	}
	vm.mu.Lock()
	prev := vm.active
	if prev != nil && prev.Peer() == peer {
		vm.mu.Unlock()
		return nil
	}
	t := vm.open(peer)
	vm.active = t
	vm.messages = nil
	vm.peerTyping = false
	vm.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	err := t.LoadHistory(ctx)
	if msgs, snapErr := t.Snapshot(ctx); snapErr == nil {
		vm.setMessages(peer, msgs)
	}
	t.MarkVisible()
	return err
}

// CloseThread closes the open conversation, if any.
func (vm *ViewModel) CloseThread() {
	vm.mu.Lock()
	t := vm.active
	vm.active = nil
	vm.messages = nil
	vm.peerTyping = false
	vm.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

// Send submits text to the open conversation. The durable outcome arrives
// later as a chat.updated or chat.send_failed event.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	t := vm.thread()
	if t == nil {
		return errors.New("no conversation open")
	}
	_, _, err := t.SubmitLocalMessage(ctx, text)
	return err
}

// Typing forwards a keystroke to the open conversation.
func (vm *ViewModel) Typing() {
	if t := vm.thread(); t != nil {
		t.NotifyTyping()
	}
}

// Apply folds a bus event into the cached state and reports whether the
// screen needs a redraw.
func (vm *ViewModel) Apply(evt bus.Event) bool {
	switch evt.Kind {
	case bus.KindChatUpdated:
		u, ok := evt.Payload.(chat.Update)
		if !ok {
			return false
		}
		if !vm.setMessages(u.Peer, u.Messages) {
			return false
		}
		vm.mu.Lock()
		vm.peerTyping = u.PeerTyping
		t := vm.active
		vm.mu.Unlock()
		if t != nil {
			t.MarkVisible()
		}
		return true

	case bus.KindPresenceTyping:
		u, ok := evt.Payload.(chat.Update)
		if !ok {
			return false
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if vm.active == nil || vm.active.Peer() != u.Peer {
			return false
		}
		vm.peerTyping = u.PeerTyping
		return true

	case bus.KindConnStatus:
		sc, ok := evt.Payload.(status.StatusChange)
		if !ok {
			return false
		}
		vm.mu.Lock()
		vm.connState = sc.To
		vm.mu.Unlock()
		if sc.To == status.AuthRequired {
			vm.Flash.Set("Token rejected, update client.token and restart", 10*time.Second)
		}
		return true

	case bus.KindChatSendFailed:
		f, ok := evt.Payload.(chat.SendFailure)
		if !ok {
			return false
		}
		vm.Flash.Set("Send failed: "+f.Err.Error(), 5*time.Second)
		return true

	case bus.KindChatFetchFailed:
		if err, ok := evt.Payload.(error); ok {
			vm.Flash.Set("History unavailable: "+err.Error(), 5*time.Second)
			return true
		}

	case bus.KindConnServerError:
		if e, ok := evt.Payload.(protocol.ErrorPayload); ok {
			vm.Flash.Set("Server: "+e.Message, 5*time.Second)
			return true
		}
	}
	return false
}

func (vm *ViewModel) thread() Thread {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.active
}

// setMessages replaces the log when peer is the open conversation.
func (vm *ViewModel) setMessages(peer string, msgs []protocol.Message) bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.active == nil || vm.active.Peer() != peer {
		return false
	}
	vm.messages = msgs
	return true
}

// Summaries returns the conversation list.
func (vm *ViewModel) Summaries() []protocol.ConversationSummary {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.summaries
}

// ActivePeer returns the peer of the open conversation, or "".
func (vm *ViewModel) ActivePeer() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.active == nil {
		return ""
	}
	return vm.active.Peer()
}

// Messages returns the open conversation's log.
func (vm *ViewModel) Messages() []protocol.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// PeerTyping reports whether the open conversation's peer is typing.
func (vm *ViewModel) PeerTyping() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.peerTyping
}

// ConnState returns the last known connection state.
func (vm *ViewModel) ConnState() status.State {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.connState
}
