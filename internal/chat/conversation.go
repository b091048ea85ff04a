package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/chaterr"
	"github.com/matheus3301/collab/internal/eventloop"
	"github.com/matheus3301/collab/internal/presence"
	"github.com/matheus3301/collab/internal/protocol"
	"go.uber.org/zap"
)

// ErrClosed is returned by operations on a closed conversation.
var ErrClosed = errors.New("conversation closed")

// Transport is the realtime channel. Handlers registered with Subscribe are
// invoked on the conversation's event loop, in arrival order.
type Transport interface {
	Send(env protocol.Envelope) error
	Subscribe(handler func(protocol.Envelope)) (unsubscribe func())
}

// Store is the durable REST side of the conversation.
type Store interface {
	History(ctx context.Context, userA, userB string) ([]protocol.Message, error)
	SendMessage(ctx context.Context, req protocol.SendRequest) (protocol.Message, error)
}

// Config describes one open conversation.
type Config struct {
	Self       string
	Peer       string
	CampaignID string

	TypingIdle       time.Duration
	PeerTypingExpiry time.Duration
	Clock            presence.Clock
	Now              func() time.Time
}

// Update is published on the bus whenever the visible state changes.
type Update struct {
	Peer       string
	Messages   []protocol.Message
	PeerTyping bool
}

// SendFailure is published when a durable write fails and the provisional
// entry was rolled back.
type SendFailure struct {
	Peer     string
	ClientID string
	Content  string
	Err      error
}

// Conversation binds an Engine to a transport, a store and the event loop.
// Every mutation of the log happens on the loop.
type Conversation struct {
	cfg    Config
	loop   *eventloop.Loop
	conn   Transport
	store  Store
	bus    *bus.Bus
	logger *zap.Logger

	engine     *Engine
	typing     *presence.Typing
	peerTyping *presence.PeerTyping
	seen       *presence.Seen
	closed     bool

	unsubOnce sync.Once
	unsub     func()
}

// Open subscribes a new conversation to the transport. History is not loaded
// until LoadHistory is called.
func Open(cfg Config, loop *eventloop.Loop, conn Transport, store Store, b *bus.Bus, logger *zap.Logger) *Conversation {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger = logger.With(zap.String("peer", cfg.Peer))
	c := &Conversation{
		cfg:    cfg,
		loop:   loop,
		conn:   conn,
		store:  store,
		bus:    b,
		logger: logger,
		engine: NewEngine(cfg.Self, cfg.Peer),
	}
	c.typing = presence.NewTyping(cfg.Self, cfg.Peer, cfg.TypingIdle, conn, cfg.Clock, loop.Post, logger)
	c.peerTyping = presence.NewPeerTyping(cfg.Peer, cfg.PeerTypingExpiry, cfg.Clock, loop.Post, c.onPeerTyping)
	c.seen = presence.NewSeen(cfg.Self, conn, logger)
	c.unsub = conn.Subscribe(c.handle)
	return c
}

// Peer returns the other participant.
func (c *Conversation) Peer() string {
	return c.cfg.Peer
}

// LoadHistory fetches the authoritative history and merges it into the log.
func (c *Conversation) LoadHistory(ctx context.Context) error {
	msgs, err := c.store.History(ctx, c.cfg.Self, c.cfg.Peer)
	if err != nil {
		if !errors.Is(err, chaterr.ErrFetch) {
			err = fmt.Errorf("%w: %w", chaterr.ErrFetch, err)
		}
		c.logger.Warn("history fetch failed", zap.Error(err))
		c.bus.Emit(bus.KindChatFetchFailed, err)
		return err
	}
	var closed bool
	if err := c.loop.Do(ctx, func() {
		if c.closed {
			closed = true
			return
		}
		c.engine.LoadHistory(msgs)
		c.publish()
	}); err != nil {
		return err
	}
	if closed {
		return ErrClosed
	}
	c.logger.Debug("history loaded", zap.Int("messages", len(msgs)))
	return nil
}

// SubmitLocalMessage appends a provisional entry, emits sendMessage and
// starts the durable write. The returned channel yields the write outcome
// once and is then closed. The write is not cancelled by ctx or Close.
func (c *Conversation) SubmitLocalMessage(ctx context.Context, content string) (protocol.Message, <-chan error, error) {
	if strings.TrimSpace(content) == "" {
		return protocol.Message{}, nil, errors.New("message content is empty")
	}
	var (
		p       protocol.Message
		closed  bool
		skipped bool
	)
	result := make(chan error, 1)
	// The closure may run after Do gave up on ctx. It only adds the
	// provisional entry when the caller is still waiting, and it starts the
	// durable write itself so an added entry is always confirmed or rolled back.
	if err := c.loop.Do(ctx, func() {
		if ctx.Err() != nil {
			skipped = true
			return
		}
		if c.closed {
			closed = true
			return
		}
		p = c.engine.AddProvisional(content, c.cfg.CampaignID, c.cfg.Now())
		c.typing.Stop()
		c.publish()
		c.emit(protocol.KindSendMessage, p)
		go c.write(context.WithoutCancel(ctx), p, result)
	}); err != nil {
		return protocol.Message{}, nil, err
	}
	if closed {
		return protocol.Message{}, nil, ErrClosed
	}
	if skipped {
		return protocol.Message{}, nil, ctx.Err()
	}
	return p, result, nil
}

func (c *Conversation) write(ctx context.Context, p protocol.Message, result chan<- error) {
	confirmed, err := c.store.SendMessage(ctx, protocol.SendRequest{
		SenderID:   p.SenderID,
		ReceiverID: p.ReceiverID,
		Content:    p.Content,
		CampaignID: p.CampaignID,
		ClientID:   p.ClientID,
	})
	if err != nil && !errors.Is(err, chaterr.ErrWrite) {
		err = fmt.Errorf("%w: %w", chaterr.ErrWrite, err)
	}
	finish := func() {
		result <- err
		close(result)
	}
	applied := c.loop.Post(func() {
		defer finish()
		if err != nil {
			c.logger.Warn("durable write failed", zap.String("client_id", p.ClientID), zap.Error(err))
			if c.engine.Rollback(p.ClientID) && !c.closed {
				c.publish()
			}
			c.bus.Emit(bus.KindChatSendFailed, SendFailure{Peer: c.cfg.Peer, ClientID: p.ClientID, Content: p.Content, Err: err})
			return
		}
		c.logger.Debug("message confirmed", zap.String("client_id", p.ClientID), zap.String("id", confirmed.ID))
		if c.engine.OnConfirmed(confirmed) && !c.closed {
			c.publish()
		}
	})
	if !applied {
		finish()
	}
}

// NotifyTyping records a local keystroke.
func (c *Conversation) NotifyTyping() {
	c.loop.Post(func() {
		if !c.closed {
			c.typing.NotifyTyping()
		}
	})
}

// MarkVisible acknowledges every received message currently in the log.
// Call it whenever the thread is rendered on screen.
func (c *Conversation) MarkVisible() {
	c.loop.Post(func() {
		if c.closed {
			return
		}
		for _, m := range c.engine.Messages() {
			c.seen.MarkVisible(m)
		}
	})
}

// Snapshot returns the current log.
func (c *Conversation) Snapshot(ctx context.Context) ([]protocol.Message, error) {
	var msgs []protocol.Message
	err := c.loop.Do(ctx, func() { msgs = c.engine.Messages() })
	return msgs, err
}

// PeerTyping reports whether the peer is typing.
func (c *Conversation) PeerTyping(ctx context.Context) (bool, error) {
	var typing bool
	err := c.loop.Do(ctx, func() { typing = c.peerTyping.Typing() })
	return typing, err
}

// Close unsubscribes from the transport and ends any typing burst.
// Durable writes already in flight complete. Close is idempotent.
func (c *Conversation) Close() {
	c.unsubOnce.Do(func() {
		c.unsub()
		c.loop.Post(func() {
			c.closed = true
			c.typing.Stop()
		})
	})
}

func (c *Conversation) handle(env protocol.Envelope) {
	if c.closed {
		return
	}
	switch env.Type {
	case protocol.KindReceiveMessage:
		var m protocol.Message
		if !c.decode(env, &m) || !c.engine.Belongs(m) {
			return
		}
		if m.SenderID == c.cfg.Peer {
			c.peerTyping.Clear()
		}
		if c.engine.OnInboundPush(m) {
			c.publish()
		}
	case protocol.KindMessageDelivered:
		var d protocol.Delivered
		if !c.decode(env, &d) || d.ReceiverID != c.cfg.Peer {
			return
		}
		if c.engine.MarkDelivered(d.MessageID, d.ClientID) {
			c.publish()
		}
	case protocol.KindMessageSeenUpdate:
		var s protocol.SeenUpdate
		if !c.decode(env, &s) {
			return
		}
		if c.engine.MarkSeen(s.MessageID) {
			c.publish()
		}
	case protocol.KindTyping, protocol.KindStopTyping:
		var sig protocol.Typing
		if !c.decode(env, &sig) || sig.ReceiverID != c.cfg.Self {
			return
		}
		c.peerTyping.Observe(env.Type, sig.SenderID)
	}
}

func (c *Conversation) decode(env protocol.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		c.logger.Warn("dropping malformed frame", zap.String("type", string(env.Type)), zap.Error(err))
		return false
	}
	return true
}

func (c *Conversation) emit(kind protocol.Kind, payload any) {
	env, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		c.logger.Error("encode frame", zap.String("type", string(kind)), zap.Error(err))
		return
	}
	if err := c.conn.Send(env); err != nil {
		c.logger.Info("realtime send skipped", zap.String("type", string(kind)), zap.Error(err))
	}
}

func (c *Conversation) onPeerTyping(typing bool) {
	if c.closed {
		return
	}
	c.bus.Emit(bus.KindPresenceTyping, Update{Peer: c.cfg.Peer, PeerTyping: typing})
	c.publish()
}

func (c *Conversation) publish() {
	c.bus.Emit(bus.KindChatUpdated, Update{
		Peer:       c.cfg.Peer,
		Messages:   c.engine.Messages(),
		PeerTyping: c.peerTyping.Typing(),
	})
}
