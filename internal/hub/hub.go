// Package hub serves the realtime websocket channel: authenticated sessions,
// rooms keyed by user id, and routing of chat, typing and receipt envelopes.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/metrics"
	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/relay"
	"github.com/matheus3301/collab/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 20 * time.Second
	maxFrameBytes  = 64 << 10
	sendBufferSize = 64
)

// Store resolves the sender of a message for seen receipts.
type Store interface {
	MessageByID(ctx context.Context, id string) (protocol.Message, error)
}

// Options configures a Hub.
type Options struct {
	AllowedOrigins []string
	SendBuffer     int
	Now            func() time.Time
}

// Hub owns every websocket session held by this instance.
type Hub struct {
	relay  relay.Relay
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time

	upgrader websocket.Upgrader
	sendBuf  int

	mu       sync.RWMutex
	rooms    map[string]map[*session]struct{}
	sessions map[*session]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// New creates a hub and attaches it to r.
func New(opts Options, r relay.Relay, st Store, b *bus.Bus, logger *zap.Logger) (*Hub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = sendBufferSize
	}
	h := &Hub{
		relay:    r,
		store:    st,
		bus:      b,
		logger:   logger,
		now:      opts.Now,
		sendBuf:  opts.SendBuffer,
		rooms:    make(map[string]map[*session]struct{}),
		sessions: make(map[*session]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      originChecker(opts.AllowedOrigins),
	}
	if err := r.Start(h.deliver); err != nil {
		return nil, err
	}
	return h, nil
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeWS upgrades the request and runs a session authenticated as userID
// until the socket closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
			time.Now().Add(writeWait))
		_ = ws.Close()
		return
	}
	s := newSession(h, ws, userID)
	h.sessions[s] = struct{}{}
	h.wg.Add(1)
	h.mu.Unlock()

	go s.writePump()
	s.readPump()
	h.wg.Done()
}

// Rooms returns the number of users with at least one joined session.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// Sessions returns the number of joined sessions for userID.
func (h *Hub) Sessions(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// BroadcastStored relays a persisted message to the receiver's room and to
// all of the sender's sessions. Delivery to the receiver yields
// messageDelivered for the sender.
func (h *Hub) BroadcastStored(ctx context.Context, m protocol.Message) error {
	env, err := protocol.NewEnvelope(protocol.KindReceiveMessage, m)
	if err != nil {
		return err
	}
	receipt := &protocol.Delivered{MessageID: m.ID, ClientID: m.ClientID, ReceiverID: m.ReceiverID}
	return errors.Join(
		h.route(ctx, relay.Frame{UserID: m.ReceiverID, Envelope: env, Receipt: receipt, ReceiptTo: m.SenderID}),
		h.route(ctx, relay.Frame{UserID: m.SenderID, Envelope: env}),
	)
}

// Close sends a going-away close frame to every session and waits for their
// handlers to return or ctx to end.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.shutdown(websocket.CloseGoingAway, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) route(ctx context.Context, f relay.Frame) error {
	if err := h.relay.Publish(ctx, f); err != nil {
		metrics.RelayErrors.Inc()
		h.logger.Warn("relay publish failed",
			zap.String("to", f.UserID),
			zap.String("type", string(f.Envelope.Type)),
			zap.Error(err))
		return err
	}
	return nil
}

// deliver hands a relayed frame to the sessions of its room on this instance.
func (h *Hub) deliver(f relay.Frame) {
	data, err := json.Marshal(f.Envelope)
	if err != nil {
		h.logger.Error("encode frame", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*session, 0, len(h.rooms[f.UserID]))
	for s := range h.rooms[f.UserID] {
		if s.id != f.ExcludeSession {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.enqueue(data) {
			delivered++
			metrics.RecordFrame("out", string(f.Envelope.Type))
		}
	}

	if delivered > 0 && f.Receipt != nil && f.ReceiptTo != "" {
		env, err := protocol.NewEnvelope(protocol.KindMessageDelivered, f.Receipt)
		if err != nil {
			return
		}
		_ = h.route(context.Background(), relay.Frame{UserID: f.ReceiptTo, Envelope: env})
	}
}

func (h *Hub) join(s *session) {
	h.mu.Lock()
	room, ok := h.rooms[s.userID]
	if !ok {
		room = make(map[*session]struct{})
		h.rooms[s.userID] = room
	}
	_, already := room[s]
	room[s] = struct{}{}
	h.mu.Unlock()

	if !already {
		metrics.SessionsActive.Inc()
		h.bus.Emit(bus.KindHubJoined, s.userID)
		h.logger.Info("session joined", zap.String("user", s.userID), zap.String("session", s.id))
	}
}

func (h *Hub) leave(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	room, joined := h.rooms[s.userID]
	if joined {
		_, joined = room[s]
		delete(room, s)
		if len(room) == 0 {
			delete(h.rooms, s.userID)
		}
	}
	h.mu.Unlock()

	if joined {
		metrics.SessionsActive.Dec()
		h.bus.Emit(bus.KindHubLeft, s.userID)
		h.logger.Info("session left", zap.String("user", s.userID), zap.String("session", s.id))
	}
}

// handle processes one inbound frame from s.
func (h *Hub) handle(s *session, env protocol.Envelope) {
	metrics.RecordFrame("in", string(env.Type))
	if env.Type != protocol.KindJoin && !s.joined {
		s.sendError(protocol.CodeBadRequest, "join first")
		return
	}
	ctx := context.Background()

	switch env.Type {
	case protocol.KindJoin:
		var j protocol.Join
		if err := env.Decode(&j); err != nil {
			s.sendError(protocol.CodeBadRequest, err.Error())
			return
		}
		if j.UserID != s.userID {
			s.sendError(protocol.CodeAuth, "cannot join another user's room")
			s.shutdown(websocket.ClosePolicyViolation, "auth")
			return
		}
		s.joined = true
		h.join(s)
		s.send(protocol.KindJoined, protocol.Joined{UserID: s.userID})

	case protocol.KindSendMessage:
		var m protocol.Message
		if err := env.Decode(&m); err != nil {
			s.sendError(protocol.CodeBadRequest, err.Error())
			return
		}
		if m.SenderID != s.userID {
			s.sendError(protocol.CodeForbidden, "senderId must be the authenticated user")
			return
		}
		req := protocol.SendRequest{SenderID: m.SenderID, ReceiverID: m.ReceiverID, Content: m.Content}
		if err := req.Validate(); err != nil {
			s.sendError(protocol.CodeBadRequest, err.Error())
			return
		}
		relayed := protocol.Message{
			ClientID:   m.ClientID,
			SenderID:   m.SenderID,
			ReceiverID: m.ReceiverID,
			CampaignID: m.CampaignID,
			Content:    m.Content,
			CreatedAt:  h.now().UTC(),
		}
		out, err := protocol.NewEnvelope(protocol.KindReceiveMessage, relayed)
		if err != nil {
			return
		}
		var receipt *protocol.Delivered
		if relayed.ClientID != "" {
			receipt = &protocol.Delivered{ClientID: relayed.ClientID, ReceiverID: relayed.ReceiverID}
		}
		_ = h.route(ctx, relay.Frame{UserID: relayed.ReceiverID, Envelope: out, Receipt: receipt, ReceiptTo: relayed.SenderID})
		_ = h.route(ctx, relay.Frame{UserID: relayed.SenderID, Envelope: out, ExcludeSession: s.id})

	case protocol.KindTyping, protocol.KindStopTyping:
		var t protocol.Typing
		if err := env.Decode(&t); err != nil {
			s.sendError(protocol.CodeBadRequest, err.Error())
			return
		}
		if t.SenderID != s.userID || t.ReceiverID == "" {
			s.sendError(protocol.CodeForbidden, "typing must come from the authenticated user")
			return
		}
		_ = h.route(ctx, relay.Frame{UserID: t.ReceiverID, Envelope: env})

	case protocol.KindMarkMessageAsSeen:
		var req protocol.SeenRequest
		if err := env.Decode(&req); err != nil {
			s.sendError(protocol.CodeBadRequest, err.Error())
			return
		}
		if req.UserID != s.userID {
			s.sendError(protocol.CodeForbidden, "userId must be the authenticated user")
			return
		}
		m, err := h.store.MessageByID(ctx, req.MessageID)
		if errors.Is(err, store.ErrNotFound) {
			s.sendError(protocol.CodeNotFound, "unknown message "+req.MessageID)
			return
		}
		if err != nil {
			h.logger.Error("seen lookup failed", zap.String("message", req.MessageID), zap.Error(err))
			return
		}
		if m.ReceiverID != s.userID {
			s.sendError(protocol.CodeForbidden, "only the receiver can mark a message seen")
			return
		}
		out, err := protocol.NewEnvelope(protocol.KindMessageSeenUpdate, protocol.SeenUpdate{MessageID: m.ID, UserID: s.userID})
		if err != nil {
			return
		}
		_ = h.route(ctx, relay.Frame{UserID: m.SenderID, Envelope: out})

	default:
		s.sendError(protocol.CodeBadRequest, "unsupported frame type "+string(env.Type))
	}
}

func newSessionID() string {
	return uuid.NewString()
}
