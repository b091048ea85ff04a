// Package conn owns the client's realtime channel: authentication handshake,
// room join, inbound dispatch and reconnection.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/chaterr"
	"github.com/matheus3301/collab/internal/eventloop"
	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/status"
	"go.uber.org/zap"
)

// Options configures a Manager.
type Options struct {
	// URL is the websocket endpoint, e.g. ws://localhost:8080/ws.
	URL    string
	UserID string
	Tokens auth.TokenProvider

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	ReconnectInitial  time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts uint64
}

func (o *Options) defaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.ReconnectInitial <= 0 {
		o.ReconnectInitial = 500 * time.Millisecond
	}
	if o.ReconnectMax <= 0 {
		o.ReconnectMax = 15 * time.Second
	}
	if o.ReconnectAttempts == 0 {
		o.ReconnectAttempts = 10
	}
}

type subscriber struct {
	id int
	fn func(protocol.Envelope)
}

type attempt struct {
	done chan struct{}
	err  error
}

// Manager is the client side of the realtime channel. All methods are safe
// for concurrent use. Subscribers are invoked on the event loop.
type Manager struct {
	opts    Options
	loop    *eventloop.Loop
	machine *status.Machine
	bus     *bus.Bus
	logger  *zap.Logger
	dialer  *websocket.Dialer

	mu      sync.Mutex
	ws      *websocket.Conn
	pending *attempt
	subs    []subscriber
	nextSub int
	// epoch changes on every Disconnect so late dial results are discarded.
	epoch  uint64
	stop   context.CancelFunc
	ctx    context.Context
	closed bool

	writeMu sync.Mutex
}

// New creates a disconnected manager.
func New(opts Options, loop *eventloop.Loop, b *bus.Bus, logger *zap.Logger) *Manager {
	opts.defaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		opts:    opts,
		loop:    loop,
		machine: status.NewMachine(b),
		bus:     b,
		logger:  logger.With(zap.String("user", opts.UserID)),
		dialer:  &websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
		ctx:     ctx,
		stop:    cancel,
	}
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Connect opens the channel and joins the user's room. It is idempotent:
// while connected it returns nil, and concurrent callers share one attempt.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.closed = false
		m.ctx, m.stop = context.WithCancel(context.Background())
	}
	m.mu.Unlock()

	err := m.connectOnce(ctx)
	if err != nil {
		if errors.Is(err, chaterr.ErrAuthRejected) {
			_ = m.machine.Transition(status.AuthRequired)
		} else if m.machine.Current() == status.Connecting {
			_ = m.machine.Transition(status.Disconnected)
		}
	}
	return err
}

func (m *Manager) connectOnce(ctx context.Context) error {
	m.mu.Lock()
	if m.ws != nil {
		m.mu.Unlock()
		return nil
	}
	if p := m.pending; p != nil {
		m.mu.Unlock()
		select {
		case <-p.done:
			return p.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p := &attempt{done: make(chan struct{})}
	m.pending = p
	epoch := m.epoch
	m.mu.Unlock()

	_ = m.machine.Transition(status.Connecting)
	ws, err := m.dial(ctx)

	m.mu.Lock()
	m.pending = nil
	if err == nil && (m.epoch != epoch || m.closed) {
		_ = ws.Close()
		err = fmt.Errorf("%w: disconnected during handshake", chaterr.ErrTransportUnavailable)
	}
	if err == nil {
		m.ws = ws
	}
	m.mu.Unlock()

	if err == nil {
		_ = m.machine.Transition(status.Connected)
		m.logger.Info("realtime channel connected", zap.String("url", m.opts.URL))
		go m.readLoop(ws)
	}
	p.err = err
	close(p.done)
	return err
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	token, err := m.opts.Tokens.Token(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if !errors.Is(err, chaterr.ErrAuthRejected) {
			err = fmt.Errorf("%w: %w", chaterr.ErrAuthRejected, err)
		}
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	ws, resp, err := m.dialer.DialContext(ctx, m.opts.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: upgrade returned %d", chaterr.ErrAuthRejected, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: %w", chaterr.ErrTransportUnavailable, err)
	}
	if err := m.join(ws); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return ws, nil
}

func (m *Manager) join(ws *websocket.Conn) error {
	env, err := protocol.NewEnvelope(protocol.KindJoin, protocol.Join{UserID: m.opts.UserID})
	if err != nil {
		return err
	}
	deadline := time.Now().Add(m.opts.HandshakeTimeout)
	_ = ws.SetWriteDeadline(deadline)
	if err := ws.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: send join: %w", chaterr.ErrTransportUnavailable, err)
	}
	_ = ws.SetReadDeadline(deadline)
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()
	for {
		var reply protocol.Envelope
		if err := ws.ReadJSON(&reply); err != nil {
			return fmt.Errorf("%w: await joined: %w", chaterr.ErrTransportUnavailable, err)
		}
		switch reply.Type {
		case protocol.KindJoined:
			return nil
		case protocol.KindError:
			var e protocol.ErrorPayload
			_ = reply.Decode(&e)
			if e.Code == protocol.CodeAuth {
				return fmt.Errorf("%w: %s", chaterr.ErrAuthRejected, e.Message)
			}
			return fmt.Errorf("%w: join refused: %s", chaterr.ErrTransportUnavailable, e.Message)
		}
	}
}

func (m *Manager) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			m.onDrop(ws, err)
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			m.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		m.loop.Post(func() { m.dispatch(env) })
	}
}

func (m *Manager) dispatch(env protocol.Envelope) {
	if env.Type == protocol.KindError {
		var e protocol.ErrorPayload
		if err := env.Decode(&e); err == nil {
			m.logger.Warn("server rejected frame", zap.String("code", e.Code), zap.String("message", e.Message))
			m.bus.Emit(bus.KindConnServerError, e)
		}
	}
	m.mu.Lock()
	subs := make([]subscriber, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()
	for _, s := range subs {
		s.fn(env)
	}
}

func (m *Manager) onDrop(ws *websocket.Conn, cause error) {
	m.mu.Lock()
	if m.ws != ws {
		// Disconnect already tore this socket down.
		m.mu.Unlock()
		return
	}
	m.ws = nil
	ctx := m.ctx
	m.mu.Unlock()
	_ = ws.Close()

	m.logger.Warn("realtime channel dropped", zap.Error(cause))
	_ = m.machine.Transition(status.Reconnecting)
	go m.reconnect(ctx)
}

func (m *Manager) reconnect(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.ReconnectInitial
	b.MaxInterval = m.opts.ReconnectMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, m.opts.ReconnectAttempts), ctx)

	op := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		err := m.connectOnce(ctx)
		if errors.Is(err, chaterr.ErrAuthRejected) {
			return backoff.Permanent(err)
		}
		if err != nil {
			_ = m.machine.Transition(status.Reconnecting)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Info("reconnect attempt failed", zap.Error(err), zap.Duration("retry_in", wait))
	}

	err := backoff.RetryNotify(op, policy, notify)
	switch {
	case err == nil:
		m.logger.Info("realtime channel restored")
	case errors.Is(err, chaterr.ErrAuthRejected):
		m.logger.Warn("reconnect stopped: credential rejected", zap.Error(err))
		_ = m.machine.Transition(status.AuthRequired)
	case ctx.Err() != nil:
		// Disconnect was called; it owns the state transition.
	default:
		m.logger.Error("reconnect gave up", zap.Error(err))
		_ = m.machine.Transition(status.Disconnected)
	}
}

// Disconnect closes the channel and stops reconnecting. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.epoch++
	m.stop()
	ws := m.ws
	m.ws = nil
	m.mu.Unlock()

	if ws != nil {
		m.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		_ = ws.Close()
		m.logger.Info("realtime channel closed")
	}
	_ = m.machine.Transition(status.Disconnected)
}

// Send writes one envelope. It returns chaterr.ErrNotConnected when no
// channel is open; nothing is buffered.
func (m *Manager) Send(env protocol.Envelope) error {
	m.mu.Lock()
	ws := m.ws
	m.mu.Unlock()
	if ws == nil {
		return chaterr.ErrNotConnected
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(m.opts.WriteTimeout))
	if err := ws.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %w", chaterr.ErrNotConnected, err)
	}
	return nil
}

// Subscribe registers handler for every inbound envelope. Handlers run on
// the event loop in arrival order. The returned function unsubscribes and
// may be called more than once.
func (m *Manager) Subscribe(handler func(protocol.Envelope)) func() {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs = append(m.subs, subscriber{id: id, fn: handler})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, s := range m.subs {
			if s.id == id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				return
			}
		}
	}
}
