package presence

import (
	"time"

	"github.com/matheus3301/collab/internal/protocol"
	"go.uber.org/zap"
)

// DefaultIdle is how long after the last keystroke stopTyping is sent.
const DefaultIdle = time.Second

// Sender writes one envelope to the realtime channel.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Typing debounces local keystrokes into one typing / stopTyping pair per burst.
type Typing struct {
	self, peer string
	idle       time.Duration
	clock      Clock
	post       Poster
	conn       Sender
	logger     *zap.Logger

	active bool
	timer  Timer
	gen    uint64
}

// NewTyping creates a debouncer for keystrokes in the conversation with peer.
func NewTyping(self, peer string, idle time.Duration, conn Sender, clock Clock, post Poster, logger *zap.Logger) *Typing {
	if idle <= 0 {
		idle = DefaultIdle
	}
	if clock == nil {
		clock = RealClock
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Typing{
		self:   self,
		peer:   peer,
		idle:   idle,
		clock:  clock,
		post:   post,
		conn:   conn,
		logger: logger,
	}
}

// NotifyTyping records a keystroke. The first keystroke of a burst emits typing;
// every keystroke re-arms the idle timer.
func (t *Typing) NotifyTyping() {
	if !t.active {
		t.active = true
		t.emit(protocol.KindTyping)
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.idle, func() {
		t.post(func() { t.expire(gen) })
	})
}

// Active reports whether a typing burst is in progress.
func (t *Typing) Active() bool {
	return t.active
}

// Stop ends the current burst immediately, emitting stopTyping if one was active.
func (t *Typing) Stop() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	if t.active {
		t.active = false
		t.emit(protocol.KindStopTyping)
	}
}

func (t *Typing) expire(gen uint64) {
	// A newer keystroke re-armed the timer after this one fired.
	if gen != t.gen || !t.active {
		return
	}
	t.timer = nil
	t.active = false
	t.emit(protocol.KindStopTyping)
}

func (t *Typing) emit(kind protocol.Kind) {
	env, err := protocol.NewEnvelope(kind, protocol.Typing{SenderID: t.self, ReceiverID: t.peer})
	if err != nil {
		t.logger.Error("encode typing signal", zap.Error(err))
		return
	}
	if err := t.conn.Send(env); err != nil {
		t.logger.Debug("typing signal not sent", zap.String("kind", string(kind)), zap.Error(err))
	}
}
