package presence

import (
	"github.com/matheus3301/collab/internal/protocol"
	"go.uber.org/zap"
)

// Seen emits markMessageAsSeen at most once per durable message id.
type Seen struct {
	self   string
	conn   Sender
	acked  map[string]struct{}
	logger *zap.Logger
}

// NewSeen creates a tracker for messages addressed to self.
func NewSeen(self string, conn Sender, logger *zap.Logger) *Seen {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seen{self: self, conn: conn, acked: make(map[string]struct{}), logger: logger}
}

// MarkVisible acknowledges m if it is addressed to the local user, carries a
// durable id and was not acknowledged before. A failed send is not recorded,
// so the next render retries it.
func (s *Seen) MarkVisible(m protocol.Message) bool {
	if m.ReceiverID != s.self || m.ID == "" {
		return false
	}
	if _, ok := s.acked[m.ID]; ok {
		return false
	}
	env, err := protocol.NewEnvelope(protocol.KindMarkMessageAsSeen, protocol.SeenRequest{MessageID: m.ID, UserID: s.self})
	if err != nil {
		s.logger.Error("encode seen ack", zap.Error(err))
		return false
	}
	if err := s.conn.Send(env); err != nil {
		s.logger.Debug("seen ack not sent", zap.String("message_id", m.ID), zap.Error(err))
		return false
	}
	s.acked[m.ID] = struct{}{}
	return true
}

// Acked reports whether id has been acknowledged.
func (s *Seen) Acked(id string) bool {
	_, ok := s.acked[id]
	return ok
}
