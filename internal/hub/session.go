package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/metrics"
	"github.com/matheus3301/collab/internal/protocol"
)

// session is one authenticated socket. readPump and writePump are its only
// goroutines; everything else talks to it through enqueue.
type session struct {
	id     string
	userID string
	hub    *Hub
	ws     *websocket.Conn
	out    chan []byte

	// joined is only touched by readPump.
	joined bool

	doneOnce sync.Once
	done     chan struct{}
	closeMsg []byte
}

func newSession(h *Hub, ws *websocket.Conn, userID string) *session {
	return &session{
		id:     newSessionID(),
		userID: userID,
		hub:    h,
		ws:     ws,
		out:    make(chan []byte, h.sendBuf),
		done:   make(chan struct{}),
	}
}

// enqueue queues data for the write pump. A session whose buffer is full is
// dropped rather than allowed to stall the sender.
func (s *session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- data:
		return true
	case <-s.done:
		return false
	default:
		metrics.SlowSessionsTotal.Inc()
		s.hub.logger.Warn("dropping slow session", zap.String("user", s.userID), zap.String("session", s.id))
		s.shutdown(websocket.CloseTryAgainLater, "too slow")
		return false
	}
}

func (s *session) send(kind protocol.Kind, payload any) {
	env, err := protocol.NewEnvelope(kind, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if s.enqueue(data) {
		metrics.RecordFrame("out", string(kind))
	}
}

func (s *session) sendError(code, msg string) {
	s.send(protocol.KindError, protocol.ErrorPayload{Code: code, Message: msg})
}

// shutdown asks the write pump to flush queued frames, send a close frame
// and close the socket.
func (s *session) shutdown(code int, reason string) {
	s.doneOnce.Do(func() {
		s.closeMsg = websocket.FormatCloseMessage(code, reason)
		close(s.done)
	})
}

func (s *session) readPump() {
	defer func() {
		s.hub.leave(s)
		s.shutdown(websocket.CloseNormalClosure, "")
	}()
	s.ws.SetReadLimit(maxFrameBytes)
	_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.hub.logger.Debug("session read error", zap.String("session", s.id), zap.Error(err))
			}
			return
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			s.sendError(protocol.CodeBadRequest, "malformed frame")
			continue
		}
		s.hub.handle(s, env)
		select {
		case <-s.done:
			return
		default:
		}
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.ws.Close()
	}()
	for {
		select {
		case data := <-s.out:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				s.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.shutdown(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-s.done:
			s.flush()
			_ = s.ws.WriteControl(websocket.CloseMessage, s.closeMsg, time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever was queued before shutdown, e.g. the error frame
// that explains a rejected join.
func (s *session) flush() {
	for {
		select {
		case data := <-s.out:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
