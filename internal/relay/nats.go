package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the NATS subject every instance publishes and subscribes to.
const DefaultSubject = "collab.deliver"

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL     string
	Subject string
	Token   string
	Name    string
}

// NATS relays frames through a NATS subject so several instances share rooms.
type NATS struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string
	logger  *zap.Logger
}

// DialNATS connects to the NATS server.
func DialNATS(cfg NATSConfig, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error("nats async error", zap.Error(err))
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, subject: subject, logger: logger}, nil
}

// Start implements Relay.
func (n *NATS) Start(h Handler) error {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		f, err := DecodeFrame(msg.Data)
		if err != nil {
			n.logger.Warn("dropping malformed relay frame", zap.Error(err))
			return
		}
		h(f)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	n.sub = sub
	return nil
}

// Publish implements Relay.
func (n *NATS) Publish(_ context.Context, f Frame) error {
	data, err := EncodeFrame(f)
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

// Close drains the subscription and closes the connection.
func (n *NATS) Close() error {
	if n.sub != nil {
		_ = n.sub.Unsubscribe()
	}
	return n.conn.Drain()
}

// EncodeFrame serializes a frame for the wire.
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode relay frame: %w", err)
	}
	return data, nil
}

// DecodeFrame parses a frame produced by EncodeFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode relay frame: %w", err)
	}
	if f.UserID == "" {
		return Frame{}, fmt.Errorf("decode relay frame: missing userId")
	}
	return f, nil
}
