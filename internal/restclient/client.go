// Package restclient talks to the delivery server's REST endpoints.
package restclient

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/chaterr"
	"github.com/matheus3301/collab/internal/protocol"
	"go.uber.org/zap"
)

// errorBody is the JSON error shape returned by the server.
type errorBody struct {
	Error string `json:"error"`
}

// Client is a REST client that injects a fresh bearer token on every request.
type Client struct {
	r      *resty.Client
	logger *zap.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, tokens auth.TokenProvider, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	r.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		token, err := tokens.Token(req.Context())
		if err != nil {
			return err
		}
		req.SetAuthToken(token)
		return nil
	})
	return &Client{r: r, logger: logger}
}

// History returns the messages between userA and userB, oldest first.
func (c *Client) History(ctx context.Context, userA, userB string) ([]protocol.Message, error) {
	var out []protocol.Message
	resp, err := c.r.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"a": userA, "b": userB}).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/messages/{a}/{b}")
	if err := check(resp, err, chaterr.ErrFetch); err != nil {
		return nil, err
	}
	return out, nil
}

// SendMessage durably stores a message and returns the confirmed copy.
func (c *Client) SendMessage(ctx context.Context, req protocol.SendRequest) (protocol.Message, error) {
	var out protocol.Message
	resp, err := c.r.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/messages")
	if err := check(resp, err, chaterr.ErrWrite); err != nil {
		return protocol.Message{}, err
	}
	c.logger.Debug("message stored", zap.String("id", out.ID), zap.String("client_id", out.ClientID))
	return out, nil
}

// Conversations returns one summary per peer of userID, newest first.
func (c *Client) Conversations(ctx context.Context, userID string) ([]protocol.ConversationSummary, error) {
	var out []protocol.ConversationSummary
	resp, err := c.r.R().
		SetContext(ctx).
		SetPathParam("user", userID).
		SetResult(&out).
		SetError(&errorBody{}).
		Get("/messages/conversations/{user}")
	if err := check(resp, err, chaterr.ErrFetch); err != nil {
		return nil, err
	}
	return out, nil
}

// DevToken asks a server running with dev tokens enabled to mint a token for userID.
func DevToken(ctx context.Context, baseURL, userID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	resp, err := resty.New().SetBaseURL(baseURL).R().
		SetContext(ctx).
		SetBody(map[string]string{"userId": userID}).
		SetResult(&out).
		SetError(&errorBody{}).
		Post("/auth/token")
	if err := check(resp, err, chaterr.ErrAuthRejected); err != nil {
		return "", err
	}
	return out.Token, nil
}

func check(resp *resty.Response, err error, kind error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	if resp.IsError() {
		se := &chaterr.StatusError{Code: resp.StatusCode()}
		if body, ok := resp.Error().(*errorBody); ok && body != nil {
			se.Message = body.Error
		}
		return fmt.Errorf("%w: %w", kind, se)
	}
	return nil
}
