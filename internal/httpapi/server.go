// Package httpapi exposes the delivery server's REST surface and the
// websocket endpoint.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/protocol"
)

// MessageStore is the durable message log.
type MessageStore interface {
	CreateMessage(ctx context.Context, req protocol.SendRequest, now time.Time) (protocol.Message, bool, error)
	History(ctx context.Context, userA, userB string, limit int) ([]protocol.Message, error)
	Conversations(ctx context.Context, userID string) ([]protocol.ConversationSummary, error)
	PingContext(ctx context.Context) error
}

// Realtime is the websocket side of the server.
type Realtime interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
	BroadcastStored(ctx context.Context, m protocol.Message) error
}

// Options configures the router.
type Options struct {
	Verifier *auth.Verifier
	// Issuer enables POST /auth/token when set.
	Issuer            *auth.Issuer
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	HistoryLimit      int
	Now               func() time.Time
}

type server struct {
	store    MessageStore
	realtime Realtime
	issuer   *auth.Issuer
	logger   *zap.Logger
	limit    int
	now      func() time.Time
}

// NewRouter builds the HTTP handler.
func NewRouter(opts Options, st MessageStore, rt Realtime, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RateLimitRequests <= 0 {
		opts.RateLimitRequests = 120
	}
	if opts.RateLimitWindow <= 0 {
		opts.RateLimitWindow = time.Minute
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s := &server{
		store:    st,
		realtime: rt,
		issuer:   opts.Issuer,
		logger:   logger,
		limit:    opts.HistoryLimit,
		now:      opts.Now,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())
	if s.issuer != nil {
		r.Post("/auth/token", s.issueToken)
	}

	r.Group(func(r chi.Router) {
		r.Use(requireAuth(opts.Verifier))
		r.Get("/ws", s.serveWS)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(opts.RateLimitRequests, opts.RateLimitWindow))
			r.Route("/messages", func(r chi.Router) {
				r.Post("/", s.sendMessage)
				r.Get("/conversations/{userId}", s.conversations)
				r.Get("/{user1}/{user2}", s.history)
			})
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
