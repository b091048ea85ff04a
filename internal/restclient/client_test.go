package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/chaterr"
	"github.com/matheus3301/collab/internal/protocol"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHistoryInjectsToken(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		if r.URL.Path != "/messages/user_1/user_2" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no route"})
			return
		}
		writeJSON(w, http.StatusOK, []protocol.Message{
			{ID: "m1", SenderID: "user_1", ReceiverID: "user_2", Content: "hi", CreatedAt: at},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, auth.StaticToken("tok"), time.Second, nil)
	msgs, err := c.History(context.Background(), "user_1", "user_2")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "m1" || !msgs[0].CreatedAt.Equal(at) {
		t.Errorf("History() = %+v", msgs)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantAuth bool
	}{
		{"unauthorized", http.StatusUnauthorized, true},
		{"server error", http.StatusInternalServerError, false},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, map[string]string{"error": "boom"})
			}))
			defer srv.Close()
			c := New(srv.URL, auth.StaticToken("tok"), time.Second, nil)

			_, err := c.History(context.Background(), "a", "b")
			if !errors.Is(err, chaterr.ErrFetch) {
				t.Errorf("History() error = %v, want ErrFetch", err)
			}
			if errors.Is(err, chaterr.ErrAuthRejected) != tt.wantAuth {
				t.Errorf("auth rejection = %v, want %v", !tt.wantAuth, tt.wantAuth)
			}
			var se *chaterr.StatusError
			if !errors.As(err, &se) || se.Code != tt.status || se.Message != "boom" {
				t.Errorf("status error = %+v", se)
			}

			_, err = c.SendMessage(context.Background(), protocol.SendRequest{SenderID: "a", ReceiverID: "b", Content: "x"})
			if !errors.Is(err, chaterr.ErrWrite) {
				t.Errorf("SendMessage() error = %v, want ErrWrite", err)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusCreated, protocol.Message{
			ID: "m100", ClientID: req.ClientID, SenderID: req.SenderID, ReceiverID: req.ReceiverID, Content: req.Content,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, auth.StaticToken("tok"), time.Second, nil)
	m, err := c.SendMessage(context.Background(), protocol.SendRequest{SenderID: "user_1", ReceiverID: "user_2", Content: "hi", ClientID: "tmp-1"})
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m100" || m.ClientID != "tmp-1" {
		t.Errorf("SendMessage() = %+v", m)
	}
}

func TestTransportFailureIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, auth.StaticToken("tok"), time.Second, nil)
	if _, err := c.Conversations(context.Background(), "user_1"); !errors.Is(err, chaterr.ErrFetch) {
		t.Errorf("Conversations() error = %v, want ErrFetch", err)
	}
}

func TestMissingTokenNeverHitsServer(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hit = true }))
	defer srv.Close()

	c := New(srv.URL, auth.StaticToken(""), time.Second, nil)
	_, err := c.History(context.Background(), "a", "b")
	if !errors.Is(err, chaterr.ErrAuthRejected) {
		t.Errorf("History() error = %v, want ErrAuthRejected", err)
	}
	if hit {
		t.Error("request sent without a token")
	}
}
