package daemon

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/config"
	"github.com/matheus3301/collab/internal/lock"
	"github.com/matheus3301/collab/internal/profile"
	"github.com/matheus3301/collab/internal/protocol"
)

const testSecret = "daemon-test-secret-0123"

func testParams(t *testing.T) Params {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	home, err := os.MkdirTemp("/tmp", "collab-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv("COLLAB_HOME", home)

	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Server.JWTSecret = testSecret
	cfg.Server.DevTokens = true
	return Params{
		Profile:    "test",
		SocketPath: filepath.Join(home, "d.sock"),
		Config:     cfg,
		Logger:     zap.NewNop(),
	}
}

func TestDaemonLifecycle(t *testing.T) {
	p := testParams(t)
	var (
		web   *HTTPServer
		admin *Server
	)
	app := fxtest.New(t, Module(p), fx.Populate(&web, &admin))
	app.RequireStart()

	base := "http://" + web.Addr()
	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /health = %d", resp.StatusCode)
	}

	conn, err := grpc.NewClient("unix://"+admin.SocketPath(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hr, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if hr.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("health status = %v, want SERVING", hr.GetStatus())
	}

	// A second daemon on the same profile must refuse to start.
	_, err = lock.Acquire(profile.Dir(p.Profile))
	var held *lock.HeldError
	if !errors.As(err, &held) {
		t.Errorf("second lock acquire = %v, want HeldError", err)
	}

	app.RequireStop()
	if _, err := os.Stat(admin.SocketPath()); !os.IsNotExist(err) {
		t.Errorf("socket still present after stop: %v", err)
	}
}

func TestDaemonEndToEndDelivery(t *testing.T) {
	p := testParams(t)
	var web *HTTPServer
	app := fxtest.New(t, Module(p), fx.Populate(&web))
	app.RequireStart()
	defer app.RequireStop()

	issuer := auth.NewIssuer(testSecret, time.Hour)
	tokB, _, _ := issuer.Issue("brand_1")
	tokA, _, _ := issuer.Issue("creator_1")

	url := "ws://" + web.Addr() + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Authorization": {"Bearer " + tokB}})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = ws.Close() }()
	join, _ := protocol.NewEnvelope(protocol.KindJoin, protocol.Join{UserID: "brand_1"})
	_ = ws.WriteJSON(join)
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env protocol.Envelope
	if err := ws.ReadJSON(&env); err != nil || env.Type != protocol.KindJoined {
		t.Fatalf("join = %s, %v", env.Type, err)
	}

	body := `{"senderId":"creator_1","receiverId":"brand_1","content":"rate card attached","clientId":"tmp-1"}`
	req, _ := http.NewRequest(http.MethodPost, "http://"+web.Addr()+"/messages", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokA)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /messages = %d", resp.StatusCode)
	}

	if err := ws.ReadJSON(&env); err != nil {
		t.Fatal(err)
	}
	var m protocol.Message
	if env.Type != protocol.KindReceiveMessage || env.Decode(&m) != nil || m.ID == "" || m.Content != "rate card attached" {
		t.Errorf("pushed %s %s", env.Type, env.Data)
	}
}

func TestDaemonRejectsMissingSecret(t *testing.T) {
	p := testParams(t)
	p.Config.Server.JWTSecret = ""
	app := fx.New(Module(p), fx.NopLogger)
	if err := app.Err(); err == nil {
		t.Fatal("fx.New() accepted a config without jwt_secret")
	}
}
