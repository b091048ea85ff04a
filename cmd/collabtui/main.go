package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/bus"
	"github.com/matheus3301/collab/internal/chat"
	"github.com/matheus3301/collab/internal/config"
	"github.com/matheus3301/collab/internal/conn"
	"github.com/matheus3301/collab/internal/eventloop"
	"github.com/matheus3301/collab/internal/logging"
	"github.com/matheus3301/collab/internal/profile"
	"github.com/matheus3301/collab/internal/restclient"
	"github.com/matheus3301/collab/internal/tui"
	"github.com/matheus3301/collab/internal/tui/model"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	userFlag := flag.String("user", "", "user id (overrides client.user_id)")
	serverFlag := flag.String("server", "", "server base URL (overrides client.server_url)")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fail(err)
	}

	cfg, err := config.Resolve(profile.ConfigPath())
	if err != nil {
		fail(err)
	}
	cc := cfg.Client
	if *userFlag != "" {
		cc.UserID = *userFlag
	}
	if *serverFlag != "" {
		cc.ServerURL = *serverFlag
	}
	if cc.UserID == "" {
		fail(fmt.Errorf("no user: pass --user or set client.user_id"))
	}
	wsURL, err := cc.WebSocketURL()
	if err != nil {
		fail(err)
	}

	// The terminal belongs to tview, so logs only go to the file.
	logger, err := logging.NewFileOnly(profile.LogPath(name, "collabtui"), name, cfg.LogLevel)
	if err != nil {
		fail(err)
	}
	defer func() { _ = logger.Sync() }()

	token := cc.Token
	if token == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		token, err = restclient.DevToken(ctx, cc.ServerURL, cc.UserID)
		cancel()
		if err != nil {
			fail(fmt.Errorf("no client.token configured and dev token request failed: %w", err))
		}
	}
	tokens := auth.StaticToken(token)

	loop := eventloop.New()
	loop.Start()
	defer loop.Stop()

	b := bus.New()
	rest := restclient.New(cc.ServerURL, tokens, cc.RequestTimeout, logger)
	mgr := conn.New(conn.Options{
		URL:               wsURL,
		UserID:            cc.UserID,
		Tokens:            tokens,
		ReconnectInitial:  cc.ReconnectInitial,
		ReconnectMax:      cc.ReconnectMax,
		ReconnectAttempts: cc.ReconnectAttempts,
	}, loop, b, logger)

	open := func(peer string) model.Thread {
		return chat.Open(chat.Config{
			Self:       cc.UserID,
			Peer:       peer,
			TypingIdle: cc.TypingIdle,
		}, loop, mgr, rest, b, logger)
	}
	vm := model.NewViewModel(cc.UserID, rest, open)

	logger.Info("collabtui starting", zap.String("user", cc.UserID), zap.String("server", cc.ServerURL))
	if err := tui.NewApp(vm, mgr, b, logger).Run(); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
