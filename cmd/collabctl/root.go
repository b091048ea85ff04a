package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/matheus3301/collab/internal/auth"
	"github.com/matheus3301/collab/internal/config"
	"github.com/matheus3301/collab/internal/profile"
	"github.com/matheus3301/collab/internal/restclient"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	profile    string
	configPath string
	server     string
	user       string
	token      string
	jsonOut    bool
	timeout    time.Duration
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "collabctl",
		Short:         "Inspect and drive a collab delivery server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&o.profile, "profile", "", "profile name (overrides config default)")
	pf.StringVar(&o.configPath, "config", "", "config file (default ~/.collab/config.toml)")
	pf.StringVar(&o.server, "server", "", "server base URL (overrides client.server_url)")
	pf.StringVarP(&o.user, "user", "u", "", "acting user id (overrides client.user_id)")
	pf.StringVar(&o.token, "token", "", "bearer token (overrides client.token)")
	pf.BoolVar(&o.jsonOut, "json", false, "output in JSON format")
	pf.DurationVar(&o.timeout, "timeout", 10*time.Second, "per-command timeout")

	root.AddCommand(
		newStatusCmd(o),
		newTokenCmd(o),
		newConversationsCmd(o),
		newHistoryCmd(o),
		newSendCmd(o),
	)
	return root
}

// client resolves the client settings: flags over environment over config file.
func (o *options) client() (config.Client, error) {
	path := o.configPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.Resolve(path)
	if err != nil {
		return config.Client{}, err
	}
	c := cfg.Client
	if o.server != "" {
		c.ServerURL = o.server
	}
	if o.user != "" {
		c.UserID = o.user
	}
	if o.token != "" {
		c.Token = o.token
	}
	if c.UserID == "" {
		return config.Client{}, fmt.Errorf("no user: pass --user or set client.user_id")
	}
	return c, nil
}

// rest builds an authenticated REST client. Without a configured token it
// asks the server for a dev token.
func (o *options) rest(ctx context.Context) (*restclient.Client, config.Client, error) {
	c, err := o.client()
	if err != nil {
		return nil, c, err
	}
	token := c.Token
	if token == "" {
		if token, err = restclient.DevToken(ctx, c.ServerURL, c.UserID); err != nil {
			return nil, c, fmt.Errorf("no token configured and dev token request failed: %w", err)
		}
	}
	return restclient.New(c.ServerURL, auth.StaticToken(token), o.timeout, nil), c, nil
}

func (o *options) deadline(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.timeout)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
