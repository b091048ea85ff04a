package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/matheus3301/collab/internal/daemon"
	"github.com/matheus3301/collab/internal/lock"
	"github.com/matheus3301/collab/internal/profile"
)

type statusReport struct {
	Profile string `json:"profile"`
	Socket  string `json:"socket"`
	Status  string `json:"status"`
	PID     int    `json:"pid,omitempty"`
}

func newStatusCmd(o *options) *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query the local collabd health over its admin socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := profile.Resolve(o.profile)
			if err := profile.ValidateName(name); err != nil {
				return err
			}
			if socket == "" {
				socket = profile.SocketPath(name)
			}

			conn, err := grpc.NewClient("unix://"+socket,
				grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("connect to daemon for profile %q: %w", name, err)
			}
			defer func() { _ = conn.Close() }()

			ctx, cancel := o.deadline(cmd)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: daemon.ServiceName})
			if err != nil {
				return fmt.Errorf("daemon for profile %q not reachable: %w", name, err)
			}

			rep := statusReport{
				Profile: name,
				Socket:  socket,
				Status:  resp.GetStatus().String(),
				PID:     lock.Owner(profile.Dir(name)),
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), rep)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Profile: %s\n", rep.Profile)
			fmt.Fprintf(out, "Status:  %s\n", rep.Status)
			if rep.PID > 0 {
				fmt.Fprintf(out, "PID:     %d\n", rep.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "admin socket path (default from profile)")
	return cmd
}
