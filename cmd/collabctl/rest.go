package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/matheus3301/collab/internal/protocol"
	"github.com/matheus3301/collab/internal/restclient"
)

func newTokenCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Mint a dev token for the acting user (server must run with dev_tokens)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := o.client()
			if err != nil {
				return err
			}
			ctx, cancel := o.deadline(cmd)
			defer cancel()
			token, err := restclient.DevToken(ctx, c.ServerURL, c.UserID)
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"userId": c.UserID, "token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func newConversationsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"convs"},
		Short:   "List the acting user's conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := o.deadline(cmd)
			defer cancel()
			rc, c, err := o.rest(ctx)
			if err != nil {
				return err
			}
			list, err := rc.Conversations(ctx, c.UserID)
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PEER\tCAMPAIGN\tLAST\tAT")
			for _, s := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.UserID, s.CampaignID, oneLine(s.LastMessage, 48), s.CreatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func newHistoryCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <peer>",
		Short: "Print the conversation with peer, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.deadline(cmd)
			defer cancel()
			rc, c, err := o.rest(ctx)
			if err != nil {
				return err
			}
			msgs, err := rc.History(ctx, c.UserID, args[0])
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), msgs)
			}
			for _, m := range msgs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s: %s\n", m.CreatedAt.Local().Format(time.DateTime), m.SenderID, m.Content)
			}
			return nil
		},
	}
}

func newSendCmd(o *options) *cobra.Command {
	var campaign, clientID string
	cmd := &cobra.Command{
		Use:   "send <receiver> <content...>",
		Short: "Store a message through the REST API",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := o.deadline(cmd)
			defer cancel()
			rc, c, err := o.rest(ctx)
			if err != nil {
				return err
			}
			if clientID == "" {
				clientID = "tmp-" + uuid.NewString()
			}
			req := protocol.SendRequest{
				SenderID:   c.UserID,
				ReceiverID: args[0],
				Content:    strings.Join(args[1:], " "),
				CampaignID: campaign,
				ClientID:   clientID,
			}
			if err := req.Validate(); err != nil {
				return err
			}
			m, err := rc.SendMessage(ctx, req)
			if err != nil {
				return err
			}
			if o.jsonOut {
				return writeJSON(cmd.OutOrStdout(), m)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", m.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "campaign id to attach")
	cmd.Flags().StringVar(&clientID, "client-id", "", "correlation id (default: generated); reuse it to replay a send")
	return cmd
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}
