package main

import (
	"fmt"
	"net/url"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teslashibe/kavach/internal/httpc"
	"github.com/teslashibe/kavach/pkg/journal"
)

const defaultAPI = "http://127.0.0.1:8080"

func apiAddr() string {
	if v := os.Getenv("KAVACH_API"); v != "" {
		return v
	}
	return defaultAPI
}

// remoteStatus mirrors the JSON of GET /api/status.
type remoteStatus struct {
	Mode      string `json:"mode"`
	Status    string `json:"status"`
	Light     string `json:"light"`
	Overlay   string `json:"overlay"`
	Learning  bool   `json:"learning"`
	Connected bool   `json:"mqtt_connected"`
	Playing   bool   `json:"playing"`
	Clients   int    `json:"clients"`
}

// newStatusCmd creates the "kavach status" subcommand.
func newStatusCmd() *cobra.Command {
	var (
		addr   string
		events int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running assistant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := httpc.New(addr)
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var st remoteStatus
			if err := c.Get(ctx, "/api/status", &st); err != nil {
				return fmt.Errorf("query %s: %w", addr, err)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "mode:\t%s\n", st.Mode)
			fmt.Fprintf(tw, "status:\t%s\n", st.Status)
			fmt.Fprintf(tw, "light:\t%s\n", st.Light)
			if st.Overlay != "" {
				fmt.Fprintf(tw, "overlay:\t%s\n", st.Overlay)
			}
			fmt.Fprintf(tw, "mqtt:\t%t\n", st.Connected)
			fmt.Fprintf(tw, "learning:\t%t\n", st.Learning)
			fmt.Fprintf(tw, "playing:\t%t\n", st.Playing)
			fmt.Fprintf(tw, "clients:\t%d\n", st.Clients)
			if err := tw.Flush(); err != nil {
				return err
			}

			if events <= 0 {
				return nil
			}
			var entries []journal.Entry
			q := url.Values{"limit": {fmt.Sprint(events)}}
			if err := c.Get(ctx, "/api/events?"+q.Encode(), &entries); err != nil {
				return fmt.Errorf("query events: %w", err)
			}
			fmt.Fprintln(out)
			tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.At.Format("15:04:05"), e.Kind, e.Name, e.Detail)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", apiAddr(), "dashboard URL (env KAVACH_API)")
	cmd.Flags().IntVar(&events, "events", 10, "recent journal entries to show, 0 for none")
	return cmd
}

// newTriggerCmd creates the "kavach trigger" subcommand.
func newTriggerCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "trigger command <name> | button short|long | learn | cancel",
		Short: "Drive a running assistant through its dashboard API",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := httpc.New(addr)
			ctx := cmd.Context()

			var err error
			switch {
			case args[0] == "command" && len(args) == 2:
				err = c.Post(ctx, "/api/commands/"+url.PathEscape(args[1]), nil, nil)
			case args[0] == "button" && len(args) == 2:
				err = c.Post(ctx, "/api/button/"+url.PathEscape(args[1]), nil, nil)
			case args[0] == "learn" && len(args) == 1:
				err = c.Post(ctx, "/api/learn", nil, nil)
			case args[0] == "cancel" && len(args) == 1:
				err = c.Delete(ctx, "/api/learn")
			default:
				return fmt.Errorf("usage: %s", cmd.Use)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", apiAddr(), "dashboard URL (env KAVACH_API)")
	return cmd
}
