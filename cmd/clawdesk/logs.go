package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawdesk/clawdesk/internal/logstream"
)

func logsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print gateway logs through the running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tail, _ := cmd.Flags().GetInt("tail")
			follow, _ := cmd.Flags().GetBool("follow")
			prof, _ := cmd.Flags().GetString("profile")

			client, err := newAPIClient(resolvePaths(cmd))
			if err != nil {
				return err
			}
			q := url.Values{}
			q.Set("tail", strconv.Itoa(tail))
			if prof != "" {
				q.Set("profile", prof)
			}

			if !follow {
				var out struct {
					Lines []string `json:"lines"`
				}
				if err := client.do(cmd.Context(), http.MethodGet, "/api/logs?"+q.Encode(), &out); err != nil {
					return err
				}
				for _, l := range out.Lines {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
				return nil
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			follower := &logstream.Client{
				URL:       client.base + "/api/logs/stream?" + q.Encode(),
				Token:     client.token,
				HTTP:      &http.Client{},
				OnMessage: printMessage(cmd.OutOrStdout(), cmd.ErrOrStderr()),
				OnState: func(s logstream.State, attempt int, delay time.Duration) {
					if s == logstream.StateBackoff {
						fmt.Fprintf(cmd.ErrOrStderr(), "stream lost, retrying in %s (attempt %d)\n", delay, attempt+1)
					}
				},
			}
			return follower.Run(ctx)
		},
	}
	cmd.Flags().IntP("tail", "n", logstream.DefaultTail, "Number of lines per poll")
	cmd.Flags().BoolP("follow", "f", false, "Keep streaming new lines")
	cmd.Flags().String("profile", "", "Gateway profile (defaults to the active one)")
	return cmd
}

// printMessage writes each logs batch to out. Error events go to errOut;
// heartbeats are dropped.
func printMessage(out, errOut io.Writer) func(logstream.Message) {
	return func(m logstream.Message) {
		switch m.Name {
		case logstream.EventLogs:
			var data logstream.LogsData
			if json.Unmarshal(m.Data, &data) == nil {
				for _, l := range data.Lines {
					fmt.Fprintln(out, l)
				}
			}
		case logstream.EventError:
			var data logstream.ErrorData
			if json.Unmarshal(m.Data, &data) == nil {
				fmt.Fprintln(errOut, "gateway:", data.Message)
			}
		}
	}
}
