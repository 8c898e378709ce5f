// Package main is the entry point for the clawdesk CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clawdesk/clawdesk/internal/paths"
	"github.com/clawdesk/clawdesk/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clawdesk",
		Short:         "Local control panel for an OpenClaw gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("dir", "", "Keep every clawdesk and openclaw file under this directory")
	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		profileCmd(),
		secretCmd(),
		logsCmd(),
		serviceCmd(),
	)
	return root
}

// resolvePaths honors --dir, falling back to the environment and defaults.
func resolvePaths(cmd *cobra.Command) paths.Paths {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return paths.InDir(dir)
	}
	return paths.Resolve()
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clawdesk %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the clawdesk server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			level, err := parseLevel(cmd)
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), app.RunParams{
				Paths:    resolvePaths(cmd),
				Version:  version,
				Commit:   commit,
				Date:     date,
				LogLevel: level,
				Stderr:   cmd.ErrOrStderr(),
			})
		},
	}
	cmd.Flags().String("log-level", "info", "Minimum log level (debug, info, warn, error)")
	return cmd
}

func parseLevel(cmd *cobra.Command) (slog.Level, error) {
	raw, _ := cmd.Flags().GetString("log-level")
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid --log-level %q", raw)
	}
	return level, nil
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
