package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clawdesk/clawdesk/internal/config"
	"github.com/clawdesk/clawdesk/internal/security"
	"github.com/clawdesk/clawdesk/pkg/app"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := resolvePaths(cmd)
			cfg, err := config.NewStore(p.ConfigPath, "").Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration OK (%s)\n", p.ConfigPath)
			fmt.Fprintf(cmd.OutOrStdout(), "  active profile: %s\n", cfg.ActiveProfile)
			fmt.Fprintf(cmd.OutOrStdout(), "  profiles: %d, macros: %d, allowed actions: %d\n",
				len(cfg.Profiles), len(cfg.Macros), len(cfg.Security.AllowActions))
			return nil
		},
	})

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the configuration with credentials redacted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, _ := cmd.Flags().GetString("format")
			p := resolvePaths(cmd)
			cfg, err := config.NewStore(p.ConfigPath, "").Load()
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), cfg, format)
		},
	}
	show.Flags().String("format", "yaml", "Output format (json or yaml)")
	cmd.AddCommand(show)

	return cmd
}

// writeConfig prints cfg in format with every inline token redacted. The
// YAML form keeps the JSON field names.
func writeConfig(w io.Writer, cfg *config.Config, format string) error {
	doc := security.RedactObject(cfg, app.Literals("", cfg)...)

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
