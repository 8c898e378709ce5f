package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/clawdesk/clawdesk/internal/config"
)

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage gateway profiles",
	}
	cmd.AddCommand(profileListCmd(), profileAddCmd())
	return cmd
}

func profileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := resolvePaths(cmd)
			cfg, err := config.NewStore(p.ConfigPath, "").Load()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Profiles))
			for name := range cfg.Profiles {
				names = append(names, name)
			}
			slices.Sort(names)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tBIND\tPORT\tTOKEN")
			for _, name := range names {
				prof := cfg.Profiles[name]
				marker := ""
				if name == cfg.ActiveProfile {
					marker = "*"
				}
				token := "-"
				switch {
				case prof.Auth.Token != "":
					token = "inline"
				case prof.TokenPath != "":
					token = prof.TokenPath
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", marker, name, prof.Bind, prof.Port, token)
			}
			return tw.Flush()
		},
	}
}

func profileAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add or update a profile",
		Long: "Add or update a profile. Without --port the values are collected\n" +
			"with an interactive form.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := config.ProfileInput{Bind: "127.0.0.1", Port: 18789}
			if len(args) == 1 {
				in.Name = args[0]
			}
			in.Bind, _ = cmd.Flags().GetString("bind")
			in.TokenPath, _ = cmd.Flags().GetString("token-path")
			activate, _ := cmd.Flags().GetBool("activate")

			if cmd.Flags().Changed("port") {
				in.Port, _ = cmd.Flags().GetInt("port")
			} else if err := profileForm(&in, &activate).Run(); err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					return nil
				}
				return err
			}
			if err := config.Check(in); err != nil {
				return err
			}

			p := resolvePaths(cmd)
			_, err := config.NewStore(p.ConfigPath, "").Update(func(cfg *config.Config) error {
				in.Apply(cfg)
				if activate {
					cfg.ActiveProfile = in.Name
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Profile %q saved.\n", in.Name)
			return nil
		},
	}
	cmd.Flags().String("bind", "127.0.0.1", "Gateway bind address")
	cmd.Flags().Int("port", 18789, "Gateway port")
	cmd.Flags().String("token-path", "", "File holding the gateway token")
	cmd.Flags().Bool("activate", false, "Make the profile active")
	return cmd
}

// profileForm collects the fields of in interactively.
func profileForm(in *config.ProfileInput, activate *bool) *huh.Form {
	port := strconv.Itoa(in.Port)
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Profile name").
				Value(&in.Name).
				Validate(func(s string) error {
					return config.Validator().Var(s, "required,ident")
				}),
			huh.NewInput().
				Title("Gateway bind address").
				Value(&in.Bind),
			huh.NewInput().
				Title("Gateway port").
				Value(&port).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil {
						return errors.New("port must be a number")
					}
					if _, ok := config.NormalizePort(n); !ok {
						return fmt.Errorf("port must be between %d and %d", config.MinPort, config.MaxPort)
					}
					in.Port = n
					return nil
				}),
			huh.NewInput().
				Title("Token file (optional)").
				Value(&in.TokenPath),
			huh.NewConfirm().
				Title("Make this the active profile?").
				Value(activate),
		),
	)
}
