package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/clawdesk/clawdesk/internal/security"
)

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the API secret",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Generate a new API secret",
		Long: "Generate a new API secret. A running server rotates it in place so\n" +
			"existing clients are cut off at once; otherwise the file is rewritten.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := resolvePaths(cmd)
			client, err := newAPIClient(p)
			if err != nil {
				return err
			}
			if client.reachable(cmd.Context()) {
				var out struct {
					Token string `json:"token"`
				}
				if err := client.do(cmd.Context(), http.MethodPost, "/api/secret/rotate", &out); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Secret rotated on the running server.")
				return nil
			}
			if _, err := security.NewSecretStore(p.SecretPath, nil).Rotate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Secret rotated (%s).\n", p.SecretPath)
			return nil
		},
	})
	return cmd
}
