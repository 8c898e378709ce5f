package main

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/clawdesk/clawdesk/internal/paths"
	"github.com/clawdesk/clawdesk/pkg/app"
)

// program adapts app.Run to the service manager's start/stop callbacks.
type program struct {
	paths  paths.Paths
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)
	go func() {
		p.done <- app.Run(ctx, app.RunParams{
			Paths:   p.paths,
			Version: version,
			Commit:  commit,
			Date:    date,
		})
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	return <-p.done
}

func newService(cmd *cobra.Command) (service.Service, error) {
	args := []string{"service", "run"}
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		args = append(args, "--dir", dir)
	}
	return service.New(&program{paths: resolvePaths(cmd)}, &service.Config{
		Name:        "clawdesk",
		DisplayName: "ClawDesk",
		Description: "Local control panel for an OpenClaw gateway",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	})
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install clawdesk as a user service",
	}
	for _, action := range []string{"install", "uninstall", "start", "stop"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the clawdesk service", action),
			RunE: func(cmd *cobra.Command, _ []string) error {
				svc, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s: ok\n", action)
				return nil
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:    "run",
		Short:  "Run under the service manager",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			return svc.Run()
		},
	})
	return cmd
}
