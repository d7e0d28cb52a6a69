package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"devstack/internal/app"
)

func newStartCmd() *cobra.Command {
	var watch bool
	cmd, flags := newRunCmd("start",
		"Start every unit in dependency order",
		`Start the stack stage by stage without pulling images or creating data
directories. Use install for the first run.

With --watch, devstack stays in the foreground and starts the stack again
whenever the stack file, the env file or the template file changes. When
run as a systemd notify service it reports READY after each apply.

Examples:
  devstack start
  devstack start --parallel 2 --backoff fixed:2s
  devstack start --watch`,
		nil)

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, flags)
		if err != nil {
			return err
		}
		if !watch {
			return s.report(s.app.Orchestrator().Start(cmd.Context()))
		}
		return s.watch(cmd.Context())
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-apply the stack when its files change")
	return cmd
}

func (s *session) watch(ctx context.Context) error {
	defer s.progress.Stop()
	return s.app.Watch(ctx, func(ctx context.Context, a *app.Application) error {
		if a != s.app {
			s.progress.Follow(a.Orchestrator().SubscribeToPhaseChanges())
		}
		report, err := a.Orchestrator().Start(ctx)
		if report != nil {
			if ferr := s.formatter.Report(report); ferr != nil {
				return ferr
			}
		}
		return err
	})
}
