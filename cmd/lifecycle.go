package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"devstack/internal/cli"
	"devstack/internal/containerizer"
	"devstack/internal/orchestrator"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop every unit in reverse dependency order",
		Long: `Stop the stack's containers, last stage first, so that no unit loses
a dependency while it is still running. Containers, volumes and data are
kept; use clean to remove them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			defer s.progress.Stop()
			if err := s.app.Orchestrator().Stop(cmd.Context()); err != nil {
				return err
			}
			if !globalFlags.Quiet {
				fmt.Fprintln(cmd.ErrOrStderr(), "Stack stopped")
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state and readiness of every unit",
		Long: `List every unit with its containers and run its readiness check once.
A unit is "running" when all of its containers are up, "partial" when only
some are, and "stopped" otherwise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			units, err := s.app.Orchestrator().Status(cmd.Context())
			s.progress.Stop()
			if err != nil {
				return err
			}
			return s.formatter.Status(units)
		},
	}
}

func newLogsCmd() *cobra.Command {
	var opts containerizer.LogOptions
	cmd := &cobra.Command{
		Use:   "logs [unit]",
		Short: "Show container logs for one unit or the whole stack",
		Long: `Stream the compose logs of a unit's services, or of every service when
no unit is given.

Examples:
  devstack logs
  devstack logs gitea --tail 100
  devstack logs postgres -f`,
		Args: cobra.MaximumNArgs(1),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return unitCompletion()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Tail < 0 {
				return fmt.Errorf("--tail must not be negative")
			}
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			s.progress.Stop()
			unit := ""
			if len(args) == 1 {
				unit = args[0]
			}
			return s.app.Orchestrator().Logs(cmd.Context(), unit, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVarP(&opts.Follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVar(&opts.Tail, "tail", 0, "Number of lines to show from the end of the logs (0 shows all)")
	return cmd
}

func newCleanCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove containers, volumes and data directories",
		Long: `Remove the stack's containers, networks and volumes, then delete its data
directories. This destroys all data; devstack asks for confirmation unless
--yes is given. Without a terminal, --yes is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			var confirm orchestrator.Confirmer = cli.AutoConfirm{}
			if !yes {
				// The spinner would overwrite the prompt.
				s.progress.Stop()
				confirm = &cli.Prompt{}
			}
			err = s.app.Orchestrator().Clean(cmd.Context(), confirm)
			s.progress.Stop()
			if errors.Is(err, orchestrator.ErrNotConfirmed) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted, nothing was removed")
				return nil
			}
			if err != nil {
				return err
			}
			if !globalFlags.Quiet {
				fmt.Fprintln(cmd.ErrOrStderr(), "Stack removed")
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the start order without starting anything",
		Long: `Resolve the configuration, probe the host and validate the stack, then
print the stages in which units would start and which would be skipped.
The container runtime does not need to be reachable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			plan, err := s.app.Orchestrator().Plan(cmd.Context())
			s.progress.Stop()
			if err != nil {
				return err
			}
			return s.formatter.Plan(plan)
		},
	}
}
