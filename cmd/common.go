package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"devstack/internal/app"
	"devstack/internal/cli"
	"devstack/internal/formatting"
	"devstack/internal/orchestrator"
	"devstack/internal/scheduler"
)

// session bundles what a command needs: the application, the output
// formatter and the progress spinner.
type session struct {
	app       *app.Application
	formatter formatting.Formatter
	progress  *cli.Progress
}

// newSession bootstraps the application from the global flags. run is nil
// for commands that do not start units.
func newSession(cmd *cobra.Command, run *cli.RunFlags) (*session, error) {
	opts, err := globalFlags.FormatterOptions()
	if err != nil {
		return nil, err
	}
	opts.Out = cmd.OutOrStdout()

	cfg, err := app.NewConfig(&globalFlags, run)
	if err != nil {
		return nil, err
	}
	progress := cli.NewProgress(os.Stderr, globalFlags.Interactive())
	if run != nil {
		cfg.Observer = progress.Observe
	}

	a, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}
	progress.Follow(a.Orchestrator().SubscribeToPhaseChanges())

	return &session{app: a, formatter: formatting.New(opts), progress: progress}, nil
}

type runFunc func(o *orchestrator.Orchestrator, ctx context.Context) (*scheduler.Report, error)

// report renders r, if any, and passes err through. A strict failure
// still prints the report before the command exits non-zero.
func (s *session) report(r *scheduler.Report, err error) error {
	s.progress.Stop()
	if r != nil {
		if ferr := s.formatter.Report(r); ferr != nil {
			return ferr
		}
	}
	return err
}

// newRunCmd builds install, start and update, which share flags and
// output.
func newRunCmd(use, short, long string, run runFunc) (*cobra.Command, *cli.RunFlags) {
	flags := &cli.RunFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, flags)
			if err != nil {
				return err
			}
			return s.report(run(s.app.Orchestrator(), cmd.Context()))
		},
	}
	cli.RegisterRunFlags(cmd, flags)
	return cmd, flags
}
