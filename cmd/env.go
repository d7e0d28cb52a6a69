package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"devstack/internal/config"
	"devstack/internal/stack"
)

func newEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Create or inspect the env file",
	}
	cmd.AddCommand(newEnvInitCmd())
	cmd.AddCommand(newEnvShowCmd())
	return cmd
}

func newEnvInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an env file documenting every key",
		Long: `Write the env file (--env-file, default .env) with one documented line
per key the stack declares. Defaults are filled in and every secret gets a
freshly generated random value; nothing is ever set to a known password.

An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			s.progress.Stop()
			path, err := s.app.Orchestrator().InitEnv(force)
			if errors.Is(err, config.ErrFileExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing env file")
	return cmd
}

func newEnvShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration with secrets masked",
		Long: `Merge the stack defaults, the template, the env file and the process
environment and print every key with the layer its value came from.
Secret values are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, nil)
			if err != nil {
				return err
			}
			s.progress.Stop()
			cfg, err := s.app.Orchestrator().ResolveConfig()
			if err != nil {
				return err
			}
			return s.formatter.Config(cfg)
		},
	}
}

// unitCompletion offers the unit IDs of the selected stack.
func unitCompletion() ([]string, cobra.ShellCompDirective) {
	st, err := stack.Load(globalFlags.StackFile)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	return st.UnitIDs(), cobra.ShellCompDirectiveNoFileComp
}
