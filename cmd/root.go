package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"devstack/internal/cli"
	"devstack/internal/config"
	"devstack/internal/containerizer"
	"devstack/internal/dependency"
	"devstack/internal/scheduler"
	"devstack/internal/stack"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates a missing or invalid configuration value.
	ExitCodeConfig = 2
	// ExitCodeGraph indicates an invalid stack: a cycle, an unknown
	// dependency or a stack file that cannot be evaluated.
	ExitCodeGraph = 3
	// ExitCodeRuntimeUnavailable indicates the container runtime cannot be reached.
	ExitCodeRuntimeUnavailable = 4
	// ExitCodeUnitFailed indicates a unit failed during a --strict run.
	ExitCodeUnitFailed = 5
)

// globalFlags holds the persistent flags shared by every command.
var globalFlags cli.CommandFlags

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "devstack",
	Short: "Bring up a local development platform in dependency order",
	Long: `devstack starts a multi-service development platform (source hosting,
CI, metrics, dashboards, experiment tracking, notebooks) on docker or podman
compose. Services start in dependency stages; each stage waits until every
unit in it passes its readiness probe, and units whose host requirements
are not met (such as a GPU) are skipped.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command with a context that is canceled on
// SIGINT or SIGTERM, and exits with a code derived from the error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "devstack version %s\n" .Version}}`)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var configErr *config.ConfigError
	if errors.As(err, &configErr) {
		return ExitCodeConfig
	}

	var (
		cycleErr     *dependency.CycleError
		unknownErr   *dependency.UnknownDependencyError
		duplicateErr *dependency.DuplicateUnitError
		stackErr     *stack.Error
		evalErr      *stack.EvalError
	)
	if errors.As(err, &cycleErr) || errors.As(err, &unknownErr) || errors.As(err, &duplicateErr) ||
		errors.As(err, &stackErr) || errors.As(err, &evalErr) {
		return ExitCodeGraph
	}

	var runtimeErr *containerizer.RuntimeUnavailableError
	if errors.As(err, &runtimeErr) {
		return ExitCodeRuntimeUnavailable
	}

	var failedErr *scheduler.UnitFailedError
	if errors.As(err, &failedErr) {
		return ExitCodeUnitFailed
	}

	return ExitCodeError
}

func init() {
	cli.RegisterGlobalFlags(rootCmd, &globalFlags)

	rootCmd.AddCommand(newInstallCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newEnvCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
