package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devstack/internal/formatting"
	"devstack/internal/health"
)

// CommandFlags holds the global flag values shared by every command.
type CommandFlags struct {
	// StackFile selects a YAML or HCL stack. Empty uses the embedded stack.
	StackFile string
	// EnvFile is the override env file layered over the stack template.
	EnvFile string
	// TemplateFile is a YAML mapping of KEY: value merged over the stack template.
	TemplateFile string
	// Set holds KEY=VALUE template overrides from the command line.
	Set map[string]string
	// Runtime is the container runtime (docker or podman).
	Runtime string
	// Project overrides the compose project name.
	Project string
	// Debug enables debug logging.
	Debug bool
	// LogFormat selects text or json logs on stderr.
	LogFormat string
	// OutputFormat specifies the desired output format (table, plain, json, yaml).
	OutputFormat string
	// NoHeaders suppresses the header row in plain output.
	NoHeaders bool
	// Quiet suppresses progress indicators and non-essential output.
	Quiet bool
}

// RegisterGlobalFlags registers the flags every command accepts. Defaults
// for the stack, env file and runtime come from DEVSTACK_STACK,
// DEVSTACK_ENV_FILE and DEVSTACK_RUNTIME.
func RegisterGlobalFlags(cmd *cobra.Command, flags *CommandFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.StackFile, "stack", os.Getenv("DEVSTACK_STACK"), "Stack file (.yaml, .yml or .hcl); empty uses the built-in stack (env: DEVSTACK_STACK)")
	pf.StringVar(&flags.EnvFile, "env-file", envOr("DEVSTACK_ENV_FILE", ".env"), "Override env file; a missing file is ignored (env: DEVSTACK_ENV_FILE)")
	pf.StringVar(&flags.TemplateFile, "template", "", "YAML file of KEY: value pairs merged over the stack template")
	pf.StringToStringVar(&flags.Set, "set", nil, "Template overrides as KEY=VALUE (repeatable)")
	pf.StringVar(&flags.Runtime, "runtime", envOr("DEVSTACK_RUNTIME", "docker"), "Container runtime: docker or podman (env: DEVSTACK_RUNTIME)")
	pf.StringVar(&flags.Project, "project", "", "Compose project name (overrides COMPOSE_PROJECT_NAME)")
	pf.BoolVar(&flags.Debug, "debug", false, "Enable debug logging")
	pf.StringVar(&flags.LogFormat, "log-format", "text", "Log format on stderr: text or json")
	pf.StringVarP(&flags.OutputFormat, "output", "o", "table", "Output format ("+strings.Join(formatting.Formats, ", ")+")")
	pf.BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in plain output")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress non-essential output")
}

// FormatterOptions validates the output flags. Colour is enabled only
// when stdout is a terminal.
func (f *CommandFlags) FormatterOptions() (formatting.Options, error) {
	format, err := formatting.ParseFormat(f.OutputFormat)
	if err != nil {
		return formatting.Options{}, err
	}
	return formatting.Options{
		Format:    format,
		Quiet:     f.Quiet,
		NoHeaders: f.NoHeaders,
		Color:     term.IsTerminal(int(os.Stdout.Fd())),
		Out:       os.Stdout,
	}, nil
}

// Interactive reports whether progress output makes sense: table output
// without --quiet.
func (f *CommandFlags) Interactive() bool {
	format, err := formatting.ParseFormat(f.OutputFormat)
	return err == nil && format == formatting.FormatTable && !f.Quiet
}

// RunFlags are accepted by the commands that start units.
type RunFlags struct {
	Strict      bool
	MaxAttempts int
	Backoff     string
	Parallel    int
}

// RegisterRunFlags registers --strict, --max-attempts, --backoff and
// --parallel on cmd.
func RegisterRunFlags(cmd *cobra.Command, flags *RunFlags) {
	cmd.Flags().BoolVar(&flags.Strict, "strict", false, "Abort the run and exit non-zero when any unit fails")
	cmd.Flags().IntVar(&flags.MaxAttempts, "max-attempts", 0, "Readiness attempts per unit (0 uses the stack default)")
	cmd.Flags().StringVar(&flags.Backoff, "backoff", "", "Backoff policy as STRATEGY[:INITIAL[:MAX]], e.g. exponential:1s:10s or fixed:2s")
	cmd.Flags().IntVar(&flags.Parallel, "parallel", 0, "Units started concurrently within a stage (0 means no limit)")
}

// Validate checks the numeric flags.
func (f *RunFlags) Validate() error {
	if f.MaxAttempts < 0 {
		return fmt.Errorf("--max-attempts must not be negative")
	}
	if f.Parallel < 0 {
		return fmt.Errorf("--parallel must not be negative")
	}
	_, err := f.BackoffPolicy()
	return err
}

// BackoffPolicy parses --backoff. It returns nil when the flag is unset.
// Omitted intervals keep the values of health.DefaultBackoff; a MAX of 0
// leaves the delay bounded by health.MaxDelay.
func (f *RunFlags) BackoffPolicy() (*health.Backoff, error) {
	if strings.TrimSpace(f.Backoff) == "" {
		return nil, nil
	}
	parts := strings.Split(f.Backoff, ":")
	if len(parts) > 3 {
		return nil, fmt.Errorf("invalid --backoff %q: want STRATEGY[:INITIAL[:MAX]]", f.Backoff)
	}

	b := health.DefaultBackoff()
	strategy, err := health.ParseStrategy(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid --backoff: %w", err)
	}
	b.Strategy = strategy

	if len(parts) > 1 {
		if b.Initial, err = time.ParseDuration(parts[1]); err != nil {
			return nil, fmt.Errorf("invalid --backoff initial interval: %w", err)
		}
		if b.Initial > b.Max {
			b.Max = b.Initial
		}
	}
	if len(parts) > 2 {
		if b.Max, err = time.ParseDuration(parts[2]); err != nil {
			return nil, fmt.Errorf("invalid --backoff max interval: %w", err)
		}
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid --backoff: %w", err)
	}
	return &b, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
