package app

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"devstack/internal/cli"
	"devstack/internal/health"
	"devstack/internal/scheduler"
	"devstack/pkg/logging"
)

// Config holds the application configuration.
type Config struct {
	StackFile    string
	EnvFile      string
	TemplateFile string
	Set          map[string]string
	Runtime      string
	Project      string
	WorkDir      string

	Debug     bool
	Quiet     bool
	LogFormat logging.Format
	LogOutput io.Writer

	Strict      bool
	MaxAttempts int
	Backoff     *health.Backoff
	Parallel    int
	Observer    scheduler.Observer
}

// NewConfig builds the application configuration from parsed flags. run
// may be nil for commands that do not start units.
func NewConfig(flags *cli.CommandFlags, run *cli.RunFlags) (*Config, error) {
	cfg := &Config{
		StackFile:    flags.StackFile,
		EnvFile:      flags.EnvFile,
		TemplateFile: flags.TemplateFile,
		Set:          flags.Set,
		Runtime:      flags.Runtime,
		Project:      flags.Project,
		Debug:        flags.Debug,
		Quiet:        flags.Quiet,
	}

	switch logging.Format(flags.LogFormat) {
	case logging.FormatText, "":
		cfg.LogFormat = logging.FormatText
	case logging.FormatJSON:
		cfg.LogFormat = logging.FormatJSON
	default:
		return nil, fmt.Errorf("unsupported log format %q (want text or json)", flags.LogFormat)
	}

	if run != nil {
		if err := run.Validate(); err != nil {
			return nil, err
		}
		backoff, _ := run.BackoffPolicy()
		cfg.Strict = run.Strict
		cfg.MaxAttempts = run.MaxAttempts
		cfg.Backoff = backoff
		cfg.Parallel = run.Parallel
	}
	return cfg, nil
}

// logLevel keeps stderr quiet during normal runs so the spinner and the
// report stay readable.
func (c *Config) logLevel() logging.LogLevel {
	switch {
	case c.Debug:
		return logging.LevelDebug
	case c.Quiet:
		return logging.LevelError
	default:
		return logging.LevelWarn
	}
}

// template reads TemplateFile and applies Set on top of it.
func (c *Config) template() (map[string]string, error) {
	out := map[string]string{}
	if c.TemplateFile != "" {
		data, err := os.ReadFile(c.TemplateFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read template file: %w", err)
		}
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse template file %s: %w", c.TemplateFile, err)
		}
		for k, v := range raw {
			switch v := v.(type) {
			case nil:
				out[k] = ""
			case map[string]interface{}, []interface{}:
				return nil, fmt.Errorf("template file %s: value of %s must be a scalar", c.TemplateFile, k)
			default:
				out[k] = fmt.Sprint(v)
			}
		}
	}
	for k, v := range c.Set {
		out[k] = v
	}
	return out, nil
}
