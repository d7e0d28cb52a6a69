// Package formatting renders run reports, unit status, plans and resolved
// configuration for the CLI in table, plain, JSON or YAML form.
package formatting

import (
	"fmt"
	"io"
	"os"
	"strings"

	"devstack/internal/config"
	"devstack/internal/orchestrator"
	"devstack/internal/scheduler"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatPlain OutputFormat = "plain" // Columns without borders
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Formats lists the accepted values of -o.
var Formats = []string{string(FormatTable), string(FormatPlain), string(FormatJSON), string(FormatYAML)}

// ParseFormat validates an -o value. An empty value selects the table.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatPlain, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want %s)", s, strings.Join(Formats, ", "))
	}
}

// Options configures the formatter behavior
type Options struct {
	Format    OutputFormat
	Quiet     bool // Suppress decorative elements
	Color     bool // Enable colored output
	NoHeaders bool // Omit header rows in plain output
	Out       io.Writer
}

// Formatter renders the results of orchestrator operations.
type Formatter interface {
	Report(r *scheduler.Report) error
	Status(units []orchestrator.UnitStatus) error
	Plan(p *orchestrator.Plan) error

	// Config renders the resolved configuration with secrets masked.
	Config(cfg *config.Config) error
}

// New creates the formatter for options.Format.
func New(options Options) Formatter {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	switch options.Format {
	case FormatJSON:
		return &structuredFormatter{options: options, marshal: marshalJSON}
	case FormatYAML:
		return &structuredFormatter{options: options, marshal: marshalYAML}
	case FormatPlain:
		return &tableFormatter{options: options, plain: true}
	default:
		return &tableFormatter{options: options}
	}
}

// configEntry is one key of `env show`.
type configEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func configEntries(cfg *config.Config) []configEntry {
	values := cfg.Redacted()
	entries := make([]configEntry, 0, len(values))
	for _, k := range cfg.Keys() {
		entries = append(entries, configEntry{Key: k, Value: values[k], Source: string(cfg.Source(k))})
	}
	return entries
}
