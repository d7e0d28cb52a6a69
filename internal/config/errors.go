package config

import (
	"fmt"
	"strings"
)

// Problem kinds.
const (
	ProblemMissing = "missing"
	ProblemInvalid = "invalid"
	ProblemParse   = "parse"
	ProblemIO      = "io"
)

// Problem is one issue found while resolving configuration.
type Problem struct {
	Key        string `json:"key,omitempty"`
	Kind       string `json:"kind"`
	Source     string `json:"source,omitempty"` // file path or layer name
	LineNumber int    `json:"lineNumber,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (p Problem) String() string {
	var b strings.Builder
	if p.Source != "" {
		b.WriteString(p.Source)
		if p.LineNumber > 0 {
			fmt.Fprintf(&b, ":%d", p.LineNumber)
		}
		b.WriteString(": ")
	}
	if p.Key != "" {
		b.WriteString(p.Key)
		b.WriteString(": ")
	}
	b.WriteString(p.Message)
	return b.String()
}

// ConfigError collects every problem found while resolving a configuration.
// No unit may start while a ConfigError is outstanding.
type ConfigError struct {
	Problems []Problem `json:"problems"`
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "invalid configuration"
	case 1:
		return "invalid configuration: " + e.Problems[0].String()
	}
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return fmt.Sprintf("invalid configuration (%d problems): %s", len(e.Problems), strings.Join(parts, "; "))
}

// HasProblems returns true if any problem was recorded
func (e *ConfigError) HasProblems() bool {
	return e != nil && len(e.Problems) > 0
}

// Add records a problem.
func (e *ConfigError) Add(p Problem) {
	e.Problems = append(e.Problems, p)
}

// Missing returns the keys reported as missing.
func (e *ConfigError) Missing() []string {
	var keys []string
	for _, p := range e.Problems {
		if p.Kind == ProblemMissing {
			keys = append(keys, p.Key)
		}
	}
	return keys
}

// DetailedReport renders one block per problem including suggestions.
func (e *ConfigError) DetailedReport() string {
	if len(e.Problems) == 0 {
		return "No configuration errors"
	}
	var parts []string
	parts = append(parts, fmt.Sprintf("Configuration errors (%d):", len(e.Problems)))
	for _, p := range e.Problems {
		parts = append(parts, "  - "+p.String())
		if p.Suggestion != "" {
			parts = append(parts, "    "+p.Suggestion)
		}
	}
	return strings.Join(parts, "\n")
}

// orNil returns e as an error only when it holds problems, so callers never
// return a typed nil.
func (e *ConfigError) orNil() error {
	if e.HasProblems() {
		return e
	}
	return nil
}
