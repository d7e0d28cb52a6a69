package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devstack/pkg/logging"
)

// ErrFileExists is returned by WriteEnvFile when the target exists and
// overwriting was not requested.
var ErrFileExists = errors.New("env file already exists")

// DefaultGenerate produces secrets for keys that do not declare a template.
const DefaultGenerate = `{{ randAlphaNum 32 }}`

// InitValues computes the values an initial env file should contain:
// rendered defaults and template values, with every secret generated fresh.
func InitValues(schema Schema, template map[string]string) (map[string]string, error) {
	if err := schema.Validate(); err != nil {
		return nil, schemaError(err)
	}

	values := map[string]string{}
	for _, k := range schema {
		if k.Default != "" {
			values[k.Key] = k.Default
		}
	}
	for k, v := range template {
		values[k] = v
	}

	var cerr ConfigError
	for _, k := range schema {
		if k.Secret {
			gen := k.Generate
			if gen == "" {
				gen = DefaultGenerate
			}
			secret, err := Render(gen, values)
			if err != nil {
				cerr.Add(Problem{Key: k.Key, Kind: ProblemInvalid, Source: "generate", Message: err.Error()})
				continue
			}
			values[k.Key] = secret
			continue
		}
		rendered, err := Render(values[k.Key], values)
		if err != nil {
			cerr.Add(Problem{Key: k.Key, Kind: ProblemInvalid, Source: string(SourceDefault), Message: err.Error()})
			continue
		}
		values[k.Key] = rendered
	}
	if cerr.HasProblems() {
		return nil, &cerr
	}
	return values, nil
}

// WriteEnvFile persists values as an env file with one documented line per
// declared key. Undeclared keys are appended at the end. An existing file
// is only replaced when force is set. The file is written with mode 0600
// because it holds credentials.
func WriteEnvFile(path string, schema Schema, values map[string]string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s: %w", path, ErrFileExists)
	}

	var buf bytes.Buffer
	buf.WriteString("# devstack environment\n")
	buf.WriteString("# Every recognized key is listed below. Values set here override the stack defaults;\n")
	buf.WriteString("# process environment variables override this file.\n")

	for _, k := range schema {
		buf.WriteString("\n")
		if k.Description != "" {
			fmt.Fprintf(&buf, "# %s\n", k.Description)
		}
		var attrs []string
		attrs = append(attrs, string(k.typ()))
		if k.Required {
			attrs = append(attrs, "required")
		}
		if k.Secret {
			attrs = append(attrs, "secret")
		}
		fmt.Fprintf(&buf, "# (%s)\n", strings.Join(attrs, ", "))
		fmt.Fprintf(&buf, "%s=%s\n", k.Key, quoteEnvValue(values[k.Key]))
	}

	var extra []string
	for _, key := range renderOrder(schema, values) {
		if _, declared := schema.Lookup(key); !declared {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		buf.WriteString("\n# Additional values\n")
		for _, key := range extra {
			fmt.Fprintf(&buf, "%s=%s\n", key, quoteEnvValue(values[key]))
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", path, err)
	}
	logging.Info("ConfigWriter", "Wrote %d key(s) to %s", len(schema)+len(extra), path)
	return nil
}
