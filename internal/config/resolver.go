package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"devstack/pkg/logging"
)

// Sources are the layers a configuration is resolved from, lowest
// precedence first: schema defaults, Template, OverrideFile, Environ.
type Sources struct {
	Schema   Schema
	Template map[string]string

	// OverrideFile is an optional env file path. A missing file is ignored.
	OverrideFile string

	// Environ holds KEY=VALUE pairs, usually os.Environ(). Only keys
	// declared in Schema are taken from it.
	Environ []string
}

// Resolve merges the layers into a Config. It fails with a *ConfigError
// listing every missing required key and every value that does not match its
// declared type. Defaults and template values may use template syntax and
// are rendered against the merged values; values from the override file and
// the environment are taken literally.
func Resolve(src Sources) (*Config, error) {
	if err := src.Schema.Validate(); err != nil {
		return nil, schemaError(err)
	}

	var cerr ConfigError
	values := map[string]string{}
	sources := map[string]Source{}
	literal := map[string]bool{}

	for _, k := range src.Schema {
		if k.Default != "" {
			values[k.Key] = k.Default
			sources[k.Key] = SourceDefault
		}
	}
	for k, v := range src.Template {
		values[k] = v
		sources[k] = SourceTemplate
	}

	if src.OverrideFile != "" {
		entries, err := LoadEnvFile(src.OverrideFile)
		if err != nil {
			var fileErr *ConfigError
			if errors.As(err, &fileErr) {
				cerr.Problems = append(cerr.Problems, fileErr.Problems...)
			} else {
				cerr.Add(Problem{Kind: ProblemIO, Source: src.OverrideFile, Message: err.Error()})
			}
		}
		for _, e := range entries {
			if _, declared := src.Schema.Lookup(e.Key); !declared {
				logging.Debug("ConfigResolver", "Passing through undeclared key %s from %s", e.Key, src.OverrideFile)
			}
			values[e.Key] = e.Value
			sources[e.Key] = SourceFile
			literal[e.Key] = true
		}
	}

	env := environMap(src.Environ)
	for _, k := range src.Schema {
		if v, ok := env[k.Key]; ok {
			values[k.Key] = v
			sources[k.Key] = SourceEnvironment
			literal[k.Key] = true
		}
	}

	data := make(map[string]string, len(values))
	for k, v := range values {
		data[k] = v
	}
	for _, key := range renderOrder(src.Schema, values) {
		if literal[key] {
			continue
		}
		rendered, err := Render(values[key], data)
		if err != nil {
			cerr.Add(Problem{Key: key, Kind: ProblemInvalid, Source: string(sources[key]), Message: err.Error()})
			continue
		}
		values[key] = rendered
		data[key] = rendered
	}

	for _, k := range src.Schema {
		v := strings.TrimSpace(values[k.Key])
		if v == "" {
			if k.Required {
				cerr.Add(Problem{
					Key:        k.Key,
					Kind:       ProblemMissing,
					Message:    "required key is missing or empty",
					Suggestion: missingSuggestion(k),
				})
			}
			continue
		}
		if err := ValidateValue(k.typ(), values[k.Key]); err != nil {
			cerr.Add(Problem{Key: k.Key, Kind: ProblemInvalid, Source: string(sources[k.Key]), Message: err.Error()})
		}
	}

	if cerr.HasProblems() {
		return nil, &cerr
	}

	return &Config{
		schema:  slices.Clone(src.Schema),
		values:  values,
		sources: sources,
	}, nil
}

// renderOrder lists declared keys in declaration order followed by any
// undeclared keys in sorted order.
func renderOrder(schema Schema, values map[string]string) []string {
	order := schema.Keys()
	var extra []string
	for k := range values {
		if _, ok := schema.Lookup(k); !ok {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return append(order, extra...)
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func missingSuggestion(k KeySpec) string {
	if k.Secret {
		return fmt.Sprintf("set %s in the env file or environment, or run 'devstack env init' to generate one", k.Key)
	}
	return fmt.Sprintf("set %s in the env file or environment", k.Key)
}

func schemaError(err error) *ConfigError {
	var cerr ConfigError
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		for _, v := range verrs {
			cerr.Add(Problem{Key: v.Field, Kind: ProblemInvalid, Source: "schema", Message: v.Message})
		}
		return &cerr
	}
	cerr.Add(Problem{Kind: ProblemInvalid, Source: "schema", Message: err.Error()})
	return &cerr
}
