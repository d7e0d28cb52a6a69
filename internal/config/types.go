package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Type is the declared type of a configuration value.
type Type string

const (
	TypeString   Type = "string"
	TypePort     Type = "port"
	TypeInt      Type = "int"
	TypeBool     Type = "bool"
	TypeURL      Type = "url"
	TypePath     Type = "path"
	TypeDuration Type = "duration"
)

// KeySpec declares one recognized configuration key.
type KeySpec struct {
	Key         string `yaml:"key"`
	Type        Type   `yaml:"type,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Default     string `yaml:"default,omitempty"`
	Secret      bool   `yaml:"secret,omitempty"`
	Generate    string `yaml:"generate,omitempty"` // template producing a fresh secret for env init
	Description string `yaml:"description,omitempty"`
}

func (k KeySpec) typ() Type {
	if k.Type == "" {
		return TypeString
	}
	return k.Type
}

// Schema is the ordered set of recognized keys.
type Schema []KeySpec

// Lookup returns the spec for key.
func (s Schema) Lookup(key string) (KeySpec, bool) {
	for _, k := range s {
		if k.Key == key {
			return k, true
		}
	}
	return KeySpec{}, false
}

// Keys returns the declared keys in declaration order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s))
	for i, k := range s {
		keys[i] = k.Key
	}
	return keys
}

// Validate checks the schema itself. Secret keys must not carry a default:
// credentials are supplied by the operator or generated by env init.
func (s Schema) Validate() error {
	var errs ValidationErrors
	seen := map[string]bool{}
	for _, k := range s {
		if !validKey(k.Key) {
			errs.Add(k.Key, "is not a valid environment variable name")
			continue
		}
		if seen[k.Key] {
			errs.Add(k.Key, "is declared more than once")
		}
		seen[k.Key] = true
		if err := ValidateOneOf(k.Key, string(k.typ()), knownTypes); err != nil {
			errs = append(errs, err.(ValidationError))
		}
		if k.Secret && k.Default != "" {
			errs.Add(k.Key, "is secret and must not declare a default")
		}
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

var knownTypes = []string{
	string(TypeString), string(TypePort), string(TypeInt), string(TypeBool),
	string(TypeURL), string(TypePath), string(TypeDuration),
}

// Source records which layer supplied a value.
type Source string

const (
	SourceDefault     Source = "default"
	SourceTemplate    Source = "template"
	SourceFile        Source = "file"
	SourceEnvironment Source = "environment"
)

// Config is a resolved, immutable configuration.
type Config struct {
	schema  Schema
	values  map[string]string
	sources map[string]Source
}

// NewConfig wraps already-validated values. Resolve is the normal
// constructor; NewConfig exists for callers that hold trusted values.
func NewConfig(schema Schema, values map[string]string) *Config {
	c := &Config{
		schema:  slices.Clone(schema),
		values:  make(map[string]string, len(values)),
		sources: make(map[string]Source, len(values)),
	}
	for k, v := range values {
		c.values[k] = v
		c.sources[k] = SourceTemplate
	}
	return c
}

// Get returns the value for key or "".
func (c *Config) Get(key string) string {
	return c.values[key]
}

// Lookup returns the value for key and whether it is set.
func (c *Config) Lookup(key string) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Int parses key as an integer.
func (c *Config) Int(key string) (int, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, fmt.Errorf("configuration key %s is not set", key)
	}
	return strconv.Atoi(strings.TrimSpace(v))
}

// Bool parses key as a boolean. Unset keys are false.
func (c *Config) Bool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(c.values[key]))
	return b
}

// Duration parses key as a time.Duration.
func (c *Config) Duration(key string) (time.Duration, error) {
	v, ok := c.values[key]
	if !ok {
		return 0, fmt.Errorf("configuration key %s is not set", key)
	}
	return time.ParseDuration(strings.TrimSpace(v))
}

// Source reports which layer supplied key.
func (c *Config) Source(key string) Source {
	return c.sources[key]
}

// Schema returns the schema the configuration was resolved against.
func (c *Config) Schema() Schema {
	return slices.Clone(c.schema)
}

// Keys returns every key with a value, sorted.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Map returns a copy of all values.
func (c *Config) Map() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Environ returns KEY=VALUE pairs sorted by key, suitable for exec.Cmd.Env.
func (c *Config) Environ() []string {
	keys := c.Keys()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+c.values[k])
	}
	return out
}

// RedactedValue is shown in place of secret values.
const RedactedValue = "********"

// Redacted returns all values with secrets masked.
func (c *Config) Redacted() map[string]string {
	out := c.Map()
	for _, k := range c.schema {
		if k.Secret {
			if _, ok := out[k.Key]; ok {
				out[k.Key] = RedactedValue
			}
		}
	}
	return out
}
