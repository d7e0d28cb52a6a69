// Package config resolves the environment a stack runs with.
//
// A stack declares its recognized keys as a Schema of KeySpecs. Each key has
// a type (string, port, int, bool, url, path, duration), may be required,
// may carry a default and may be marked secret.
//
// # Layers
//
// Resolve merges, from lowest to highest precedence:
//
//  1. schema defaults
//  2. the template mapping supplied by the caller
//  3. an optional override env file (KEY=value lines)
//  4. the process environment, for declared keys only
//
// Defaults and template values may be Go templates using the sprig function
// library, e.g. `{{ env "HOME" }}/.devstack/data` or
// `postgres://{{ .DB_USER }}@localhost:{{ .DB_PORT }}`. They are rendered
// against the merged values. Values from the env file and the environment are
// never rendered.
//
// # Errors
//
// Resolve reports every problem at once in a *ConfigError: missing required
// keys, type mismatches, template errors and env file syntax errors with
// their line numbers.
//
// # Secrets
//
// Secret keys never have a default. They must be supplied through the env
// file or the environment. InitValues generates fresh values for them from
// their Generate template (by default 32 random alphanumerics), and
// WriteEnvFile persists the result with mode 0600.
//
// Resolve is pure over its inputs apart from reading the override file;
// writing a configuration to disk is always an explicit WriteEnvFile call.
package config
