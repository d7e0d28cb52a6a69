package config

import (
	"errors"
	"os"

	"devstack/pkg/logging"
)

// DefaultEnvFile is the override file read from the working directory.
const DefaultEnvFile = ".env"

// LoadEnvFile reads an env file. A missing file is not an error: it yields
// no entries, since the override layer is optional. On syntax errors the
// well-formed entries are returned together with the *ConfigError.
func LoadEnvFile(path string) ([]EnvEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No env file found at %s, using defaults", path)
			return nil, nil
		}
		return nil, &ConfigError{Problems: []Problem{{Kind: ProblemIO, Source: path, Message: err.Error()}}}
	}
	defer f.Close()

	entries, err := ParseEnv(f, path)
	if err != nil {
		return entries, err
	}
	logging.Info("ConfigLoader", "Loaded %d value(s) from %s", len(entries), path)
	return entries, nil
}
