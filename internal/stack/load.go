package stack

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devstack/pkg/logging"
)

//go:embed defaults/stack.yaml defaults/docker-compose.yml
var defaults embed.FS

// DefaultSource names the embedded stack in messages.
const DefaultSource = "embedded:stack.yaml"

// Default returns the stack compiled into the binary. Its compose file is
// carried in Assets and is written next to the env file on first use.
func Default() (*Stack, error) {
	data, err := defaults.ReadFile("defaults/stack.yaml")
	if err != nil {
		return nil, err
	}
	s, err := ParseYAML(data, DefaultSource)
	if err != nil {
		return nil, err
	}
	compose, err := defaults.ReadFile("defaults/docker-compose.yml")
	if err != nil {
		return nil, err
	}
	s.Assets = map[string][]byte{"docker-compose.yml": compose}
	return s, nil
}

// Load reads a stack file, choosing the format by extension. An empty path
// selects the embedded default.
func Load(path string) (*Stack, error) {
	if path == "" {
		logging.Debug("Stack", "Using embedded default stack")
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file: %w", err)
	}

	var s *Stack
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".hcl":
		s, err = ParseHCL(data, path)
	case ".yaml", ".yml":
		s, err = ParseYAML(data, path)
	default:
		return nil, &Error{File: path, Msg: fmt.Sprintf("unsupported stack format %q (want .yaml, .yml or .hcl)", ext)}
	}
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	s.dir = abs
	logging.Info("Stack", "Loaded stack %s with %d unit(s) from %s", s.Name, len(s.Units), path)
	return s, nil
}

// WriteAssets writes the stack's bundled files into dir, leaving existing
// files alone. It returns the paths it created.
func (s *Stack) WriteAssets(dir string) ([]string, error) {
	var created []string
	for name, data := range s.Assets {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return created, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return created, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return created, fmt.Errorf("failed to write %s: %w", name, err)
		}
		logging.Info("Stack", "Wrote %s", path)
		created = append(created, path)
	}
	return created, nil
}
