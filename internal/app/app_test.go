package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devstack/internal/cli"
	"devstack/internal/health"
	"devstack/pkg/logging"
)

const testStack = `
name: web
compose_files: [compose.yml]
keys:
  - key: API_PORT
    type: port
    default: "8080"
units:
  - id: api
    readiness:
      kind: http
      target: "http://localhost:{{ .API_PORT }}/healthz"
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewConfig(t *testing.T) {
	flags := &cli.CommandFlags{StackFile: "stack.hcl", EnvFile: ".env", Runtime: "podman", LogFormat: "json", Debug: true}
	run := &cli.RunFlags{Strict: true, MaxAttempts: 5, Backoff: "fixed:2s", Parallel: 3}

	cfg, err := NewConfig(flags, run)
	require.NoError(t, err)
	assert.Equal(t, "stack.hcl", cfg.StackFile)
	assert.Equal(t, "podman", cfg.Runtime)
	assert.Equal(t, logging.FormatJSON, cfg.LogFormat)
	assert.Equal(t, logging.LevelDebug, cfg.logLevel())
	assert.True(t, cfg.Strict)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 3, cfg.Parallel)
	require.NotNil(t, cfg.Backoff)
	assert.Equal(t, health.StrategyFixed, cfg.Backoff.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Backoff.Initial)
}

func TestNewConfig_Errors(t *testing.T) {
	_, err := NewConfig(&cli.CommandFlags{LogFormat: "xml"}, nil)
	assert.ErrorContains(t, err, "unsupported log format")

	_, err = NewConfig(&cli.CommandFlags{}, &cli.RunFlags{Backoff: "linear"})
	assert.ErrorContains(t, err, "invalid --backoff")
}

func TestConfig_LogLevel(t *testing.T) {
	assert.Equal(t, logging.LevelWarn, (&Config{}).logLevel())
	assert.Equal(t, logging.LevelError, (&Config{Quiet: true}).logLevel())
	assert.Equal(t, logging.LevelDebug, (&Config{Quiet: true, Debug: true}).logLevel())
}

func TestConfig_Template(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.yaml")
	writeFile(t, path, "DB_PORT: 6543\nDB_NAME: app\nDEBUG: true\nEMPTY:\n")

	cfg := &Config{TemplateFile: path, Set: map[string]string{"DB_NAME": "override"}}
	got, err := cfg.template()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"DB_PORT": "6543",
		"DB_NAME": "override",
		"DEBUG":   "true",
		"EMPTY":   "",
	}, got)

	writeFile(t, path, "NESTED:\n  a: b\n")
	_, err = cfg.template()
	assert.ErrorContains(t, err, "must be a scalar")

	_, err = (&Config{TemplateFile: filepath.Join(dir, "missing.yaml")}).template()
	assert.ErrorContains(t, err, "failed to read template file")
}

func TestNewApplication(t *testing.T) {
	dir := t.TempDir()
	stackFile := filepath.Join(dir, "stack.yaml")
	writeFile(t, stackFile, testStack)

	a, err := NewApplication(&Config{StackFile: stackFile, EnvFile: filepath.Join(dir, ".env"), WorkDir: dir, LogOutput: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, "web", a.Stack().Name)
	require.NotNil(t, a.Orchestrator())

	cfg, err := a.Orchestrator().ResolveConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Get("API_PORT"))

	assert.Equal(t, []string{stackFile, filepath.Join(dir, ".env")}, a.WatchedFiles())
}

func TestNewApplication_EmbeddedStack(t *testing.T) {
	a, err := NewApplication(&Config{WorkDir: t.TempDir(), LogOutput: io.Discard})
	require.NoError(t, err)
	assert.Equal(t, "devstack", a.Stack().Name)
	assert.Empty(t, a.WatchedFiles())
}

func TestNewApplication_BadStack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.toml")
	writeFile(t, path, "name = \"web\"\n")

	_, err := NewApplication(&Config{StackFile: path, LogOutput: io.Discard})
	assert.ErrorContains(t, err, "unsupported stack format")
}

type notifications struct {
	mu     sync.Mutex
	states []string
}

func (n *notifications) record(_ bool, state string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, state)
	return true, nil
}

func (n *notifications) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.states...)
}

func TestWatch_ReappliesOnChange(t *testing.T) {
	dir := t.TempDir()
	stackFile := filepath.Join(dir, "stack.yaml")
	envFile := filepath.Join(dir, ".env")
	writeFile(t, stackFile, testStack)
	writeFile(t, envFile, "API_PORT=8080\n")

	n := &notifications{}
	origNotify, origDebounce := sdNotify, watchDebounce
	sdNotify, watchDebounce = n.record, 20*time.Millisecond
	t.Cleanup(func() { sdNotify, watchDebounce = origNotify, origDebounce })

	a, err := NewApplication(&Config{StackFile: stackFile, EnvFile: envFile, WorkDir: dir, LogOutput: io.Discard})
	require.NoError(t, err)

	var mu sync.Mutex
	var ports []string
	apply := func(_ context.Context, a *Application) error {
		cfg, err := a.Orchestrator().ResolveConfig()
		if err != nil {
			return err
		}
		mu.Lock()
		ports = append(ports, cfg.Get("API_PORT"))
		mu.Unlock()
		return nil
	}
	applied := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ports...)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx, apply) }()

	require.Eventually(t, func() bool { return len(applied()) == 1 }, 5*time.Second, 10*time.Millisecond)
	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, envFile, "API_PORT=9090\n")

	require.Eventually(t, func() bool { return len(applied()) >= 2 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "9090", applied()[1])

	cancel()
	require.NoError(t, <-done)

	states := n.snapshot()
	assert.Equal(t, daemon.SdNotifyReady, states[0])
	assert.Contains(t, states, daemon.SdNotifyReloading)
	assert.Equal(t, daemon.SdNotifyStopping, states[len(states)-1])
}

func TestWatch_FirstApplyErrorIsReturned(t *testing.T) {
	n := &notifications{}
	origNotify := sdNotify
	sdNotify = n.record
	t.Cleanup(func() { sdNotify = origNotify })

	a, err := NewApplication(&Config{WorkDir: t.TempDir(), LogOutput: io.Discard})
	require.NoError(t, err)

	err = a.Watch(context.Background(), func(context.Context, *Application) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, n.snapshot())
}
