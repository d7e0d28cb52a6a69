package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recorder) onChange(changed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sort.Strings(changed)
	r.calls = append(r.calls, changed)
}

func (r *recorder) snapshot() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.calls...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

// touch moves the modification time forward so coarse filesystem
// timestamps still register a change.
func touch(t *testing.T, path string, offset time.Duration) {
	t.Helper()
	ts := time.Now().Add(offset)
	require.NoError(t, os.Chtimes(path, ts, ts))
}

func TestNew_Defaults(t *testing.T) {
	w := New(Config{Files: []string{"stack.yaml", ""}})

	assert.Equal(t, DefaultPollInterval, w.config.PollInterval)
	assert.Equal(t, DefaultDebounceInterval, w.config.Debounce)
	require.Len(t, w.Files(), 1)
	assert.True(t, filepath.IsAbs(w.Files()[0]))
}

func TestWatcher_StartStop(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	writeFile(t, env, "DB_PORT=5432\n")

	w := New(Config{Files: []string{env}})
	require.NoError(t, w.Start())
	assert.True(t, w.IsRunning())

	require.NoError(t, w.Start(), "second Start is a no-op")

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(), "second Stop is a no-op")
}

func TestWatcher_NotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	other := filepath.Join(dir, "unrelated.txt")
	writeFile(t, env, "DB_PORT=5432\n")

	rec := &recorder{}
	w := New(Config{Files: []string{env}, Debounce: 20 * time.Millisecond, OnChange: rec.onChange})
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, other, "ignored")
	writeFile(t, env, "DB_PORT=6543\n")

	assert.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{env}, rec.snapshot()[0])
}

func TestWatcher_PollingDetectsChanges(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	stack := filepath.Join(dir, "stack.yaml")
	writeFile(t, env, "DB_PORT=5432\n")

	rec := &recorder{}
	w := New(Config{
		Files:        []string{env, stack},
		ForcePolling: true,
		PollInterval: 10 * time.Millisecond,
		Debounce:     50 * time.Millisecond,
		OnChange:     rec.onChange,
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	writeFile(t, env, "DB_PORT=6543\n")
	touch(t, env, time.Minute)
	writeFile(t, stack, "name: web\n")

	assert.Eventually(t, func() bool { return len(rec.snapshot()) > 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{env, stack}, rec.snapshot()[0])
}

func TestWatcher_StopCancelsPendingNotification(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	writeFile(t, env, "A=1\n")

	rec := &recorder{}
	w := New(Config{Files: []string{env}, ForcePolling: true, Debounce: time.Hour, OnChange: rec.onChange})
	require.NoError(t, w.Start())

	w.triggerDebounced(env)
	require.NoError(t, w.Stop())

	assert.Empty(t, rec.snapshot())
}

func TestCheckForChanges(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	writeFile(t, env, "A=1\n")

	w := New(Config{Files: []string{env}})
	assert.Empty(t, w.checkForChanges(), "first check only records state")
	assert.Empty(t, w.checkForChanges())

	touch(t, env, time.Minute)
	assert.Equal(t, []string{env}, w.checkForChanges())

	require.NoError(t, os.Remove(env))
	assert.Equal(t, []string{env}, w.checkForChanges())
	assert.Empty(t, w.checkForChanges())

	writeFile(t, env, "A=2\n")
	assert.Equal(t, []string{env}, w.checkForChanges())
}
