package orchestrator

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devstack/internal/capability"
	"devstack/internal/config"
	"devstack/internal/containerizer"
	"devstack/internal/dependency"
	"devstack/internal/health"
	"devstack/internal/scheduler"
	"devstack/internal/stack"
)

const testStack = `
name: test
project: testproj
compose_files: [compose.yml]
directories:
  - "{{ .DATA_DIR }}/db"
keys:
  - key: DATA_DIR
    type: path
    default: data
  - key: DB_PORT
    type: port
    required: true
    default: "5432"
  - key: DB_PASSWORD
    secret: true
units:
  - id: db
    services: [postgres]
    readiness:
      kind: tcp
      target: "localhost:{{ .DB_PORT }}"
  - id: api
    depends_on: [db]
    readiness:
      kind: http
      target: "http://localhost:8080/health"
  - id: notebook
    depends_on: [db]
    requires: [gpu]
`

type fakeRuntime struct {
	mu      sync.Mutex
	calls   []string
	running []containerizer.ServiceStatus
	logs    []containerizer.LogOptions
}

func (f *fakeRuntime) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRuntime) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRuntime) Name() string                        { return "docker" }
func (f *fakeRuntime) Available(ctx context.Context) error { return nil }
func (f *fakeRuntime) Up(ctx context.Context, services []string) error {
	f.record("up " + strings.Join(services, " "))
	return nil
}
func (f *fakeRuntime) Pull(ctx context.Context, services []string) error {
	f.record("pull " + strings.Join(services, " "))
	return nil
}
func (f *fakeRuntime) Stop(ctx context.Context, services []string) error {
	f.record("stop " + strings.Join(services, " "))
	return nil
}
func (f *fakeRuntime) Down(ctx context.Context, removeVolumes bool) error {
	if removeVolumes {
		f.record("down -v")
	} else {
		f.record("down")
	}
	return nil
}
func (f *fakeRuntime) Running(ctx context.Context) ([]containerizer.ServiceStatus, error) {
	return f.running, nil
}
func (f *fakeRuntime) Logs(ctx context.Context, opts containerizer.LogOptions, w io.Writer) error {
	f.mu.Lock()
	f.logs = append(f.logs, opts)
	f.mu.Unlock()
	_, err := io.WriteString(w, "log line\n")
	return err
}

type fakeCaps struct {
	caps  capability.Capabilities
	calls int
}

func (f *fakeCaps) Probe(ctx context.Context) capability.Capabilities {
	f.calls++
	return f.caps
}

type fakeHealth struct {
	failUnits   map[string]bool
	failTargets map[string]bool
}

func (f *fakeHealth) Probe(ctx context.Context, unit string, check health.Check) health.Result {
	if f.failUnits[unit] {
		return health.Result{Unit: unit, Attempts: 3, LastError: errors.New("connection refused")}
	}
	return health.Result{Unit: unit, Ready: true, Attempts: 1}
}

func (f *fakeHealth) Attempt(ctx context.Context, check health.Check) error {
	if f.failTargets[check.Target] {
		return errors.New("connection refused")
	}
	return nil
}

type fixture struct {
	orch    *Orchestrator
	rt      *fakeRuntime
	caps    *fakeCaps
	health  *fakeHealth
	workDir string
	phases  <-chan PhaseChange
}

func newFixture(t *testing.T, stackYAML string, mutate func(*Config)) *fixture {
	t.Helper()
	s, err := stack.ParseYAML([]byte(stackYAML), "test.yaml")
	require.NoError(t, err)

	f := &fixture{
		rt:      &fakeRuntime{},
		caps:    &fakeCaps{caps: capability.Capabilities{OS: "linux", Arch: "amd64", ContainerRuntimeReachable: true}},
		health:  &fakeHealth{},
		workDir: t.TempDir(),
	}
	cfg := Config{
		Stack:   s,
		WorkDir: f.workDir,
		NewRuntime: func(runtime string, project containerizer.Project) (containerizer.ComposeRuntime, error) {
			return f.rt, nil
		},
		Capabilities: f.caps,
		Health:       f.health,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.orch, err = New(cfg)
	require.NoError(t, err)
	f.phases = f.orch.SubscribeToPhaseChanges()
	return f
}

func (f *fixture) observedPhases() []Phase {
	var out []Phase
	for {
		select {
		case c := <-f.phases:
			out = append(out, c.To)
		default:
			return out
		}
	}
}

func TestInstall(t *testing.T) {
	f := newFixture(t, testStack, nil)

	report, err := f.orch.Install(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"pull postgres api",
		"up postgres",
		"up api",
	}, f.rt.Calls())

	db, _ := report.Unit("db")
	assert.Equal(t, scheduler.StatusReady, db.Status)
	nb, _ := report.Unit("notebook")
	assert.Equal(t, scheduler.StatusSkipped, nb.Status)
	assert.Equal(t, "requires gpu", nb.Reason)
	assert.True(t, report.OK())

	assert.DirExists(t, filepath.Join(f.workDir, "data", "db"))
	assert.Equal(t, []Phase{PhaseResolving, PhaseValidating, PhaseScheduling, PhaseReporting, PhaseTerminal}, f.observedPhases())
	assert.Equal(t, PhaseTerminal, f.orch.Phase())
}

func TestInstall_MissingConfigStartsNothing(t *testing.T) {
	f := newFixture(t, strings.Replace(testStack, `default: "5432"`, "", 1), nil)

	report, err := f.orch.Install(context.Background())
	assert.Nil(t, report)

	var cerr *config.ConfigError
	require.True(t, errors.As(err, &cerr), "got %v", err)
	assert.Equal(t, []string{"DB_PORT"}, cerr.Missing())

	assert.Empty(t, f.rt.Calls())
	assert.Zero(t, f.caps.calls)
	assert.Equal(t, []Phase{PhaseResolving, PhaseTerminal}, f.observedPhases())
}

func TestInstall_InvalidGraphStartsNothing(t *testing.T) {
	cyclic := strings.Replace(testStack, "  - id: db\n", "  - id: db\n    depends_on: [api]\n", 1)
	f := newFixture(t, cyclic, nil)

	_, err := f.orch.Install(context.Background())
	var cycle *dependency.CycleError
	require.True(t, errors.As(err, &cycle), "got %v", err)

	assert.Empty(t, f.rt.Calls())
	assert.Equal(t, []Phase{PhaseResolving, PhaseValidating, PhaseTerminal}, f.observedPhases())
}

func TestInstall_RuntimeUnreachable(t *testing.T) {
	f := newFixture(t, testStack, nil)
	f.caps.caps.ContainerRuntimeReachable = false
	f.caps.caps.RuntimeError = "container runtime docker unreachable: Cannot connect to the Docker daemon"
	// The GPU note may land after the runtime one.
	f.caps.caps.Notes = []string{f.caps.caps.RuntimeError, "no GPU detected (nvidia-smi: not found; rocm-smi: not found)"}

	_, err := f.orch.Install(context.Background())
	var unavailable *containerizer.RuntimeUnavailableError
	require.True(t, errors.As(err, &unavailable), "got %v", err)
	assert.Contains(t, err.Error(), "Cannot connect")
	assert.NotContains(t, err.Error(), "no GPU detected")
	assert.Empty(t, f.rt.Calls())
}

func TestInstall_RuntimeUnreachableWithoutReason(t *testing.T) {
	f := newFixture(t, testStack, nil)
	f.caps.caps.ContainerRuntimeReachable = false
	f.caps.caps.Notes = []string{"no GPU detected (nvidia-smi: not found; rocm-smi: not found)"}

	_, err := f.orch.Install(context.Background())
	var unavailable *containerizer.RuntimeUnavailableError
	require.True(t, errors.As(err, &unavailable), "got %v", err)
	assert.Contains(t, err.Error(), "daemon did not answer")
	assert.NotContains(t, err.Error(), "GPU")
}

func TestInstall_RuntimeMissing(t *testing.T) {
	f := newFixture(t, testStack, func(c *Config) {
		c.NewRuntime = func(string, containerizer.Project) (containerizer.ComposeRuntime, error) {
			return nil, &containerizer.RuntimeUnavailableError{Runtime: "podman", Err: errors.New("not in PATH")}
		}
	})

	_, err := f.orch.Install(context.Background())
	var unavailable *containerizer.RuntimeUnavailableError
	assert.True(t, errors.As(err, &unavailable))
}

func TestInstall_Strict(t *testing.T) {
	f := newFixture(t, testStack, func(c *Config) { c.Strict = true })
	f.health.failUnits = map[string]bool{"db": true}

	report, err := f.orch.Install(context.Background())
	require.NotNil(t, report)

	var failed *scheduler.UnitFailedError
	require.True(t, errors.As(err, &failed), "got %v", err)
	assert.Equal(t, []string{"db"}, failed.Units)
	assert.Equal(t, []string{"pull postgres api", "up postgres"}, f.rt.Calls())
	assert.Equal(t, PhaseTerminal, f.orch.Phase())
}

func TestInstall_NonStrictFailureIsReported(t *testing.T) {
	f := newFixture(t, testStack, nil)
	f.health.failUnits = map[string]bool{"db": true}

	report, err := f.orch.Install(context.Background())
	require.NoError(t, err)
	assert.False(t, report.OK())

	api, _ := report.Unit("api")
	assert.Equal(t, scheduler.StatusSkipped, api.Status)
	assert.Equal(t, "dependency db failed", api.Reason)
}

func TestStart_SkipsPullAndDirectories(t *testing.T) {
	f := newFixture(t, testStack, nil)

	_, err := f.orch.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"up postgres", "up api"}, f.rt.Calls())
	assert.NoDirExists(t, filepath.Join(f.workDir, "data"))
}

func TestUpdate_PullsThenSchedules(t *testing.T) {
	f := newFixture(t, testStack, nil)

	_, err := f.orch.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"pull postgres api", "up postgres", "up api"}, f.rt.Calls())
}

func TestStop_ReverseStageOrder(t *testing.T) {
	f := newFixture(t, testStack, nil)

	require.NoError(t, f.orch.Stop(context.Background()))
	assert.Equal(t, []string{"stop api notebook", "stop postgres"}, f.rt.Calls())
}

func TestStatus(t *testing.T) {
	f := newFixture(t, testStack, nil)
	f.rt.running = []containerizer.ServiceStatus{
		{Service: "postgres", Name: "testproj-postgres-1", State: "running"},
		{Service: "api", Name: "testproj-api-1", State: "exited"},
	}

	statuses, err := f.orch.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	assert.Equal(t, "db", statuses[0].ID)
	assert.Equal(t, UnitRunning, statuses[0].State)
	assert.True(t, statuses[0].Ready)
	assert.Len(t, statuses[0].Containers, 1)

	assert.Equal(t, "api", statuses[1].ID)
	assert.Equal(t, UnitStopped, statuses[1].State)
	assert.False(t, statuses[1].Ready)

	assert.Equal(t, "notebook", statuses[2].ID)
	assert.Equal(t, "requires gpu", statuses[2].Detail)
}

func TestStatus_RunningButNotReady(t *testing.T) {
	f := newFixture(t, testStack, nil)
	f.rt.running = []containerizer.ServiceStatus{{Service: "postgres", State: "running"}}
	f.health.failTargets = map[string]bool{"localhost:5432": true}

	statuses, err := f.orch.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UnitRunning, statuses[0].State)
	assert.False(t, statuses[0].Ready)
	assert.Equal(t, "connection refused", statuses[0].Detail)
}

func TestLogs(t *testing.T) {
	f := newFixture(t, testStack, nil)

	var out strings.Builder
	require.NoError(t, f.orch.Logs(context.Background(), "db", containerizer.LogOptions{Tail: 10}, &out))
	assert.Equal(t, "log line\n", out.String())
	require.Len(t, f.rt.logs, 1)
	assert.Equal(t, containerizer.LogOptions{Services: []string{"postgres"}, Tail: 10}, f.rt.logs[0])

	err := f.orch.Logs(context.Background(), "nope", containerizer.LogOptions{}, &out)
	var unknown *UnknownUnitError
	assert.True(t, errors.As(err, &unknown))
}

type answer struct {
	ok     bool
	prompt string
}

func (a *answer) Confirm(prompt string) (bool, error) {
	a.prompt = prompt
	return a.ok, nil
}

func TestClean(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		f := newFixture(t, testStack, nil)
		dataDir := filepath.Join(f.workDir, "data", "db")
		require.NoError(t, os.MkdirAll(dataDir, 0755))

		a := &answer{ok: false}
		err := f.orch.Clean(context.Background(), a)
		assert.ErrorIs(t, err, ErrNotConfirmed)
		assert.Contains(t, a.prompt, "testproj")
		assert.Empty(t, f.rt.Calls())
		assert.DirExists(t, dataDir)
	})

	t.Run("confirmed", func(t *testing.T) {
		f := newFixture(t, testStack, nil)
		dataDir := filepath.Join(f.workDir, "data", "db")
		require.NoError(t, os.MkdirAll(dataDir, 0755))

		require.NoError(t, f.orch.Clean(context.Background(), &answer{ok: true}))
		assert.Equal(t, []string{"down -v"}, f.rt.Calls())
		assert.NoDirExists(t, dataDir)
	})

	t.Run("refuses work directory", func(t *testing.T) {
		f := newFixture(t, strings.Replace(testStack, `"{{ .DATA_DIR }}/db"`, `"."`, 1), nil)

		a := &answer{ok: true}
		err := f.orch.Clean(context.Background(), a)
		assert.ErrorContains(t, err, "refusing to remove")
		assert.Empty(t, a.prompt)
		assert.Empty(t, f.rt.Calls())
	})

	t.Run("refuses parent of work directory", func(t *testing.T) {
		f := newFixture(t, strings.Replace(testStack, `"{{ .DATA_DIR }}/db"`, `".."`, 1), nil)

		a := &answer{ok: true}
		err := f.orch.Clean(context.Background(), a)
		assert.ErrorContains(t, err, "refusing to remove")
		assert.ErrorContains(t, err, f.workDir)
		assert.Empty(t, a.prompt)
		assert.Empty(t, f.rt.Calls())
	})

	t.Run("refuses directory containing home", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("HOME", filepath.Join(base, "home", "dev"))
		homes := filepath.Join(base, "home")
		f := newFixture(t, strings.Replace(testStack, `"{{ .DATA_DIR }}/db"`, `"`+homes+`"`, 1), nil)

		a := &answer{ok: true}
		err := f.orch.Clean(context.Background(), a)
		assert.ErrorContains(t, err, "refusing to remove "+homes)
		assert.Empty(t, a.prompt)
		assert.Empty(t, f.rt.Calls())
	})

	t.Run("allows sibling sharing a name prefix with home", func(t *testing.T) {
		base := t.TempDir()
		t.Setenv("HOME", filepath.Join(base, "home"))
		sibling := filepath.Join(base, "home-backup")
		f := newFixture(t, strings.Replace(testStack, `"{{ .DATA_DIR }}/db"`, `"`+sibling+`"`, 1), nil)

		a := &answer{ok: false}
		err := f.orch.Clean(context.Background(), a)
		assert.ErrorIs(t, err, ErrNotConfirmed)
		assert.NotEmpty(t, a.prompt)
	})
}

func TestPlan_DoesNotNeedRuntime(t *testing.T) {
	f := newFixture(t, testStack, func(c *Config) {
		c.NewRuntime = func(string, containerizer.Project) (containerizer.ComposeRuntime, error) {
			return nil, errors.New("runtime must not be created")
		}
	})
	f.caps.caps.ContainerRuntimeReachable = false

	plan, err := f.orch.Plan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "testproj", plan.Project)
	assert.Equal(t, 3, plan.Units())
	require.Len(t, plan.Stages, 2)
	assert.Equal(t, "db", plan.Stages[0][0].ID)
	assert.Equal(t, "tcp localhost:5432", plan.Stages[0][0].Readiness)
	assert.Equal(t, []string{"postgres"}, plan.Stages[0][0].Services)
	assert.Equal(t, "notebook", plan.Stages[1][1].ID)
	assert.Equal(t, []string{"gpu"}, plan.Stages[1][1].Gated)
}

func TestProjectNamePrecedence(t *testing.T) {
	f := newFixture(t, testStack, func(c *Config) { c.Project = "override" })
	plan, err := f.orch.Plan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "override", plan.Project)
}

func TestInitEnv(t *testing.T) {
	f := newFixture(t, testStack, nil)

	path, err := f.orch.InitEnv(false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.workDir, config.DefaultEnvFile), path)

	entries, err := config.LoadEnvFile(path)
	require.NoError(t, err)
	values := map[string]string{}
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	assert.Equal(t, "5432", values["DB_PORT"])
	assert.Len(t, values["DB_PASSWORD"], 32)

	_, err = f.orch.InitEnv(false)
	assert.ErrorIs(t, err, config.ErrFileExists)
}

func TestPhaseTransitions(t *testing.T) {
	f := newFixture(t, testStack, nil)

	assert.Error(t, f.orch.setPhase("test", PhaseScheduling, nil), "scheduling must follow validating")
	require.NoError(t, f.orch.begin("test"))
	assert.ErrorIs(t, f.orch.begin("again"), ErrBusy)
	assert.Error(t, f.orch.setPhase("test", PhaseScheduling, nil))
	require.NoError(t, f.orch.setPhase("test", PhaseValidating, nil))
	require.NoError(t, f.orch.setPhase("test", PhaseScheduling, nil))
	assert.NoError(t, f.orch.finish("test", nil))
	assert.Equal(t, PhaseTerminal, f.orch.Phase())
}
