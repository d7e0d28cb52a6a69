package scheduler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devstack/internal/capability"
	"devstack/internal/dependency"
	"devstack/internal/health"
)

type fakeLauncher struct {
	mu    sync.Mutex
	calls [][]string
	fail  map[string]error
}

func (f *fakeLauncher) Up(_ context.Context, services []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, services)
	for _, s := range services {
		if err := f.fail[s]; err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLauncher) launched() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, c := range f.calls {
		for _, s := range c {
			out[s] = true
		}
	}
	return out
}

type probeFunc func(ctx context.Context, unit string, check health.Check) health.Result

func (f probeFunc) Probe(ctx context.Context, unit string, check health.Check) health.Result {
	return f(ctx, unit, check)
}

func alwaysReady() Prober {
	return probeFunc(func(_ context.Context, unit string, _ health.Check) health.Result {
		return health.Result{Unit: unit, Ready: true, Attempts: 1}
	})
}

func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func addUnits(t *testing.T, units ...dependency.Unit) *dependency.Graph {
	t.Helper()
	g := dependency.New()
	for _, u := range units {
		require.NoError(t, g.AddUnit(u))
	}
	return g
}

func deps(ids ...string) []dependency.UnitID {
	out := make([]dependency.UnitID, len(ids))
	for i, id := range ids {
		out[i] = dependency.UnitID(id)
	}
	return out
}

func status(t *testing.T, r *Report, id string) UnitResult {
	t.Helper()
	u, ok := r.Unit(id)
	require.True(t, ok, "unit %s missing from report", id)
	return u
}

func TestRun_FailedUnitSkipsDependentsOnly(t *testing.T) {
	failing := health.Check{Kind: health.KindTCP, Target: closedAddr(t), Timeout: 200 * time.Millisecond}
	g := addUnits(t,
		dependency.Unit{ID: "postgres", Readiness: failing},
		dependency.Unit{ID: "gitea", DependsOn: deps("postgres")},
		dependency.Unit{ID: "woodpecker", DependsOn: deps("gitea")},
		dependency.Unit{ID: "prometheus"},
		dependency.Unit{ID: "grafana", DependsOn: deps("prometheus")},
	)

	const maxAttempts = 3
	prober := health.NewProber(health.Options{
		MaxAttempts: maxAttempts,
		Sleep:       func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	})
	launcher := &fakeLauncher{}

	report, err := New(launcher, prober, Options{}).Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)

	pg := status(t, report, "postgres")
	assert.Equal(t, StatusFailed, pg.Status)
	assert.Equal(t, maxAttempts, pg.Attempts)
	assert.Contains(t, pg.Error, "not ready after 3 attempts")

	gitea := status(t, report, "gitea")
	assert.Equal(t, StatusSkipped, gitea.Status)
	assert.Equal(t, "dependency postgres failed", gitea.Reason)

	wp := status(t, report, "woodpecker")
	assert.Equal(t, StatusSkipped, wp.Status)
	assert.Equal(t, "dependency gitea is skipped", wp.Reason)

	assert.Equal(t, StatusReady, status(t, report, "prometheus").Status)
	assert.Equal(t, StatusReady, status(t, report, "grafana").Status)

	launched := launcher.launched()
	assert.True(t, launched["postgres"])
	assert.False(t, launched["gitea"])
	assert.False(t, launched["woodpecker"])

	assert.False(t, report.OK())
	assert.False(t, report.Aborted)
	assert.NoError(t, report.Err(), "non-strict runs report failures as data")
	assert.Equal(t, "2 ready, 1 failed, 2 skipped", report.Summary())
}

func TestRun_GPUGateSkipsInsteadOfFailing(t *testing.T) {
	g := addUnits(t,
		dependency.Unit{ID: "mlflow"},
		dependency.Unit{ID: "jupyter-gpu", DependsOn: deps("mlflow"), Requires: []string{"gpu"}},
	)
	launcher := &fakeLauncher{}

	report, err := New(launcher, alwaysReady(), Options{Strict: true}).
		Run(context.Background(), g, capability.Capabilities{GPUAvailable: false, ContainerRuntimeReachable: true})
	require.NoError(t, err)

	j := status(t, report, "jupyter-gpu")
	assert.Equal(t, StatusSkipped, j.Status)
	assert.Equal(t, "requires gpu", j.Reason)
	assert.False(t, launcher.launched()["jupyter-gpu"])
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
}

func TestRun_DiamondRespectsOrdering(t *testing.T) {
	g := addUnits(t,
		dependency.Unit{ID: "A"},
		dependency.Unit{ID: "B", DependsOn: deps("A")},
		dependency.Unit{ID: "C", DependsOn: deps("A")},
		dependency.Unit{ID: "D", DependsOn: deps("B", "C")},
	)

	var mu sync.Mutex
	var events []Event
	observer := func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	report, err := New(&fakeLauncher{}, alwaysReady(), Options{Observer: observer}).
		Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, [][]string{{"A"}, {"B", "C"}, {"D"}}, report.Stages)

	index := func(unit string, to Status) int {
		for i, e := range events {
			if string(e.Unit) == unit && e.To == to {
				return i
			}
		}
		t.Fatalf("no %s event for %s", to, unit)
		return -1
	}
	assert.Less(t, index("A", StatusReady), index("B", StatusStarting))
	assert.Less(t, index("A", StatusReady), index("C", StatusStarting))
	assert.Less(t, index("B", StatusReady), index("D", StatusStarting))
	assert.Less(t, index("C", StatusReady), index("D", StatusStarting))
	assert.Len(t, events, 8)
}

func TestRun_StrictAbortsOnFirstFailure(t *testing.T) {
	g := addUnits(t,
		dependency.Unit{ID: "a"},
		dependency.Unit{ID: "b"},
		dependency.Unit{ID: "c", DependsOn: deps("a")},
		dependency.Unit{ID: "d", DependsOn: deps("b")},
	)
	prober := probeFunc(func(_ context.Context, unit string, _ health.Check) health.Result {
		if unit == "a" {
			return health.Result{Unit: unit, Attempts: 2, LastError: errors.New("connection refused")}
		}
		return health.Result{Unit: unit, Ready: true, Attempts: 1}
	})
	launcher := &fakeLauncher{}

	// Parallel: 1 makes a run before its sibling b.
	report, err := New(launcher, prober, Options{Strict: true, Parallel: 1}).Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)

	assert.True(t, report.Aborted)
	a := status(t, report, "a")
	assert.Equal(t, StatusFailed, a.Status)
	assert.Equal(t, 2, a.Attempts)
	assert.Equal(t, "connection refused", a.Error)

	// The failing stage completes; only later stages are skipped.
	assert.Equal(t, StatusReady, status(t, report, "b").Status)
	for _, id := range []string{"c", "d"} {
		u := status(t, report, id)
		assert.Equal(t, StatusSkipped, u.Status, id)
		assert.Equal(t, "run aborted: unit a failed", u.Reason, id)
		assert.False(t, launcher.launched()[id], id)
	}

	var failed *UnitFailedError
	require.ErrorAs(t, report.Err(), &failed)
	assert.Equal(t, []string{"a"}, failed.Units)
	assert.Equal(t, "1 ready, 1 failed, 2 skipped (aborted)", report.Summary())
}

func TestRun_StrictLetsInFlightSiblingsFinish(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fixed := &health.Backoff{Strategy: health.StrategyFixed, Initial: 50 * time.Millisecond}
	g := addUnits(t,
		dependency.Unit{ID: "a", Readiness: health.Check{Kind: health.KindTCP, Target: closedAddr(t), Timeout: 200 * time.Millisecond, MaxAttempts: 1}},
		dependency.Unit{ID: "b", Readiness: health.Check{Kind: health.KindHTTP, Target: srv.URL, Timeout: time.Second, MaxAttempts: 5, Backoff: fixed}},
		dependency.Unit{ID: "c", DependsOn: deps("a")},
		dependency.Unit{ID: "d", DependsOn: deps("b")},
	)

	var mu sync.Mutex
	var order []string
	observer := func(e Event) {
		if e.To == StatusFailed || e.To == StatusReady {
			mu.Lock()
			order = append(order, string(e.Unit))
			mu.Unlock()
		}
	}

	launcher := &fakeLauncher{}
	report, err := New(launcher, health.NewProber(health.Options{}), Options{Strict: true, Observer: observer}).
		Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, order, "b settles after a has failed")
	mu.Unlock()

	b := status(t, report, "b")
	assert.Equal(t, StatusReady, b.Status)
	assert.Equal(t, 3, b.Attempts)
	assert.Empty(t, b.Reason)

	for _, id := range []string{"c", "d"} {
		u := status(t, report, id)
		assert.Equal(t, StatusSkipped, u.Status, id)
		assert.Equal(t, "run aborted: unit a failed", u.Reason, id)
		assert.False(t, launcher.launched()[id], id)
	}

	assert.True(t, report.Aborted)
	var failed *UnitFailedError
	require.ErrorAs(t, report.Err(), &failed)
	assert.Equal(t, []string{"a"}, failed.Units)
	assert.Equal(t, "strict mode: 1 unit(s) failed: a", failed.Error())
}

func TestRun_LaunchFailure(t *testing.T) {
	g := addUnits(t, dependency.Unit{ID: "gitea", Services: []string{"gitea", "gitea-db"}})
	launcher := &fakeLauncher{fail: map[string]error{"gitea-db": errors.New("no such image")}}

	report, err := New(launcher, alwaysReady(), Options{}).Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)

	u := status(t, report, "gitea")
	assert.Equal(t, StatusFailed, u.Status)
	assert.Equal(t, "launch failed", u.Reason)
	assert.Equal(t, "no such image", u.Error)
	assert.Equal(t, 0, u.Attempts)
}

func TestRun_CancellationLeavesNoAmbiguousState(t *testing.T) {
	g := addUnits(t,
		dependency.Unit{ID: "db"},
		dependency.Unit{ID: "web"},
		dependency.Unit{ID: "app", DependsOn: deps("db")},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	prober := probeFunc(func(ctx context.Context, unit string, _ health.Check) health.Result {
		if unit == "db" {
			cancel()
			return health.Result{Unit: unit, Attempts: 1, LastError: ctx.Err()}
		}
		return health.Result{Unit: unit, Ready: true, Attempts: 1}
	})

	report, err := New(&fakeLauncher{}, prober, Options{Parallel: 1}).Run(ctx, g, capability.Capabilities{})
	require.NoError(t, err)
	assert.True(t, report.Canceled)
	assert.False(t, report.OK())

	// web runs after db in the same stage because of Parallel: 1.
	db := status(t, report, "db")
	assert.Equal(t, StatusFailed, db.Status)
	assert.Equal(t, "run canceled", db.Reason)
	web := status(t, report, "web")
	assert.Equal(t, StatusSkipped, web.Status)
	assert.Equal(t, "run canceled", web.Reason)
	app := status(t, report, "app")
	assert.Equal(t, StatusSkipped, app.Status)
	assert.Equal(t, "run canceled", app.Reason)

	for _, u := range report.Units {
		assert.True(t, u.Status.Terminal(), "unit %s left in %s", u.ID, u.Status)
	}
}

func TestRun_ParallelLimit(t *testing.T) {
	var units []dependency.Unit
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		units = append(units, dependency.Unit{ID: dependency.UnitID(id)})
	}
	g := addUnits(t, units...)

	var current, peak int32
	prober := probeFunc(func(_ context.Context, unit string, _ health.Check) health.Result {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return health.Result{Unit: unit, Ready: true, Attempts: 1}
	})

	report, err := New(&fakeLauncher{}, prober, Options{Parallel: 2}).Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_InvalidGraphStartsNothing(t *testing.T) {
	g := addUnits(t,
		dependency.Unit{ID: "A", DependsOn: deps("B")},
		dependency.Unit{ID: "B", DependsOn: deps("A")},
	)
	launcher := &fakeLauncher{}

	report, err := New(launcher, alwaysReady(), Options{}).Run(context.Background(), g, capability.Capabilities{})
	assert.Nil(t, report)
	var cycle *dependency.CycleError
	assert.ErrorAs(t, err, &cycle)
	assert.Empty(t, launcher.launched())
}

func TestRun_AssignsRunID(t *testing.T) {
	g := addUnits(t, dependency.Unit{ID: "solo"})
	s := New(&fakeLauncher{}, alwaysReady(), Options{})

	first, err := s.Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)
	second, err := s.Run(context.Background(), g, capability.Capabilities{})
	require.NoError(t, err)

	assert.Len(t, first.RunID, 36)
	assert.NotEqual(t, first.RunID, second.RunID)
}
