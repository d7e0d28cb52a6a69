package health

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"devstack/pkg/logging"
)

const proberSubsystem = "HealthProber"

// DefaultMaxAttempts is used when neither the prober nor the check sets one.
const DefaultMaxAttempts = 30

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// Result is the outcome of probing one unit.
type Result struct {
	Unit      string
	Ready     bool
	Attempts  int
	LastError error
	Duration  time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Prober.
type Options struct {
	MaxAttempts int
	Backoff     Backoff
	HTTPClient  *http.Client
	Sleep       SleepFunc
}

// Prober polls readiness checks.
type Prober struct {
	maxAttempts int
	backoff     Backoff
	client      *http.Client
	sleep       SleepFunc
}

// NewProber creates a prober. Zero-valued options fall back to defaults.
func NewProber(opts Options) *Prober {
	p := &Prober{
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		client:      opts.HTTPClient,
		sleep:       opts.Sleep,
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.backoff == (Backoff{}) {
		p.backoff = DefaultBackoff()
	}
	if p.client == nil {
		p.client = &http.Client{
			// 3xx counts as ready, so redirects are not followed.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if p.sleep == nil {
		p.sleep = contextSleep
	}
	return p
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Probe polls check until it reports ready or the attempt budget is spent.
//
// Each attempt runs under its own timeout and is detached from ctx, so a
// cancelled run lets the current attempt finish. Cancellation is observed
// between attempts. Probe never panics and never returns an error; failures
// are reported in Result.LastError.
func (p *Prober) Probe(ctx context.Context, unit string, check Check) Result {
	start := time.Now()
	result := Result{Unit: unit}

	if check.Kind == KindNone || check.Kind == "" {
		result.Ready = true
		result.Duration = time.Since(start)
		return result
	}

	maxAttempts := p.maxAttempts
	if check.MaxAttempts > 0 {
		maxAttempts = check.MaxAttempts
	}
	backoff := p.backoff
	if check.Backoff != nil {
		backoff = *check.Backoff
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		lastErr = p.attempt(ctx, check)
		if lastErr == nil {
			logging.Debug(proberSubsystem, "Unit %s ready after %d attempt(s)", unit, attempt)
			result.Ready = true
			result.Duration = time.Since(start)
			return result
		}
		logging.Debug(proberSubsystem, "Unit %s attempt %d/%d: %v", unit, attempt, maxAttempts, lastErr)

		if attempt == maxAttempts {
			break
		}
		if err := p.sleep(ctx, backoff.Delay(attempt)); err != nil {
			result.LastError = fmt.Errorf("probe of %s canceled after %d attempt(s): %w (last: %v)", unit, attempt, err, lastErr)
			result.Duration = time.Since(start)
			return result
		}
	}

	result.LastError = &ProbeTimeoutError{Unit: unit, Attempts: result.Attempts, Last: lastErr}
	result.Duration = time.Since(start)
	return result
}

// Attempt performs a single readiness check. It is used by status queries
// that want a point-in-time answer without retries.
func (p *Prober) Attempt(ctx context.Context, check Check) error {
	if check.Kind == KindNone || check.Kind == "" {
		return nil
	}
	return p.attempt(ctx, check)
}

func (p *Prober) attempt(ctx context.Context, check Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("readiness check panicked: %v", r)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), check.attemptTimeout())
	defer cancel()

	switch check.Kind {
	case KindTCP:
		return p.checkTCP(attemptCtx, check.Target)
	case KindHTTP:
		return p.checkHTTP(attemptCtx, check.Target)
	case KindCommand:
		return p.checkCommand(attemptCtx, check.Command)
	default:
		return fmt.Errorf("unknown readiness kind %q", check.Kind)
	}
}

func (p *Prober) checkTCP(ctx context.Context, target string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		return err
	}
	return conn.Close()
}

func (p *Prober) checkHTTP(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("invalid readiness URL %q: %w", target, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	return fmt.Errorf("%w: HTTP %d from %s", ErrNotReady, resp.StatusCode, target)
}

func (p *Prober) checkCommand(ctx context.Context, argv []string) error {
	cmd := execCommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("command %q timed out: %w", argv[0], ctx.Err())
		}
		detail := strings.TrimSpace(out.String())
		if len(detail) > 200 {
			detail = detail[:197] + "..."
		}
		if detail != "" {
			return fmt.Errorf("command %q failed: %w: %s", argv[0], err, detail)
		}
		return fmt.Errorf("command %q failed: %w", argv[0], err)
	}
	return nil
}
