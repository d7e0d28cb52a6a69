package stack

import (
	"fmt"
	"time"

	"devstack/internal/health"
)

// DefaultMaxAttempts applies when neither the stack nor a unit sets one.
const DefaultMaxAttempts = 30

// rawBackoff is the file form of a backoff policy shared by both formats.
type rawBackoff struct {
	Strategy   string  `yaml:"strategy" hcl:"strategy,optional"`
	Initial    string  `yaml:"initial" hcl:"initial,optional"`
	Max        string  `yaml:"max" hcl:"max,optional"`
	Multiplier float64 `yaml:"multiplier" hcl:"multiplier,optional"`
}

// apply overlays the fields set in r on base.
func (r *rawBackoff) apply(base health.Backoff) (health.Backoff, error) {
	if r == nil {
		return base, nil
	}
	b := base
	if r.Strategy != "" {
		st, err := health.ParseStrategy(r.Strategy)
		if err != nil {
			return b, err
		}
		b.Strategy = st
	}
	var err error
	if b.Initial, err = parseDuration("backoff initial", r.Initial, b.Initial); err != nil {
		return b, err
	}
	if b.Max, err = parseDuration("backoff max", r.Max, b.Max); err != nil {
		return b, err
	}
	if r.Multiplier != 0 {
		b.Multiplier = r.Multiplier
	}
	return b, b.Validate()
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

// probeDefaults converts the stack-wide probe settings.
func probeDefaults(maxAttempts int, backoff *rawBackoff) (ProbeDefaults, error) {
	p := ProbeDefaults{MaxAttempts: maxAttempts, Backoff: health.DefaultBackoff()}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	b, err := backoff.apply(p.Backoff)
	if err != nil {
		return p, fmt.Errorf("probe: %w", err)
	}
	p.Backoff = b
	return p, nil
}

// readinessBase converts the format-independent part of a readiness block.
// A unit backoff override starts from the stack-wide policy.
func readinessBase(unit, kind, timeout string, maxAttempts int, backoff *rawBackoff, probe ProbeDefaults) (Readiness, error) {
	var r Readiness
	k, err := health.ParseKind(kind)
	if err != nil {
		return r, fmt.Errorf("unit %q: %w", unit, err)
	}
	r.Kind = k
	if r.Timeout, err = parseDuration("readiness timeout", timeout, 0); err != nil {
		return r, fmt.Errorf("unit %q: %w", unit, err)
	}
	if maxAttempts < 0 {
		return r, fmt.Errorf("unit %q: max_attempts must not be negative", unit)
	}
	r.MaxAttempts = maxAttempts
	if backoff != nil {
		b, err := backoff.apply(probe.Backoff)
		if err != nil {
			return r, fmt.Errorf("unit %q: %w", unit, err)
		}
		r.Backoff = &b
	}
	return r, nil
}
