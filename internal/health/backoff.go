package health

import (
	"fmt"
	"strings"
	"time"
)

// Strategy selects how the delay between attempts grows.
type Strategy string

const (
	StrategyFixed       Strategy = "fixed"
	StrategyExponential Strategy = "exponential"
)

// ParseStrategy converts a string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyFixed, StrategyExponential:
		return st, nil
	case "":
		return StrategyExponential, nil
	default:
		return "", fmt.Errorf("unknown backoff strategy %q (want fixed or exponential)", s)
	}
}

// Backoff is the delay policy between readiness attempts.
type Backoff struct {
	Strategy   Strategy
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff doubles from one second up to fifteen seconds.
func DefaultBackoff() Backoff {
	return Backoff{
		Strategy:   StrategyExponential,
		Initial:    time.Second,
		Max:        15 * time.Second,
		Multiplier: 2.0,
	}
}

// Validate checks the policy for nonsensical values.
func (b Backoff) Validate() error {
	if _, err := ParseStrategy(string(b.Strategy)); err != nil {
		return err
	}
	if b.Initial < 0 || b.Max < 0 {
		return fmt.Errorf("backoff intervals must not be negative")
	}
	if b.Max > 0 && b.Initial > b.Max {
		return fmt.Errorf("backoff initial interval %s exceeds max %s", b.Initial, b.Max)
	}
	if b.Strategy == StrategyExponential && b.Multiplier != 0 && b.Multiplier < 1 {
		return fmt.Errorf("backoff multiplier must be >= 1, got %v", b.Multiplier)
	}
	return nil
}

// MaxDelay bounds the wait between attempts when a policy sets no Max.
const MaxDelay = 5 * time.Minute

// Delay returns the wait before the given retry. attempt is the number of
// attempts already made (1 after the first failure).
// Exponential delay is Initial * Multiplier^(attempt-1), capped at Max, or
// at MaxDelay when Max is zero.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	limit := b.Max
	if limit <= 0 {
		limit = MaxDelay
	}
	delay := b.Initial
	if b.Strategy != StrategyFixed {
		mult := b.Multiplier
		if mult == 0 {
			mult = 2.0
		}
		for i := 1; i < attempt && delay < limit; i++ {
			next := float64(delay) * mult
			if next >= float64(limit) {
				delay = limit
				break
			}
			delay = time.Duration(next)
		}
	}
	if delay > limit {
		delay = limit
	}
	return delay
}
