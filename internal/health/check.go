package health

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies how a readiness check is performed.
type Kind string

const (
	KindNone    Kind = "none"
	KindTCP     Kind = "tcp"
	KindHTTP    Kind = "http"
	KindCommand Kind = "command"
)

// ParseKind converts a string into a Kind. An empty string maps to KindNone.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindNone, nil
	case KindNone, KindTCP, KindHTTP, KindCommand:
		return k, nil
	default:
		return "", fmt.Errorf("unknown readiness kind %q (want tcp, http, command or none)", s)
	}
}

// DefaultAttemptTimeout bounds a single attempt when a check does not set one.
const DefaultAttemptTimeout = 5 * time.Second

// Check describes a unit's readiness probe.
//
// Target is "host:port" for tcp, a URL for http. Command holds the argv for
// command probes; Target is ignored for them.
type Check struct {
	Kind    Kind
	Target  string
	Command []string
	Timeout time.Duration

	// MaxAttempts and Backoff override the prober defaults when set.
	MaxAttempts int
	Backoff     *Backoff
}

// Validate reports structural problems with the check.
func (c Check) Validate() error {
	switch c.Kind {
	case KindNone, "":
		return nil
	case KindTCP:
		if c.Target == "" {
			return fmt.Errorf("tcp readiness check requires a target")
		}
		if !strings.Contains(c.Target, ":") {
			return fmt.Errorf("tcp readiness target %q must be host:port", c.Target)
		}
	case KindHTTP:
		if !strings.HasPrefix(c.Target, "http://") && !strings.HasPrefix(c.Target, "https://") {
			return fmt.Errorf("http readiness target %q must be an http(s) URL", c.Target)
		}
	case KindCommand:
		if len(c.Command) == 0 {
			return fmt.Errorf("command readiness check requires a command")
		}
	default:
		return fmt.Errorf("unknown readiness kind %q", c.Kind)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("maxAttempts must not be negative")
	}
	if c.Backoff != nil {
		if err := c.Backoff.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c Check) attemptTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultAttemptTimeout
}

// String renders the check for status output.
func (c Check) String() string {
	switch c.Kind {
	case KindTCP, KindHTTP:
		return fmt.Sprintf("%s %s", c.Kind, c.Target)
	case KindCommand:
		return fmt.Sprintf("command %s", strings.Join(c.Command, " "))
	default:
		return string(KindNone)
	}
}
