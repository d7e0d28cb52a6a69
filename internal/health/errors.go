package health

import (
	"errors"
	"fmt"
)

// ErrNotReady is returned by a single attempt that completed but did not
// observe a ready unit (for example an HTTP 503).
var ErrNotReady = errors.New("not ready")

// ProbeTimeoutError records that a unit's readiness was never confirmed
// within its attempt budget.
type ProbeTimeoutError struct {
	Unit     string
	Attempts int
	Last     error
}

func (e *ProbeTimeoutError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("unit %s not ready after %d attempts", e.Unit, e.Attempts)
	}
	return fmt.Sprintf("unit %s not ready after %d attempts: %v", e.Unit, e.Attempts, e.Last)
}

func (e *ProbeTimeoutError) Unwrap() error { return e.Last }
