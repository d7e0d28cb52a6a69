package containerizer

import (
	"fmt"
	"strings"
)

// RuntimeUnavailableError means the container runtime cannot be used at all.
// Nothing can start while it is outstanding.
type RuntimeUnavailableError struct {
	Runtime string
	Err     error
}

func (e *RuntimeUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("container runtime %s is unavailable", e.Runtime)
	}
	return fmt.Sprintf("container runtime %s is unavailable: %v", e.Runtime, e.Err)
}

func (e *RuntimeUnavailableError) Unwrap() error { return e.Err }

// CommandError records a failed runtime invocation with its output.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		if len(out) > 500 {
			out = "..." + out[len(out)-497:]
		}
		msg += "\nOutput: " + out
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }
