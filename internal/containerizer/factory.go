package containerizer

import (
	"fmt"
	"os/exec"
	"strings"
)

// RuntimeType defines the type of container runtime
type RuntimeType string

const (
	RuntimeTypeDocker RuntimeType = "docker"
	RuntimeTypePodman RuntimeType = "podman"
)

// lookPath is a variable to allow mocking in tests
var lookPath = exec.LookPath

// NewComposeRuntime creates a compose runtime for the given binary. It only
// checks that the binary is installed; Available talks to the daemon.
func NewComposeRuntime(runtimeType string, project Project) (ComposeRuntime, error) {
	rt := RuntimeType(strings.ToLower(strings.TrimSpace(runtimeType)))

	switch rt {
	case RuntimeTypeDocker, "":
		rt = RuntimeTypeDocker
	case RuntimeTypePodman:
	default:
		return nil, fmt.Errorf("unsupported container runtime: %s", runtimeType)
	}

	if _, err := lookPath(string(rt)); err != nil {
		return nil, &RuntimeUnavailableError{Runtime: string(rt), Err: fmt.Errorf("%s command not found in PATH: %w", rt, err)}
	}
	return newComposeCLI(string(rt), project), nil
}
