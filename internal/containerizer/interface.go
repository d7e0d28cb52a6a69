package containerizer

import (
	"context"
	"io"
)

// ComposeRuntime is the container runtime as seen by the orchestrator: a
// black box that brings named compose services up and down and reports
// what is running. Container lifecycle, image pulling and networking stay
// inside the runtime.
type ComposeRuntime interface {
	// Name returns the runtime binary, e.g. "docker".
	Name() string

	// Available checks that the runtime daemon and its compose support answer.
	Available(ctx context.Context) error

	// Up creates and starts services in the background.
	Up(ctx context.Context, services []string) error

	// Pull fetches the images of services. No services means all.
	Pull(ctx context.Context, services []string) error

	// Stop stops services without removing them. No services means all.
	Stop(ctx context.Context, services []string) error

	// Down removes the project's containers and networks, and its volumes
	// when removeVolumes is set.
	Down(ctx context.Context, removeVolumes bool) error

	// Running reports the project's containers.
	Running(ctx context.Context) ([]ServiceStatus, error)

	// Logs writes service output to w until it ends or ctx is done.
	Logs(ctx context.Context, opts LogOptions, w io.Writer) error
}

// Project identifies the compose project commands act on.
type Project struct {
	Name    string   // compose project name (-p)
	Files   []string // compose files (-f); empty lets compose discover them
	WorkDir string   // working directory for compose commands
	Env     []string // KEY=VALUE pairs added to the command environment
}

// ServiceStatus is one row of "compose ps".
type ServiceStatus struct {
	Service string `json:"service"`
	Name    string `json:"name"`
	State   string `json:"state"`
	Health  string `json:"health,omitempty"`
	Status  string `json:"status,omitempty"`
}

// IsRunning reports whether the container is up.
func (s ServiceStatus) IsRunning() bool {
	return s.State == "running"
}

// LogOptions selects which logs to show.
type LogOptions struct {
	Services []string
	Follow   bool
	Tail     int // 0 shows everything
}
