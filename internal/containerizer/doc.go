// Package containerizer drives the container runtime through its compose
// command line.
//
// The orchestrator treats the runtime as an opaque collaborator: it asks
// for named services to come up, stop or be removed, and for a list of
// what is running. Container lifecycle, image pulling and networking are
// left entirely to docker or podman.
//
// # Core Components
//
// ComposeRuntime: the interface the orchestrator depends on
//   - Available: daemon and compose plugin answer
//   - Up / Stop / Pull: act on a subset of services
//   - Down: remove the project, optionally with its volumes
//   - Running: parsed "compose ps" output
//   - Logs: stream service output
//
// ComposeCLI: implementation that runs "<runtime> compose -p <project> ..."
// with the resolved configuration appended to the command environment, so
// compose files can interpolate ${DB_PORT} and friends.
//
// # Usage Example
//
//	rt, err := containerizer.NewComposeRuntime("docker", containerizer.Project{
//	    Name:  "devstack",
//	    Files: []string{"docker-compose.yml"},
//	    Env:   cfg.Environ(),
//	})
//	if err != nil {
//	    return err
//	}
//	if err := rt.Up(ctx, []string{"postgres"}); err != nil {
//	    return err
//	}
//
// # Error Handling
//
// A missing binary or unreachable daemon yields *RuntimeUnavailableError.
// Failed invocations yield *CommandError carrying the command line and its
// output.
package containerizer
