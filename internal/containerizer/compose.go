package containerizer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"devstack/pkg/logging"
)

const composeSubsystem = "Compose"

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// ComposeCLI implements ComposeRuntime by shelling out to
// "<runtime> compose". Docker and podman share the same command surface.
type ComposeCLI struct {
	binary  string
	project Project
}

func newComposeCLI(binary string, project Project) *ComposeCLI {
	files := make([]string, len(project.Files))
	for i, f := range project.Files {
		files[i] = expandPath(f)
	}
	project.Files = files
	project.WorkDir = expandPath(project.WorkDir)
	return &ComposeCLI{binary: binary, project: project}
}

// Name returns the runtime binary.
func (c *ComposeCLI) Name() string {
	return c.binary
}

// Available checks the daemon and the compose plugin.
func (c *ComposeCLI) Available(ctx context.Context) error {
	if _, err := c.run(ctx, []string{"info"}); err != nil {
		return &RuntimeUnavailableError{Runtime: c.binary, Err: fmt.Errorf("daemon not accessible: %w", err)}
	}
	if _, err := c.run(ctx, []string{"compose", "version"}); err != nil {
		return &RuntimeUnavailableError{Runtime: c.binary, Err: fmt.Errorf("compose not available: %w", err)}
	}
	return nil
}

// Up starts services detached.
func (c *ComposeCLI) Up(ctx context.Context, services []string) error {
	logging.Info(composeSubsystem, "Starting services %s", strings.Join(services, ", "))
	_, err := c.compose(ctx, append([]string{"up", "-d"}, services...)...)
	if err != nil {
		return fmt.Errorf("failed to start services %s: %w", strings.Join(services, ", "), err)
	}
	return nil
}

// Pull fetches images.
func (c *ComposeCLI) Pull(ctx context.Context, services []string) error {
	logging.Info(composeSubsystem, "Pulling images for %s", describe(services))
	if _, err := c.compose(ctx, append([]string{"pull"}, services...)...); err != nil {
		return fmt.Errorf("failed to pull images: %w", err)
	}
	return nil
}

// Stop stops services.
func (c *ComposeCLI) Stop(ctx context.Context, services []string) error {
	logging.Info(composeSubsystem, "Stopping %s", describe(services))
	if _, err := c.compose(ctx, append([]string{"stop"}, services...)...); err != nil {
		return fmt.Errorf("failed to stop %s: %w", describe(services), err)
	}
	return nil
}

// Down removes the project.
func (c *ComposeCLI) Down(ctx context.Context, removeVolumes bool) error {
	args := []string{"down", "--remove-orphans"}
	if removeVolumes {
		args = append(args, "-v")
	}
	logging.Info(composeSubsystem, "Removing project %s (volumes=%t)", c.project.Name, removeVolumes)
	if _, err := c.compose(ctx, args...); err != nil {
		return fmt.Errorf("failed to remove project: %w", err)
	}
	return nil
}

// Running lists the project's containers.
func (c *ComposeCLI) Running(ctx context.Context) ([]ServiceStatus, error) {
	out, err := c.compose(ctx, "ps", "--all", "--format", "json")
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return parsePS(out)
}

// Logs streams service logs into w.
func (c *ComposeCLI) Logs(ctx context.Context, opts LogOptions, w io.Writer) error {
	args := c.baseArgs()
	args = append(args, "logs", "--no-color")
	if opts.Follow {
		args = append(args, "--follow")
	}
	if opts.Tail > 0 {
		args = append(args, "--tail", strconv.Itoa(opts.Tail))
	}
	args = append(args, opts.Services...)

	cmd := c.command(ctx, args)
	cmd.Stdout = w
	cmd.Stderr = w
	if err := cmd.Run(); err != nil {
		// Interrupting a followed stream is the normal way to end it.
		if ctx.Err() != nil {
			return nil
		}
		return &CommandError{Args: append([]string{c.binary}, args...), Err: err}
	}
	return nil
}

func (c *ComposeCLI) baseArgs() []string {
	args := []string{"compose"}
	if c.project.Name != "" {
		args = append(args, "-p", c.project.Name)
	}
	for _, f := range c.project.Files {
		args = append(args, "-f", f)
	}
	return args
}

func (c *ComposeCLI) compose(ctx context.Context, args ...string) ([]byte, error) {
	return c.run(ctx, append(c.baseArgs(), args...))
}

func (c *ComposeCLI) command(ctx context.Context, args []string) *exec.Cmd {
	cmd := execCommandContext(ctx, c.binary, args...)
	if c.project.WorkDir != "" {
		cmd.Dir = c.project.WorkDir
	}
	if len(c.project.Env) > 0 {
		base := cmd.Env
		if base == nil {
			base = os.Environ()
		}
		cmd.Env = append(base, c.project.Env...)
	}
	return cmd
}

func (c *ComposeCLI) run(ctx context.Context, args []string) ([]byte, error) {
	logging.Debug(composeSubsystem, "Running: %s %s", c.binary, strings.Join(args, " "))

	cmd := c.command(ctx, args)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &CommandError{
			Args:   append([]string{c.binary}, args...),
			Output: stderr.String() + stdout.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// psEntry covers the field names docker and podman use in "ps --format json".
type psEntry struct {
	Service string `json:"Service"`
	Name    string `json:"Name"`
	State   string `json:"State"`
	Health  string `json:"Health"`
	Status  string `json:"Status"`
}

// parsePS accepts either a JSON array or one JSON object per line; compose
// versions disagree on which they print.
func parsePS(out []byte) ([]ServiceStatus, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var entries []psEntry
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
		}
	} else {
		scanner := bufio.NewScanner(bytes.NewReader(trimmed))
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var e psEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return nil, fmt.Errorf("failed to parse compose ps output: %w", err)
			}
			entries = append(entries, e)
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	statuses := make([]ServiceStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, ServiceStatus{
			Service: e.Service,
			Name:    e.Name,
			State:   strings.ToLower(e.State),
			Health:  e.Health,
			Status:  e.Status,
		})
	}
	return statuses, nil
}

func describe(services []string) string {
	if len(services) == 0 {
		return "all services"
	}
	return strings.Join(services, ", ")
}

// expandPath expands tilde in paths to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
