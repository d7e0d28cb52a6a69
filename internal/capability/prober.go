package capability

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"devstack/pkg/logging"
)

const subsystem = "CapabilityProber"

// DefaultProbeTimeout bounds every individual host query.
const DefaultProbeTimeout = 10 * time.Second

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// Options configures a Prober.
type Options struct {
	// Runtime is the container runtime binary, "docker" or "podman".
	Runtime string
	Timeout time.Duration

	// GOOS and GOARCH override the detected platform. Empty uses the
	// values the binary was built for.
	GOOS   string
	GOARCH string
}

// Prober queries the host. Every query is read-only and best effort: a
// failing query yields a negative capability and a note, never an error.
type Prober struct {
	opts Options
}

// NewProber creates a prober.
func NewProber(opts Options) *Prober {
	if opts.Runtime == "" {
		opts.Runtime = "docker"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultProbeTimeout
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	if opts.GOARCH == "" {
		opts.GOARCH = runtime.GOARCH
	}
	return &Prober{opts: opts}
}

// Probe runs the GPU and runtime queries concurrently and returns the
// combined result.
func (p *Prober) Probe(ctx context.Context) Capabilities {
	caps := Capabilities{
		OS:      p.opts.GOOS,
		Arch:    p.opts.GOARCH,
		Runtime: p.opts.Runtime,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vendor, count, err := p.probeGPU(gctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			caps.Notes = append(caps.Notes, err.Error())
			return nil
		}
		caps.GPUAvailable = true
		caps.GPUVendor = vendor
		caps.GPUCount = count
		return nil
	})
	g.Go(func() error {
		var version, reason string
		if err := p.run(gctx, p.opts.Runtime, "info"); err != nil {
			reason = fmt.Sprintf("container runtime %s unreachable: %v", p.opts.Runtime, err)
		} else if version, err = p.output(gctx, p.opts.Runtime, "compose", "version"); err != nil {
			reason = fmt.Sprintf("%s compose unavailable: %v", p.opts.Runtime, err)
		}
		mu.Lock()
		defer mu.Unlock()
		if reason != "" {
			caps.RuntimeError = reason
			caps.Notes = append(caps.Notes, reason)
			return nil
		}
		caps.ContainerRuntimeReachable = true
		caps.ComposeVersion = firstLine(version)
		return nil
	})
	_ = g.Wait()

	logging.Info(subsystem, "Host %s/%s, gpu=%t (%s), runtime %s reachable=%t",
		caps.OS, caps.Arch, caps.GPUAvailable, caps.GPUVendor, caps.Runtime, caps.ContainerRuntimeReachable)
	for _, n := range caps.Notes {
		logging.Debug(subsystem, "%s", n)
	}
	return caps.clone()
}

// probeGPU asks nvidia-smi first, then rocm-smi.
func (p *Prober) probeGPU(ctx context.Context) (string, int, error) {
	out, nvErr := p.output(ctx, "nvidia-smi", "-L")
	if nvErr == nil {
		if n := countPrefixed(out, "GPU "); n > 0 {
			return "nvidia", n, nil
		}
		nvErr = fmt.Errorf("no devices listed")
	}

	out, amdErr := p.output(ctx, "rocm-smi", "--showid")
	if amdErr == nil {
		if n := countPrefixed(out, "GPU["); n > 0 {
			return "amd", n, nil
		}
		amdErr = fmt.Errorf("no devices listed")
	}
	return "", 0, fmt.Errorf("no GPU detected (nvidia-smi: %v; rocm-smi: %v)", nvErr, amdErr)
}

func (p *Prober) run(ctx context.Context, name string, args ...string) error {
	_, err := p.output(ctx, name, args...)
	return err
}

func (p *Prober) output(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	cmd := execCommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := firstLine(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return stdout.String(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func countPrefixed(out, prefix string) int {
	n := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), prefix) {
			n++
		}
	}
	return n
}
