package capability

import (
	"slices"
	"strings"
)

// Feature names understood by Has. Platform gates use the "os:" and "arch:"
// prefixes followed by a GOOS or GOARCH value.
const (
	FeatureGPU     = "gpu"
	FeatureRuntime = "runtime"
	prefixOS       = "os:"
	prefixArch     = "arch:"
	prefixGPU      = "gpu:"
)

// Capabilities describes the host. It is produced once per run by a Prober
// and passed by value; nothing mutates it afterwards.
type Capabilities struct {
	OS   string `json:"os" yaml:"os"`
	Arch string `json:"arch" yaml:"arch"`

	GPUAvailable bool   `json:"gpuAvailable" yaml:"gpuAvailable"`
	GPUVendor    string `json:"gpuVendor,omitempty" yaml:"gpuVendor,omitempty"`
	GPUCount     int    `json:"gpuCount,omitempty" yaml:"gpuCount,omitempty"`

	Runtime                   string `json:"runtime" yaml:"runtime"`
	ContainerRuntimeReachable bool   `json:"containerRuntimeReachable" yaml:"containerRuntimeReachable"`
	ComposeVersion            string `json:"composeVersion,omitempty" yaml:"composeVersion,omitempty"`
	// RuntimeError says why the runtime is unusable when it is not reachable.
	RuntimeError string `json:"runtimeError,omitempty" yaml:"runtimeError,omitempty"`

	// Notes explains probes that came back negative.
	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Has reports whether the host offers feature. Unknown features are absent.
//
//	gpu            any usable GPU
//	gpu:<vendor>   a GPU from vendor (nvidia, amd)
//	runtime        the container runtime answered
//	os:<goos>      e.g. os:linux
//	arch:<goarch>  e.g. arch:arm64
func (c Capabilities) Has(feature string) bool {
	f := strings.ToLower(strings.TrimSpace(feature))
	switch {
	case f == FeatureGPU:
		return c.GPUAvailable
	case f == FeatureRuntime:
		return c.ContainerRuntimeReachable
	case strings.HasPrefix(f, prefixGPU):
		return c.GPUAvailable && c.GPUVendor == strings.TrimPrefix(f, prefixGPU)
	case strings.HasPrefix(f, prefixOS):
		return c.OS == strings.TrimPrefix(f, prefixOS)
	case strings.HasPrefix(f, prefixArch):
		return c.Arch == strings.TrimPrefix(f, prefixArch)
	}
	return false
}

// Missing returns the required features the host lacks, in input order.
func (c Capabilities) Missing(requires []string) []string {
	var missing []string
	for _, r := range requires {
		if !c.Has(r) {
			missing = append(missing, r)
		}
	}
	return missing
}

// KnownFeature reports whether Has understands feature. Stack validation
// uses it to reject misspelled gates.
func KnownFeature(feature string) bool {
	f := strings.ToLower(strings.TrimSpace(feature))
	if f == FeatureGPU || f == FeatureRuntime {
		return true
	}
	for _, p := range []string{prefixOS, prefixArch, prefixGPU} {
		if strings.HasPrefix(f, p) && len(f) > len(p) {
			return true
		}
	}
	return false
}

func (c Capabilities) clone() Capabilities {
	c.Notes = slices.Clone(c.Notes)
	return c
}
