// Package capability detects what the host can offer a stack: platform,
// GPU and container runtime.
//
// A Prober runs its queries concurrently (nvidia-smi, rocm-smi,
// "<runtime> info" and "<runtime> compose version"), each bounded by its
// own timeout. Queries are read-only and best effort; a missing tool simply
// yields a negative answer recorded in Capabilities.Notes.
//
// Units gate themselves on capability names evaluated by Capabilities.Has:
//
//	gpu, gpu:nvidia, gpu:amd, runtime, os:linux, arch:arm64
package capability
