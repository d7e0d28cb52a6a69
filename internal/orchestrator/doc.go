// Package orchestrator is the single entry point the CLI uses to act on a
// stack.
//
// Every operation walks the same phases:
//
//	Idle -> Resolving -> Validating -> Scheduling -> Reporting -> Terminal
//
// Resolving merges the configuration layers and probes the host.
// Validating builds the dependency graph from the stack. A configuration
// or graph error moves straight to Terminal, so nothing is started on the
// container runtime unless both succeed. Operations that do not start
// units (status, logs, plan) go from Validating to Reporting.
//
// Install, Start and Update hand the validated graph to the stage
// scheduler and return its Report. Stop walks the stages in reverse.
// Clean asks a Confirmer before removing containers, volumes and data
// directories.
//
// Phase changes are published on channels returned by
// SubscribeToPhaseChanges; the CLI uses them to drive its progress spinner.
package orchestrator
