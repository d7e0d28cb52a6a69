// Package app wires the command-line flags to a ready-to-use orchestrator.
//
// NewApplication initializes logging, loads the stack definition and the
// optional template file, and constructs the orchestrator. Commands then
// call the orchestrator directly; `start --watch` goes through Watch,
// which re-applies the stack whenever the stack, env or template file
// changes and reports readiness to systemd when run as a notify service.
package app
