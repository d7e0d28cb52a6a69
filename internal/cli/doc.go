// Package cli holds the terminal-facing helpers shared by the commands:
// flag registration, the confirmation prompt used by `clean`, and the
// spinner that follows an operation's phases.
//
// Prompts need a terminal. When stdin is not a TTY, Prompt refuses with
// ErrNotInteractive so scripts must pass --yes explicitly.
package cli
