// Package logging provides subsystem-tagged structured logging for devstack.
//
// It is a thin layer over log/slog. Every entry carries a "subsystem"
// attribute naming the component that produced it, so output from
// concurrent stages can be filtered with grep or a log aggregator.
//
// # Usage
//
//	logging.Init(logging.LevelInfo, logging.FormatText, os.Stderr)
//
//	logging.Info("Resolver", "Loaded %d keys from %s", n, path)
//	logging.Warn("Capability", "GPU probe failed: %v", err)
//	logging.Error("Scheduler", err, "Unit %s failed", name)
//
// Loggers bound to an orchestration run carry the run identifier:
//
//	log := logging.For("Scheduler").With("run", runID)
//	log.Info("Starting stage %d", idx)
//
// # Output
//
// Logs go to stderr by default. Reports and tables are written to stdout
// by the CLI, so `devstack status -o json | jq` keeps working with logging
// enabled.
//
// Before Init is called only warnings and errors are emitted, through the
// default slog logger.
package logging
