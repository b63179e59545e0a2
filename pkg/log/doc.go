/*
Package log provides structured logging for turbosync using zerolog.

The package wraps zerolog to give every component a JSON-structured,
timestamped logger with a component field, plus context helpers for the
identifiers that recur throughout a sync run: integration ID, run ID, and
source file name.

	┌────────────────── LOGGING ──────────────────┐
	│  log.Init(cfg)  →  package-level Logger       │
	│       │                                       │
	│       ├─ WithComponent("scheduler")           │
	│       ├─ WithIntegration(id)                  │
	│       ├─ WithRun(id)                          │
	│       └─ WithFile(name)                       │
	│       │                                       │
	│       ▼                                       │
	│  JSON or console output, one line per event   │
	└────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	runLog := log.WithComponent("pipeline").With().
		Str("integration_id", integrationID).
		Str("run_id", runID).
		Logger()
	runLog.Info().Int("files_total", n).Msg("starting fetch stage")

Component loggers are cheap to create (zerolog clones a small struct) so
every stage of a run derives its own from the package-level Logger rather
than mutating a shared one.

# Conventions

  - Use .Err(err) for errors, never string-format the error into Msg.
  - Use structured fields (.Str, .Int, .Dur) instead of fmt.Sprintf in Msg.
  - Debug is for per-row/per-chunk detail; Info marks phase transitions and
    run-level outcomes; Warn is for recoverable per-file/per-shard failures;
    Error is reserved for failures that abort a run.
*/
package log
