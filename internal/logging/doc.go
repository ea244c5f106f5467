// Package logging assembles structured slog loggers and formatting helpers used
// across aum.
//
// It owns the console and JSON handlers, the stdout/file fan-out, and the
// context helpers that tag log lines with the batch run ID and the file being
// unlocked. A no-op logger is provided for tests and wiring code that cannot
// fail.
package logging
