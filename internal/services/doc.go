// Package services defines shared utilities consumed by the unlock pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, file names, and job positions for
//     logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent job states (failed vs timed out) and fatal classes.
//
// Use these helpers when wiring new pipeline logic so operational behaviour
// (error handling, observability) stays uniform across the batch.
package services
