package logging

import (
	"context"
	"log/slog"

	"aum/internal/services"
)

const (
	// FieldComponent names the subsystem emitting the log line.
	FieldComponent = "component"
	// FieldRunID identifies one batch run.
	FieldRunID = "run_id"
	// FieldFile is the name of the locked file being unlocked.
	FieldFile = "file"
	// FieldJobIndex is the 1-based position of the file in the batch.
	FieldJobIndex = "job_index"
	// FieldJobCount is the number of files in the batch.
	FieldJobCount = "job_count"
	// FieldEventType classifies the event for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to check next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags anomalies that should stand out.
	FieldAlert = "alert"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.RunIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldRunID, id))
	}
	if name, ok := services.FileFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFile, name))
	}
	if index, count, ok := services.JobPositionFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldJobIndex, index), slog.Int(FieldJobCount, count))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
