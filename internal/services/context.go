package services

import "context"

type contextKey string

const (
	runIDKey    contextKey = "run_id"
	fileKey     contextKey = "file"
	jobIndexKey contextKey = "job_index"
	jobCountKey contextKey = "job_count"
)

// WithRunID annotates context with the batch run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the batch run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithFile annotates context with the name of the file being processed.
func WithFile(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, fileKey, name)
}

// FileFromContext returns the file name if present.
func FileFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(fileKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithJobPosition annotates context with the 1-based job index and batch size.
func WithJobPosition(ctx context.Context, index, count int) context.Context {
	if index <= 0 || count <= 0 {
		return ctx
	}
	ctx = context.WithValue(ctx, jobIndexKey, index)
	return context.WithValue(ctx, jobCountKey, count)
}

// JobPositionFromContext returns the job index and batch size if present.
func JobPositionFromContext(ctx context.Context) (int, int, bool) {
	index, ok := ctx.Value(jobIndexKey).(int)
	if !ok {
		return 0, 0, false
	}
	count, ok := ctx.Value(jobCountKey).(int)
	if !ok {
		return 0, 0, false
	}
	return index, count, true
}
