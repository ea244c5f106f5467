package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration = errors.New("configuration error")
	ErrSession       = errors.New("browser session error")
	ErrSubmission    = errors.New("submission error")
	ErrTimeout       = errors.New("timeout")
	ErrConflict      = errors.New("target conflict")
	ErrValidation    = errors.New("validation error")
	ErrCanceled      = errors.New("canceled")
	ErrTransient     = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsFatal reports whether err belongs to a class that aborts the whole run
// rather than a single file.
func IsFatal(err error) bool {
	return errors.Is(err, ErrConfiguration) || errors.Is(err, ErrSession)
}

// Reason returns a short, user-facing classification for err.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return "timed out"
	case errors.Is(err, ErrConflict):
		return "target exists"
	case errors.Is(err, ErrCanceled):
		return "canceled"
	case errors.Is(err, ErrSubmission):
		return "submission failed"
	case errors.Is(err, ErrValidation):
		return "invalid artifact"
	case errors.Is(err, ErrSession):
		return "session failure"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "failed"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
