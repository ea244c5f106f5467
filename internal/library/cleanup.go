package library

import (
	"errors"
	"log/slog"
	"os"

	"aum/internal/logging"
)

// Removal pairs an original with the replacement that justifies deleting it.
type Removal struct {
	Original LockedFile
	Target   string
}

// CleanupResult counts the outcome of RemoveOriginals.
type CleanupResult struct {
	Removed int
	Missing int
	Kept    int
	Failed  int
}

// RemoveOriginals deletes each original whose replacement target is present.
// It never fails the batch: an already absent original is counted as missing,
// a missing target keeps the original, and delete errors are logged.
func RemoveOriginals(logger *slog.Logger, removals []Removal) CleanupResult {
	logger = logging.NewComponentLogger(logger, "cleanup")
	var result CleanupResult

	for _, removal := range removals {
		original := removal.Original
		if _, err := os.Stat(removal.Target); err != nil {
			result.Kept++
			logging.WarnWithContext(logger, "replacement missing; original kept", "cleanup_target_missing",
				logging.String(logging.FieldFile, original.Name),
				logging.String("target", removal.Target),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check whether the unlocked file was moved or deleted"),
				logging.String(logging.FieldImpact, "locked original stays in the music directory"),
			)
			continue
		}

		err := os.Remove(original.Path)
		switch {
		case err == nil:
			result.Removed++
			logger.Info("original removed",
				logging.String(logging.FieldFile, original.Name),
				logging.String(logging.FieldEventType, "original_removed"),
			)
		case errors.Is(err, os.ErrNotExist):
			result.Missing++
			logger.Debug("original already absent", logging.String(logging.FieldFile, original.Name))
		default:
			result.Failed++
			logging.WarnWithContext(logger, "original removal failed", "cleanup_remove_failed",
				logging.String(logging.FieldFile, original.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check music_dir permissions"),
				logging.String(logging.FieldImpact, "locked and unlocked copies both remain"),
			)
		}
	}
	return result
}
