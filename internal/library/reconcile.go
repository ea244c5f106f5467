package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"aum/internal/fileutil"
	"aum/internal/logging"
	"aum/internal/services"
)

var moveNoReplace = fileutil.MoveNoReplace

// Reconciler moves unlocked artifacts into the music directory.
type Reconciler struct {
	musicDir string
	logger   *slog.Logger
}

// NewReconciler creates a reconciler targeting musicDir.
func NewReconciler(musicDir string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		musicDir: musicDir,
		logger:   logging.NewComponentLogger(logger, "reconcile"),
	}
}

// TargetPath returns where the unlocked counterpart of original is placed
// for an artifact with extension ext.
func (r *Reconciler) TargetPath(original LockedFile, ext string) string {
	return filepath.Join(r.musicDir, original.Stem()+ext)
}

// Reconcile moves artifactPath to stem + artifact extension in the music
// directory. The original is never touched. On any error the artifact is
// left where it was. An existing target yields services.ErrConflict.
func (r *Reconciler) Reconcile(ctx context.Context, original LockedFile, artifactPath string) (string, error) {
	logger := logging.WithContext(ctx, r.logger)

	if err := ctx.Err(); err != nil {
		return "", services.Wrap(services.ErrCanceled, "reconcile", "start", "batch canceled", err)
	}
	ext := filepath.Ext(artifactPath)
	if ext == "" || original.Stem() == "" {
		return "", services.Wrap(services.ErrValidation, "reconcile", "target", fmt.Sprintf("cannot derive target for %q", filepath.Base(artifactPath)), nil)
	}
	info, err := os.Stat(artifactPath)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "reconcile", "stat artifact", "", err)
	}
	if !info.Mode().IsRegular() || info.Size() == 0 {
		return "", services.Wrap(services.ErrValidation, "reconcile", "stat artifact", "artifact is empty or not a regular file", nil)
	}

	target := r.TargetPath(original, ext)
	if existing, err := r.findConflict(target); err != nil {
		return "", services.Wrap(services.ErrTransient, "reconcile", "conflict check", "", err)
	} else if existing != "" {
		return "", services.Wrap(services.ErrConflict, "reconcile", "conflict check", fmt.Sprintf("%q already exists", existing), nil)
	}

	if err := moveNoReplace(artifactPath, target); errors.Is(err, fileutil.ErrSourceKept) {
		logging.WarnWithContext(logger, "artifact left in download directory after move", "reconcile_source_kept",
			logging.String("target", filepath.Base(target)),
			logging.String("artifact", artifactPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the download directory"),
			logging.String(logging.FieldImpact, "a duplicate copy remains in the download directory"),
		)
	} else if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", services.Wrap(services.ErrConflict, "reconcile", "move", fmt.Sprintf("%q already exists", filepath.Base(target)), nil)
		}
		return "", services.Wrap(services.ErrTransient, "reconcile", "move", "", err)
	}

	logger.Info("unlocked file placed",
		logging.String(logging.FieldEventType, "reconcile_complete"),
		logging.String("target", filepath.Base(target)),
		logging.Int64("size_bytes", info.Size()),
	)
	return target, nil
}

// findConflict returns the name of an existing entry equal to target, or
// equal to it after NFC normalization.
func (r *Reconciler) findConflict(target string) (string, error) {
	base := filepath.Base(target)
	if _, err := os.Lstat(target); err == nil {
		return base, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	want := norm.NFC.String(base)
	entries, err := os.ReadDir(r.musicDir)
	if err != nil {
		return "", err
	}
	for _, entry := range entries {
		if entry.Name() != base && norm.NFC.String(entry.Name()) == want {
			return entry.Name(), nil
		}
	}
	return "", nil
}
