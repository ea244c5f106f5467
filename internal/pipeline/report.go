package pipeline

import (
	"fmt"
	"log/slog"

	"aum/internal/config"
	"aum/internal/library"
	"aum/internal/logging"
)

// LogConfig records which settings are set and surfaces load warnings.
// Secret-bearing settings are reported as set/unset only.
func LogConfig(logger *slog.Logger, cfg *config.Config, path string, fromFile bool) {
	if logger == nil || cfg == nil {
		return
	}
	logger = logging.NewComponentLogger(logger, "config")

	source := "defaults and environment"
	if fromFile {
		source = path
	}
	logger.Info("configuration loaded",
		logging.String(logging.FieldEventType, "config_loaded"),
		logging.String("environment", cfg.Environment),
		logging.String("source", source),
	)
	for _, setting := range cfg.Settings() {
		status := "unset"
		if setting.Set {
			status = "set"
		}
		attrs := []logging.Attr{logging.String("setting", setting.Name), logging.String("status", status)}
		if setting.Set && setting.Value != "" {
			attrs = append(attrs, logging.String("value", setting.Value))
		}
		logger.Debug("config setting", logging.Args(attrs...)...)
	}
	for _, warning := range cfg.Warnings {
		logging.WarnWithContext(logger, warning, "config_warning",
			logging.String(logging.FieldErrorHint, "fix the value in the config file or environment"),
			logging.String(logging.FieldImpact, "default value used instead"),
		)
	}
}

func logFileList(logger *slog.Logger, files []library.LockedFile) {
	logger.Info("locked files discovered",
		logging.String(logging.FieldEventType, "batch_discovered"),
		logging.Int("files", len(files)),
	)
	for i, file := range files {
		logger.Info(fmt.Sprintf("%d. %s", i+1, file.Name),
			logging.String(logging.FieldEventType, "batch_file"),
		)
	}
}

func logSummary(logger *slog.Logger, result *Result) {
	succeeded, failed, timedOut := result.Report.Counts()
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "batch_completed"),
		logging.Int("succeeded", succeeded),
		logging.Int("failed", failed),
		logging.Int("timed_out", timedOut),
		logging.Int("originals_removed", result.Cleanup.Removed),
		logging.Duration("duration", result.Duration()),
	}
	if result.Cleanup.Kept > 0 || result.Cleanup.Failed > 0 {
		attrs = append(attrs,
			logging.Int("originals_kept", result.Cleanup.Kept+result.Cleanup.Failed),
		)
	}
	logger.Info("batch finished", logging.Args(attrs...)...)
}
