package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"aum/internal/config"
	"aum/internal/history"
	"aum/internal/library"
	"aum/internal/logging"
	"aum/internal/notifications"
	"aum/internal/preflight"
	"aum/internal/services"
	"aum/internal/services/browser"
	"aum/internal/unlock"
)

// historyKeep bounds the number of runs kept in the history database.
const historyKeep = 500

// ErrAlreadyRunning is returned when another process holds the run lock.
var ErrAlreadyRunning = errors.New("another aum batch is already running")

// Session is the browser surface the runner needs beyond what the
// orchestrator drives.
type Session interface {
	unlock.Session
	// RemoteUpload reports whether Upload transfers file contents to the
	// browser host, so the hub does not need to see the music directory.
	RemoteUpload() bool
	Close() error
}

// SessionFactory opens the single browser session of a batch.
type SessionFactory func(ctx context.Context, opts browser.Options, logger *slog.Logger) (Session, error)

// OpenBrowser is the production SessionFactory.
func OpenBrowser(ctx context.Context, opts browser.Options, logger *slog.Logger) (Session, error) {
	session, err := browser.Open(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Options configures Run.
type Options struct {
	Logger        *slog.Logger
	OpenSession   SessionFactory
	Notifier      notifications.Service
	SkipPreflight bool
}

// Result describes a finished batch.
type Result struct {
	RunID     string
	Files     []library.LockedFile
	Report    unlock.Report
	Cleanup   library.CleanupResult
	Preflight []preflight.Result
}

// Duration is the wall time of the orchestrated part of the batch.
func (r *Result) Duration() time.Duration {
	if r == nil || r.Report.StartedAt.IsZero() || r.Report.FinishedAt.IsZero() {
		return 0
	}
	return r.Report.FinishedAt.Sub(r.Report.StartedAt)
}

// Run executes one batch. Per-file failures are reported in the result and do
// not produce an error; configuration, lock, preflight, history and session
// failures abort before any file is submitted or deleted. A canceled batch
// returns both the partial result and an ErrCanceled error.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "run", "config is required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "pipeline")
	openSession := opts.OpenSession
	if openSession == nil {
		openSession = OpenBrowser
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	files, err := library.Discover(cfg.Paths.MusicDir, cfg.Suffixes.Locked)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discover", "scan music_dir", cfg.Paths.MusicDir, err)
	}
	result := &Result{Files: files}
	if len(files) == 0 {
		logger.Info("no locked files found; nothing to do",
			logging.String(logging.FieldEventType, "batch_empty"),
			logging.String("music_dir", cfg.Paths.MusicDir),
		)
		return result, nil
	}
	logFileList(logger, files)

	if err := cfg.EnsureDirectories(); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "pipeline", "directories", "", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "*.log", Exclude: []string{logging.LogFileName}},
	)

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return result, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return result, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release run lock", logging.Error(err))
		}
	}()

	if !opts.SkipPreflight {
		result.Preflight = preflight.RunAll(ctx, cfg)
		if failed := preflight.Failed(result.Preflight); len(failed) > 0 {
			err := services.Wrap(services.ErrConfiguration, "preflight", "", preflight.Summary(failed), nil)
			reportFatal(ctx, logger, notifier, err, "preflight")
			return result, err
		}
	}

	store, err := history.Open(cfg)
	if err != nil {
		return result, services.Wrap(services.ErrConfiguration, "history", "open", cfg.HistoryPath(), err)
	}
	defer store.Close()

	runID := history.NewRunID()
	result.RunID = runID
	ctx = services.WithRunID(ctx, runID)
	logger = logger.With(logging.String(logging.FieldRunID, runID))
	startedAt := time.Now()
	if err := store.StartRun(context.WithoutCancel(ctx), runID, cfg.Environment, len(files), startedAt); err != nil {
		return result, services.Wrap(services.ErrConfiguration, "history", "start run", "", err)
	}

	downloadDir := filepath.Join(cfg.Paths.DownloadDir, "aum-"+runID)
	session, err := openSession(ctx, browser.OptionsFromConfig(cfg, downloadDir), logger)
	if err == nil && !session.RemoteUpload() && !cfg.Hub.SharedFilesystem {
		_ = session.Close()
		err = services.Wrap(services.ErrConfiguration, "session", "upload", "browser cannot receive local files; set hub.shared_filesystem when the hub mounts music_dir", nil)
	}
	if err != nil {
		result.Report = unlock.Report{RunID: runID, StartedAt: startedAt, FinishedAt: time.Now()}
		finishRun(ctx, logger, store, result.Report, 0, err)
		reportFatal(ctx, logger, notifier, err, "browser session")
		removeIfEmpty(downloadDir)
		return result, err
	}

	orchestrator := unlock.NewOrchestrator(session, library.NewReconciler(cfg.Paths.MusicDir, logger), unlock.Options{
		RunID:             runID,
		ServiceURL:        cfg.Service.URL,
		FileInputSelector: cfg.Service.FileInputSelector,
		SubmitSelector:    cfg.Service.SubmitSelector,
		DownloadSelector:  cfg.Service.DownloadSelector,
		UnlockedSuffixes:  cfg.Suffixes.Unlocked,
		PollInterval:      cfg.PollInterval(),
		Timeout:           cfg.UnlockTimeout(),
		Recorder:          store,
	}, logger)
	result.Report = orchestrator.UnlockFiles(ctx, files)

	if err := session.Close(); err != nil {
		logging.WarnWithContext(logger, "browser session close failed", "session_close_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the hub for an orphaned browser session"),
			logging.String(logging.FieldImpact, "hub slot may stay busy until its idle timeout"),
		)
	}
	removeIfEmpty(downloadDir)

	result.Cleanup = library.RemoveOriginals(logger, result.Report.Removals())

	var runErr error
	if err := ctx.Err(); err != nil {
		runErr = services.Wrap(services.ErrCanceled, "pipeline", "batch", "interrupted", err)
	}
	finishRun(ctx, logger, store, result.Report, result.Cleanup.Removed, runErr)
	logSummary(logger, result)

	succeeded, failed, timedOut := result.Report.Counts()
	notifyCtx := context.WithoutCancel(ctx)
	if err := notifier.NotifyBatchCompleted(notifyCtx, notifications.BatchSummary{
		Succeeded: succeeded,
		Failed:    failed,
		TimedOut:  timedOut,
		Removed:   result.Cleanup.Removed,
		Duration:  result.Duration(),
	}); err != nil {
		logger.Warn("batch notification failed", logging.Error(err))
	}
	return result, runErr
}

func finishRun(ctx context.Context, logger *slog.Logger, store *history.Store, report unlock.Report, removed int, runErr error) {
	ctx = context.WithoutCancel(ctx)
	if err := store.FinishRun(ctx, report, removed, runErr); err != nil {
		logging.WarnWithContext(logger, "run history update failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
			logging.String(logging.FieldImpact, "run shown as running in aum history"),
		)
	}
	if pruned, err := store.Prune(ctx, historyKeep); err != nil {
		logger.Warn("history prune failed", logging.Error(err))
	} else if pruned > 0 {
		logger.Debug("history pruned", logging.Int64("runs", pruned))
	}
}

func reportFatal(ctx context.Context, logger *slog.Logger, notifier notifications.Service, err error, label string) {
	logging.ErrorWithContext(logger, "batch aborted", "batch_aborted",
		logging.Error(err),
		logging.String("stage", label),
		logging.String(logging.FieldImpact, "no files were submitted or deleted"),
	)
	if notifyErr := notifier.NotifyError(context.WithoutCancel(ctx), err, label); notifyErr != nil {
		logger.Warn("error notification failed", logging.Error(notifyErr))
	}
}

// removeIfEmpty drops the per-batch download directory, and any empty job
// directories in it, once no downloads are left.
func removeIfEmpty(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}
	_ = os.Remove(dir)
}
