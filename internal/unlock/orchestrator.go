package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"aum/internal/library"
	"aum/internal/logging"
	"aum/internal/services"
)

// Session is the remote browser the orchestrator drives. Implementations
// must honour ctx deadlines on every call.
type Session interface {
	// BeginJob routes every download triggered from now on into dir.
	// Downloads started by earlier jobs must not land there.
	BeginJob(ctx context.Context, dir string) error
	Navigate(ctx context.Context, url string) error
	Upload(ctx context.Context, selector, path string) error
	Click(ctx context.Context, selector string) error
	// DownloadDir is the local batch directory job directories are created in.
	DownloadDir() string
}

// Reconciler places a claimed artifact into the music library.
type Reconciler interface {
	Reconcile(ctx context.Context, original library.LockedFile, artifactPath string) (string, error)
}

// Recorder persists terminal jobs as they finish.
type Recorder interface {
	RecordJob(ctx context.Context, runID string, job Job) error
}

// Options configures an Orchestrator.
type Options struct {
	RunID             string
	ServiceURL        string
	FileInputSelector string
	SubmitSelector    string
	DownloadSelector  string
	UnlockedSuffixes  []string
	PollInterval      time.Duration
	Timeout           time.Duration
	Recorder          Recorder
}

// Orchestrator runs the per-file unlock cycle against a single session.
type Orchestrator struct {
	session    Session
	reconciler Reconciler
	opts       Options
	logger     *slog.Logger
	claims     *claimRegistry
	now        func() time.Time
}

// NewOrchestrator builds an orchestrator. The session must already be live.
func NewOrchestrator(session Session, reconciler Reconciler, opts Options, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		session:    session,
		reconciler: reconciler,
		opts:       opts,
		logger:     logging.NewComponentLogger(logger, "unlock"),
		claims:     newClaimRegistry(),
		now:        time.Now,
	}
}

// UnlockFiles processes files in order and returns one terminal job per
// file. Per-file failures are recorded and the batch continues. When ctx is
// canceled the remaining files are recorded as failed and left untouched.
func (o *Orchestrator) UnlockFiles(ctx context.Context, files []library.LockedFile) Report {
	ctx = services.WithRunID(ctx, o.opts.RunID)
	report := Report{RunID: o.opts.RunID, StartedAt: o.now(), Jobs: make([]Job, 0, len(files))}

	for idx, file := range files {
		jobCtx := services.WithJobPosition(services.WithFile(ctx, file.Name), idx+1, len(files))

		var job Job
		if err := ctx.Err(); err != nil {
			job = Job{File: file, ServiceURL: o.opts.ServiceURL, StartedAt: o.now()}
			job.finish(services.Wrap(services.ErrCanceled, "orchestrate", "dispatch", "batch canceled before submission", err), o.now())
		} else {
			job = o.unlockOne(jobCtx, file, JobDir(o.session.DownloadDir(), idx+1))
		}
		o.logOutcome(jobCtx, job)
		o.record(jobCtx, job)
		report.Jobs = append(report.Jobs, job)
	}

	report.FinishedAt = o.now()
	return report
}

// JobDir is the download directory of the job at position (1-based) inside
// the batch directory root.
func JobDir(root string, position int) string {
	return filepath.Join(root, fmt.Sprintf("job-%03d", position))
}

func (o *Orchestrator) unlockOne(ctx context.Context, file library.LockedFile, downloadDir string) Job {
	logger := logging.WithContext(ctx, o.logger)
	start := o.now()
	job := Job{File: file, ServiceURL: o.opts.ServiceURL, StartedAt: start, State: StatePending}
	deadline := start.Add(o.opts.Timeout)

	stepCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		job.finish(services.Wrap(services.ErrTransient, "completion", "job dir", "", err), o.now())
		return job
	}
	// Only an empty directory is removed; anything left behind stays for inspection.
	defer func() { _ = os.Remove(downloadDir) }()

	if err := o.session.BeginJob(stepCtx, downloadDir); err != nil {
		job.finish(classifyStepError(ctx, services.Wrap(services.ErrSubmission, "submit", "begin job", "", err)), o.now())
		return job
	}
	baseline, err := snapshotDir(downloadDir)
	if err != nil {
		job.finish(services.Wrap(services.ErrTransient, "completion", "snapshot", "", err), o.now())
		return job
	}

	logger.Debug("submitting file",
		logging.String("url", o.opts.ServiceURL),
		logging.String("download_dir", downloadDir),
		logging.Int("baseline_entries", len(baseline)),
	)
	if err := o.submit(stepCtx, file); err != nil {
		job.finish(classifyStepError(ctx, err), o.now())
		return job
	}

	watcher := newArtifactWatcher(downloadDir, o.opts.UnlockedSuffixes, baseline, start, o.claims)
	artifact, err := WaitFor(ctx, o.opts.PollInterval, deadline, watcher.poll)
	if err != nil {
		job.finish(err, o.now())
		return job
	}
	job.Artifact = artifact
	logger.Info("artifact claimed",
		logging.String(logging.FieldEventType, "artifact_claimed"),
		logging.String("artifact", artifact.Path),
		logging.Int64("size_bytes", artifact.Size),
	)

	target, err := o.reconciler.Reconcile(ctx, file, artifact.Path)
	if err != nil {
		job.finish(err, o.now())
		return job
	}
	job.Target = target
	job.finish(nil, o.now())
	return job
}

func (o *Orchestrator) submit(ctx context.Context, file library.LockedFile) error {
	if err := o.session.Navigate(ctx, o.opts.ServiceURL); err != nil {
		return services.Wrap(services.ErrSubmission, "submit", "navigate", "", err)
	}
	if err := o.session.Upload(ctx, o.opts.FileInputSelector, file.Path); err != nil {
		return services.Wrap(services.ErrSubmission, "submit", "upload", "", err)
	}
	for _, selector := range []string{o.opts.SubmitSelector, o.opts.DownloadSelector} {
		if selector == "" {
			continue
		}
		if err := o.session.Click(ctx, selector); err != nil {
			return services.Wrap(services.ErrSubmission, "submit", "click", selector, err)
		}
	}
	return nil
}

// classifyStepError turns a session step failure into a timeout when the
// job deadline expired, or a cancellation when the batch was stopped.
func classifyStepError(parent context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return services.Wrap(services.ErrCanceled, "submit", "", "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return services.Wrap(services.ErrTimeout, "submit", "", "deadline reached during submission", err)
	default:
		return err
	}
}

func (o *Orchestrator) logOutcome(ctx context.Context, job Job) {
	logger := logging.WithContext(ctx, o.logger)
	if job.State == StateSucceeded {
		logger.Info("file unlocked",
			logging.String(logging.FieldEventType, "unlock_succeeded"),
			logging.String("state", string(job.State)),
			logging.String("target", job.Target),
			logging.Duration("elapsed", job.Elapsed()),
		)
		return
	}
	logging.WarnWithContext(logger, "file not unlocked; original kept", "unlock_"+string(job.State),
		logging.String("state", string(job.State)),
		logging.String(logging.FieldReason, job.Reason()),
		logging.Error(job.Err),
		logging.Duration("elapsed", job.Elapsed()),
		logging.String(logging.FieldErrorHint, hintFor(job.Err)),
		logging.String(logging.FieldImpact, "locked file left in the music directory"),
	)
}

func (o *Orchestrator) record(ctx context.Context, job Job) {
	if o.opts.Recorder == nil {
		return
	}
	// Canceled jobs still need their history row.
	if err := o.opts.Recorder.RecordJob(context.WithoutCancel(ctx), o.opts.RunID, job); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "job history write failed", "history_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions and free space"),
			logging.String(logging.FieldImpact, "job missing from aum history"),
		)
	}
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrTimeout):
		return "raise unlock.timeout or check that the service produces a download for this format"
	case errors.Is(err, services.ErrConflict):
		return "remove or rename the existing unlocked file, then rerun"
	case errors.Is(err, services.ErrSubmission):
		return "check service.url and the page selectors"
	case errors.Is(err, services.ErrCanceled):
		return "rerun to process the remaining files"
	default:
		return "check logs for details"
	}
}
