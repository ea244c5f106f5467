package pipeline_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/flock"

	"aum/internal/config"
	"aum/internal/history"
	"aum/internal/notifications"
	"aum/internal/pipeline"
	"aum/internal/services"
	"aum/internal/services/browser"
	"aum/internal/testsupport"
	"aum/internal/unlock"
)

// fakeService stands in for the browser plus the unlock web page: uploading
// a locked file makes an unlocked download appear, unless the stem is listed
// in stall.
type fakeService struct {
	mu          sync.Mutex
	downloadDir string
	current     string
	stall       map[string]bool
	remote      bool
	uploads     []string
	closed      bool
}

func (f *fakeService) Navigate(ctx context.Context, _ string) error { return ctx.Err() }

func (f *fakeService) Upload(_ context.Context, _ string, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, filepath.Base(path))
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if f.stall[stem] {
		return nil
	}
	return os.WriteFile(filepath.Join(f.current, stem+".flac"), []byte("unlocked:"+stem), 0o644)
}

func (f *fakeService) BeginJob(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = dir
	return nil
}

func (f *fakeService) Click(context.Context, string) error { return nil }

func (f *fakeService) DownloadDir() string { return f.downloadDir }

func (f *fakeService) RemoteUpload() bool { return f.remote }

func (f *fakeService) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeService) factory() pipeline.SessionFactory {
	return func(_ context.Context, opts browser.Options, _ *slog.Logger) (pipeline.Session, error) {
		if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
			return nil, err
		}
		f.downloadDir = opts.DownloadDir
		return f, nil
	}
}

type recordingNotifier struct {
	batches []notifications.BatchSummary
	errors  []string
}

func (n *recordingNotifier) NotifyBatchCompleted(_ context.Context, summary notifications.BatchSummary) error {
	n.batches = append(n.batches, summary)
	return nil
}

func (n *recordingNotifier) NotifyError(_ context.Context, err error, label string) error {
	n.errors = append(n.errors, label+": "+err.Error())
	return nil
}

func (n *recordingNotifier) TestNotification(context.Context) error { return nil }

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Unlock.PollInterval = 1
	cfg.Unlock.Timeout = 3
	return cfg
}

func runOptions(svc *fakeService, notifier *recordingNotifier) pipeline.Options {
	return pipeline.Options{
		OpenSession:   svc.factory(),
		Notifier:      notifier,
		SkipPreflight: true,
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestRunUnlocksAndRemovesOriginals(t *testing.T) {
	cfg := newConfig(t)
	music := cfg.Paths.MusicDir
	testsupport.WriteFile(t, filepath.Join(music, "a.ncm"), 64)
	testsupport.WriteFile(t, filepath.Join(music, "b.qmcflac"), 64)
	testsupport.WriteFile(t, filepath.Join(music, "cover.jpg"), 64)

	svc := &fakeService{remote: true}
	notifier := &recordingNotifier{}
	result, err := pipeline.Run(context.Background(), cfg, runOptions(svc, notifier))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	succeeded, failed, timedOut := result.Report.Counts()
	if succeeded != 2 || failed != 0 || timedOut != 0 {
		t.Fatalf("counts = %d/%d/%d, want 2/0/0", succeeded, failed, timedOut)
	}
	if got := strings.Join(svc.uploads, ","); got != "a.ncm,b.qmcflac" {
		t.Fatalf("uploads = %q", got)
	}
	for _, name := range []string{"a.flac", "b.flac", "cover.jpg"} {
		if !exists(filepath.Join(music, name)) {
			t.Fatalf("expected %s in music dir", name)
		}
	}
	for _, name := range []string{"a.ncm", "b.qmcflac"} {
		if exists(filepath.Join(music, name)) {
			t.Fatalf("expected original %s removed", name)
		}
	}
	if !svc.closed {
		t.Fatal("expected session closed")
	}
	if result.Cleanup.Removed != 2 {
		t.Fatalf("cleanup removed = %d", result.Cleanup.Removed)
	}
	if exists(filepath.Join(cfg.Paths.DownloadDir, "aum-"+result.RunID)) {
		t.Fatal("expected empty batch download dir removed")
	}

	store := testsupport.MustOpenHistory(t, cfg)
	run, err := store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != history.RunCompleted || run.Succeeded != 2 || run.Removed != 2 {
		t.Fatalf("unexpected run record %+v", run)
	}
	jobs, err := store.Jobs(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].Position != 1 || jobs[1].Position != 2 {
		t.Fatalf("unexpected job records %+v", jobs)
	}

	if len(notifier.batches) != 1 || notifier.batches[0].Succeeded != 2 {
		t.Fatalf("unexpected notifications %+v", notifier.batches)
	}
}

func TestRunKeepsOriginalOnTimeout(t *testing.T) {
	cfg := newConfig(t)
	music := cfg.Paths.MusicDir
	testsupport.WriteFile(t, filepath.Join(music, "a.ncm"), 16)
	testsupport.WriteFile(t, filepath.Join(music, "slow.ncm"), 16)

	svc := &fakeService{remote: true, stall: map[string]bool{"slow": true}}
	notifier := &recordingNotifier{}
	result, err := pipeline.Run(context.Background(), cfg, runOptions(svc, notifier))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := result.Report.Jobs[1].State; got != unlock.StateTimedOut {
		t.Fatalf("slow job state = %s", got)
	}
	if !exists(filepath.Join(music, "slow.ncm")) {
		t.Fatal("timed out original must stay")
	}
	if exists(filepath.Join(music, "a.ncm")) || !exists(filepath.Join(music, "a.flac")) {
		t.Fatal("expected a.ncm replaced by a.flac")
	}
	if notifier.batches[0].TimedOut != 1 {
		t.Fatalf("unexpected summary %+v", notifier.batches[0])
	}
}

func TestRunWithoutLockedFilesSkipsSession(t *testing.T) {
	cfg := newConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "song.flac"), 16)

	opened := false
	opts := pipeline.Options{
		SkipPreflight: true,
		Notifier:      &recordingNotifier{},
		OpenSession: func(context.Context, browser.Options, *slog.Logger) (pipeline.Session, error) {
			opened = true
			return nil, errors.New("unexpected")
		},
	}
	result, err := pipeline.Run(context.Background(), cfg, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if opened {
		t.Fatal("session must not be opened for an empty batch")
	}
	if len(result.Files) != 0 || result.RunID != "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestRunSessionFailureIsFatal(t *testing.T) {
	cfg := newConfig(t)
	original := filepath.Join(cfg.Paths.MusicDir, "a.ncm")
	testsupport.WriteFile(t, original, 16)

	notifier := &recordingNotifier{}
	opts := pipeline.Options{
		SkipPreflight: true,
		Notifier:      notifier,
		OpenSession: func(context.Context, browser.Options, *slog.Logger) (pipeline.Session, error) {
			return nil, services.Wrap(services.ErrSession, "session", "connect", "", errors.New("hub refused"))
		},
	}
	result, err := pipeline.Run(context.Background(), cfg, opts)
	if !errors.Is(err, services.ErrSession) {
		t.Fatalf("expected session error, got %v", err)
	}
	if !exists(original) {
		t.Fatal("original must not be touched")
	}
	if len(notifier.errors) != 1 {
		t.Fatalf("expected one error notification, got %v", notifier.errors)
	}

	store := testsupport.MustOpenHistory(t, cfg)
	run, err := store.GetRun(context.Background(), result.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != history.RunFailed {
		t.Fatalf("run status = %s, want failed", run.Status)
	}
}

func TestRunRequiresSharedFilesystemWithoutRemoteUpload(t *testing.T) {
	cfg := newConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "a.ncm"), 16)

	svc := &fakeService{remote: false}
	_, err := pipeline.Run(context.Background(), cfg, runOptions(svc, &recordingNotifier{}))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !svc.closed || len(svc.uploads) != 0 {
		t.Fatalf("expected session closed before any upload (closed=%v uploads=%v)", svc.closed, svc.uploads)
	}

	cfg.Hub.SharedFilesystem = true
	svc = &fakeService{remote: false}
	if _, err := pipeline.Run(context.Background(), cfg, runOptions(svc, &recordingNotifier{})); err != nil {
		t.Fatalf("Run with shared filesystem: %v", err)
	}
	if len(svc.uploads) != 1 {
		t.Fatalf("uploads = %v", svc.uploads)
	}
}

func TestRunFailsFastWhenLocked(t *testing.T) {
	cfg := newConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "a.ncm"), 16)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	held := flock.New(cfg.LockPath())
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("TryLock: ok=%v err=%v", ok, err)
	}
	defer held.Unlock()

	svc := &fakeService{remote: true}
	_, err := pipeline.Run(context.Background(), cfg, runOptions(svc, &recordingNotifier{}))
	if !errors.Is(err, pipeline.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if len(svc.uploads) != 0 {
		t.Fatal("no file may be submitted while another batch runs")
	}
}

func TestRunCanceledBatchKeepsRemainingOriginals(t *testing.T) {
	cfg := newConfig(t)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "a.ncm"), 16)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &fakeService{remote: true}
	result, err := pipeline.Run(ctx, cfg, runOptions(svc, &recordingNotifier{}))
	if !errors.Is(err, services.ErrCanceled) {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if len(result.Report.Jobs) != 1 || result.Report.Jobs[0].State != unlock.StateFailed {
		t.Fatalf("unexpected jobs %+v", result.Report.Jobs)
	}
	if !exists(filepath.Join(cfg.Paths.MusicDir, "a.ncm")) {
		t.Fatal("original must remain after cancellation")
	}
}
