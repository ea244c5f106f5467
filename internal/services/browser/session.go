package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"aum/internal/config"
	"aum/internal/fileutil"
	"aum/internal/logging"
	"aum/internal/services"
)

const (
	seleniumRemoteEnv = "SELENIUM_REMOTE_URL"
	partSuffix        = ".part"
	saveWaitLimit     = 30 * time.Second
)

// Options configures a browser session.
type Options struct {
	Mode           string
	URL            string
	Headless       bool
	ConnectTimeout time.Duration
	ActionTimeout  time.Duration
	DownloadDir    string
}

// OptionsFromConfig derives session options from configuration. downloadDir
// is the per-batch directory downloads are saved into.
func OptionsFromConfig(cfg *config.Config, downloadDir string) Options {
	return Options{
		Mode:           cfg.Hub.Mode,
		URL:            cfg.Hub.URL,
		Headless:       cfg.Hub.Headless,
		ConnectTimeout: cfg.ConnectTimeout(),
		ActionTimeout:  cfg.NavigationTimeout(),
		DownloadDir:    downloadDir,
	}
}

// Session is a single browser page driven through Playwright.
type Session struct {
	opts    Options
	logger  *slog.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page

	// mu guards page. Each page carries its own download directory.
	mu    sync.Mutex
	saves     sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Open connects to the browser described by opts and prepares one page with
// downloads enabled. Any failure is tagged services.ErrSession. In selenium
// mode SELENIUM_REMOTE_URL is set only while the driver starts.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*Session, error) {
	logger = logging.NewComponentLogger(logger, "browser")
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCanceled, "session", "open", "", err)
	}
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrSession, "session", "download dir", "", err)
	}

	runOpts := &playwright.RunOptions{
		SkipInstallBrowsers: opts.Mode != config.HubModeLocal,
		Browsers:            []string{"chromium"},
		Verbose:             false,
		Stdout:              io.Discard,
		Stderr:              io.Discard,
	}
	if opts.Mode == config.HubModeSelenium {
		// The driver reads the hub address from its environment when spawned.
		restore, err := setEnvTemporarily(seleniumRemoteEnv, opts.URL)
		if err != nil {
			return nil, services.Wrap(services.ErrSession, "session", "selenium env", "", err)
		}
		defer restore()
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, services.Wrap(services.ErrSession, "session", "install driver", "", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, services.Wrap(services.ErrSession, "session", "start driver", "", err)
	}

	s := &Session{opts: opts, logger: logger, pw: pw}
	if err := s.connect(ctx); err != nil {
		_ = pw.Stop()
		return nil, services.Wrap(services.ErrSession, "session", "connect "+opts.Mode, opts.URL, err)
	}

	logger.Info("browser session ready",
		logging.String(logging.FieldEventType, "session_ready"),
		logging.String("mode", opts.Mode),
		logging.String("url", opts.URL),
		logging.String("download_dir", opts.DownloadDir),
	)
	return s, nil
}

func (s *Session) connect(ctx context.Context) error {
	timeout := timeoutMillis(ctx, s.opts.ConnectTimeout)
	var err error
	switch s.opts.Mode {
	case config.HubModeSelenium, config.HubModeLocal:
		s.browser, err = s.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
			Headless: playwright.Bool(s.opts.Headless),
			Timeout:  timeout,
		})
	case config.HubModePlaywright:
		s.browser, err = s.pw.Chromium.Connect(s.opts.URL, playwright.BrowserTypeConnectOptions{Timeout: timeout})
	case config.HubModeCDP:
		s.browser, err = s.pw.Chromium.ConnectOverCDP(s.opts.URL, playwright.BrowserTypeConnectOverCDPOptions{Timeout: timeout})
	default:
		return fmt.Errorf("unsupported hub mode %q", s.opts.Mode)
	}
	if err != nil {
		return err
	}

	s.context, err = s.browser.NewContext(playwright.BrowserNewContextOptions{
		AcceptDownloads: playwright.Bool(true),
	})
	if err != nil {
		_ = s.browser.Close()
		return fmt.Errorf("create context: %w", err)
	}
	s.page, err = s.newPage(s.opts.DownloadDir)
	if err != nil {
		_ = s.context.Close()
		_ = s.browser.Close()
		return err
	}
	return nil
}

// newPage opens a page whose downloads are saved into dir.
func (s *Session) newPage(dir string) (playwright.Page, error) {
	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	if s.opts.ActionTimeout > 0 {
		page.SetDefaultTimeout(float64(s.opts.ActionTimeout.Milliseconds()))
	}
	page.OnDownload(func(download playwright.Download) {
		s.saves.Add(1)
		go func() {
			defer s.saves.Done()
			s.saveDownload(download, dir)
		}()
	})
	return page, nil
}

// BeginJob replaces the session page with a fresh one whose downloads are
// saved into dir. The previous page is closed, so a download the service
// delivers late for an earlier job never reaches dir.
func (s *Session) BeginJob(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("job download dir: %w", err)
	}
	page, err := s.newPage(dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.page
	s.page = page
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Debug("previous page close failed", logging.Error(err))
		}
	}
	return nil
}

func (s *Session) currentPage() playwright.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// DownloadDir returns the batch directory job directories live in.
func (s *Session) DownloadDir() string {
	return s.opts.DownloadDir
}

// RemoteUpload reports whether files are streamed to the browser rather
// than read from a path on the browser's host.
func (s *Session) RemoteUpload() bool {
	return true
}

// Navigate loads url in the session page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.currentPage().Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMillis(ctx, s.opts.ActionTimeout),
		WaitUntil: playwright.WaitUntilStateLoad,
	})
	if err != nil {
		return deadlineAware(ctx, fmt.Errorf("navigation failed: %w", err))
	}
	return nil
}

// Upload sets path on the file input matched by selector.
func (s *Session) Upload(ctx context.Context, selector, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.currentPage().Locator(selector).SetInputFiles(path, playwright.LocatorSetInputFilesOptions{
		Timeout: timeoutMillis(ctx, s.opts.ActionTimeout),
	})
	if err != nil {
		return deadlineAware(ctx, fmt.Errorf("upload to %q failed: %w", selector, err))
	}
	return nil
}

// Click clicks the element matched by selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.currentPage().Locator(selector).Click(playwright.LocatorClickOptions{
		Timeout: timeoutMillis(ctx, s.opts.ActionTimeout),
	})
	if err != nil {
		return deadlineAware(ctx, fmt.Errorf("click %q failed: %w", selector, err))
	}
	return nil
}

// Close waits briefly for in-flight download saves, then releases the page,
// context, browser, and driver. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		done := make(chan struct{})
		go func() {
			s.saves.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(saveWaitLimit):
			logging.WarnWithContext(s.logger, "download save still running at close", "session_close_pending_save",
				logging.String(logging.FieldImpact, "a partial download may remain in the batch download directory"),
			)
		}

		var errs []error
		if page := s.currentPage(); page != nil {
			errs = append(errs, page.Close())
		}
		if s.context != nil {
			errs = append(errs, s.context.Close())
		}
		if s.browser != nil {
			errs = append(errs, s.browser.Close())
		}
		if s.pw != nil {
			errs = append(errs, s.pw.Stop())
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Debug("browser session closed", logging.Bool("clean", s.closeErr == nil))
	})
	return s.closeErr
}

func (s *Session) saveDownload(download playwright.Download, dir string) {
	name := SanitizeFilename(download.SuggestedFilename())
	partPath := filepath.Join(dir, name+partSuffix)

	if err := download.SaveAs(partPath); err != nil {
		_ = os.Remove(partPath)
		logging.WarnWithContext(s.logger, "download save failed", "download_save_failed",
			logging.String("artifact", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the job waiting for this file will time out"),
		)
		return
	}

	final, err := placeDownload(partPath, dir, name)
	if err != nil {
		_ = os.Remove(partPath)
		logging.WarnWithContext(s.logger, "download rename failed", "download_rename_failed",
			logging.String("artifact", name),
			logging.Error(err),
			logging.String(logging.FieldImpact, "the job waiting for this file will time out"),
		)
		return
	}
	s.logger.Debug("download saved", logging.String("artifact", final))
}

// placeDownload renames partPath to name inside dir, choosing "name (n).ext"
// when the name is taken.
func placeDownload(partPath, dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n < 1000; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		target := filepath.Join(dir, candidate)
		err := fileutil.RenameNoReplace(partPath, target)
		if err == nil || errors.Is(err, fileutil.ErrSourceKept) {
			return target, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %q", name)
}

// setEnvTemporarily sets key to value and returns a func restoring the
// previous value, or unsetting key when it had none.
func setEnvTemporarily(key, value string) (func(), error) {
	prev, had := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		return nil, err
	}
	return func() {
		if had {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	}, nil
}

// SanitizeFilename strips path components and characters that cannot be
// used in a file name. An empty result becomes "download".
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "download"
	}
	return name
}

// timeoutMillis returns the smaller of fallback and the time left until the
// ctx deadline, in Playwright's millisecond form. Nil means Playwright's default.
func timeoutMillis(ctx context.Context, fallback time.Duration) *float64 {
	limit := fallback
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining < 1 {
			remaining = time.Millisecond
		}
		if limit <= 0 || remaining < limit {
			limit = remaining
		}
	}
	if limit <= 0 {
		return nil
	}
	return playwright.Float(math.Ceil(float64(limit) / float64(time.Millisecond)))
}

// deadlineAware marks err as a deadline failure when ctx expired while the
// Playwright call was blocked.
func deadlineAware(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
