package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aum/internal/config"
	"aum/internal/pipeline"
	"aum/internal/services/browser"
)

type cliTestEnv struct {
	baseDir     string
	configPath  string
	musicDir    string
	downloadDir string
	stateDir    string
}

// setupCLITestEnv writes a config file into a throwaway HOME and clears any
// AUM_* variables inherited from the host.
func setupCLITestEnv(t *testing.T, hubMode, hubURL, serviceURL string) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	for _, name := range []string{
		config.EnvVarConfig, config.EnvVarSeleniumHub, config.EnvVarHubMode, config.EnvVarUnlockServer,
		config.EnvVarMusicDir, config.EnvVarDownloadDir, config.EnvVarStateDir, config.EnvVarLogDir,
		config.EnvVarLockedSuffixes, config.EnvVarUnlockedSuffixes, config.EnvVarPollInterval,
		config.EnvVarUnlockTimeout, config.EnvVarLogLevel, config.EnvVarLogFormat, config.EnvVarNtfyTopic,
	} {
		t.Setenv(name, "")
		_ = os.Unsetenv(name)
	}
	t.Setenv(config.EnvVarEnvironment, config.EnvTesting)

	env := &cliTestEnv{
		baseDir:     base,
		configPath:  filepath.Join(base, "aum.toml"),
		musicDir:    filepath.Join(base, "music"),
		downloadDir: filepath.Join(base, "downloads"),
		stateDir:    filepath.Join(base, "state"),
	}
	if err := os.MkdirAll(env.musicDir, 0o755); err != nil {
		t.Fatalf("mkdir music: %v", err)
	}

	content := fmt.Sprintf(`[paths]
music_dir = %q
download_dir = %q
state_dir = %q
log_dir = %q

[hub]
mode = %q
url = %q

[service]
url = %q

[suffixes]
locked = [".ncm"]
unlocked = [".flac"]

[unlock]
poll_interval = 1
timeout = 3

[logging]
level = "error"
`, env.musicDir, env.downloadDir, env.stateDir, filepath.Join(base, "logs"), hubMode, hubURL, serviceURL)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, ctx *commandContext, args ...string) (string, error) {
	t.Helper()
	if ctx == nil {
		ctx = newCommandContext()
	}
	cmd := buildRootCommand(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// stubSession produces an unlocked download for every upload.
type stubSession struct {
	dir     string
	current string
}

func (s *stubSession) Navigate(context.Context, string) error { return nil }
func (s *stubSession) Click(context.Context, string) error    { return nil }
func (s *stubSession) DownloadDir() string                    { return s.dir }
func (s *stubSession) RemoteUpload() bool                     { return true }
func (s *stubSession) Close() error                           { return nil }

func (s *stubSession) BeginJob(_ context.Context, dir string) error {
	s.current = dir
	return nil
}

func (s *stubSession) Upload(_ context.Context, _ string, path string) error {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return os.WriteFile(filepath.Join(s.current, stem+".flac"), []byte("flac"), 0o644)
}

func stubFactory(_ context.Context, opts browser.Options, _ *slog.Logger) (pipeline.Session, error) {
	if err := os.MkdirAll(opts.DownloadDir, 0o755); err != nil {
		return nil, err
	}
	return &stubSession{dir: opts.DownloadDir}, nil
}

func TestRunWithoutLockedFiles(t *testing.T) {
	env := setupCLITestEnv(t, config.HubModeLocal, "", "http://127.0.0.1:1/")

	out, err := runCLI(t, nil, "--config", env.configPath, "--skip-preflight")
	if err != nil {
		t.Fatalf("aum: %v", err)
	}
	requireContains(t, out, "No locked files found")
}

func TestRunCommandUnlocksAndRecordsHistory(t *testing.T) {
	env := setupCLITestEnv(t, config.HubModeLocal, "", "http://127.0.0.1:1/")
	if err := os.WriteFile(filepath.Join(env.musicDir, "song.ncm"), []byte("locked"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx := newCommandContext()
	ctx.openSession = stubFactory
	out, err := runCLI(t, ctx, "run", "--config", env.configPath, "--skip-preflight")
	if err != nil {
		t.Fatalf("aum run: %v", err)
	}
	requireContains(t, out, "song.ncm")
	requireContains(t, out, "Unlocked 1 of 1")

	if _, err := os.Stat(filepath.Join(env.musicDir, "song.flac")); err != nil {
		t.Fatalf("expected unlocked file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.musicDir, "song.ncm")); !os.IsNotExist(err) {
		t.Fatalf("expected original removed, stat err = %v", err)
	}

	out, err = runCLI(t, nil, "history", "--config", env.configPath)
	if err != nil {
		t.Fatalf("aum history: %v", err)
	}
	requireContains(t, out, "completed")
}

func TestHistoryEmptyAndUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t, config.HubModeLocal, "", "http://127.0.0.1:1/")

	out, err := runCLI(t, nil, "history", "--config", env.configPath)
	if err != nil {
		t.Fatalf("aum history: %v", err)
	}
	requireContains(t, out, "No runs recorded")

	if _, err := runCLI(t, nil, "history", "--config", env.configPath, "--run", "missing"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestCheckCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/status") {
			_, _ = w.Write([]byte(`{"value":{"ready":true}}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, config.HubModeSelenium, srv.URL+"/wd/hub", srv.URL+"/")
	if err := os.MkdirAll(env.downloadDir, 0o755); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, nil, "check", "--config", env.configPath)
	if err != nil {
		t.Fatalf("aum check: %v\n%s", err, out)
	}
	requireContains(t, out, "Selenium hub")
	requireContains(t, out, "All checks passed")
}

func TestCheckCommandFailsWhenServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	env := setupCLITestEnv(t, config.HubModeLocal, "", srv.URL)
	if err := os.MkdirAll(env.downloadDir, 0o755); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, nil, "check", "--config", env.configPath)
	if err == nil {
		t.Fatal("expected check failure")
	}
	requireContains(t, out, "page returned 503")
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t, config.HubModeLocal, "", "http://127.0.0.1:1/")

	target := filepath.Join(env.baseDir, "generated", "config.toml")
	out, err := runCLI(t, nil, "config", "init", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, err := runCLI(t, nil, "config", "init", target); err == nil {
		t.Fatal("expected refusal to overwrite without --overwrite")
	}

	out, err = runCLI(t, nil, "config", "show", "--config", env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# environment: testing")
	requireContains(t, out, env.musicDir)
	requireContains(t, out, "local")
}

func TestEnvFlagSelectsEnvironment(t *testing.T) {
	env := setupCLITestEnv(t, config.HubModeLocal, "", "http://127.0.0.1:1/")

	out, err := runCLI(t, nil, "--env", "development", "config", "show", "--config", env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "# environment: development")
}
