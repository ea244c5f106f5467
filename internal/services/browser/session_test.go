package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aum/internal/config"
	"aum/internal/testsupport"
)

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"song.flac":            "song.flac",
		"../../etc/passwd":     "passwd",
		"dir\\evil.mp3":        "evil.mp3",
		"  .hidden.flac ":      "hidden.flac",
		"":                     "download",
		"bad\x00name\x1f.flac": "badname.flac",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPlaceDownloadUniquifies(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "song.flac"), []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}
	part := filepath.Join(dir, "song.flac.part")
	if err := os.WriteFile(part, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := placeDownload(part, dir, "song.flac")
	if err != nil {
		t.Fatalf("placeDownload: %v", err)
	}
	if filepath.Base(got) != "song (1).flac" {
		t.Fatalf("unexpected name %q", got)
	}
	if content, _ := os.ReadFile(filepath.Join(dir, "song.flac")); string(content) != "first" {
		t.Fatalf("existing download overwritten: %q", content)
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Fatalf("expected part file renamed, stat err=%v", err)
	}
}

func TestTimeoutMillis(t *testing.T) {
	if got := timeoutMillis(context.Background(), 0); got != nil {
		t.Fatalf("expected nil timeout, got %v", *got)
	}
	if got := timeoutMillis(context.Background(), 2*time.Second); got == nil || *got != 2000 {
		t.Fatalf("expected 2000ms, got %v", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	got := timeoutMillis(ctx, 10*time.Second)
	if got == nil || *got > 500 || *got <= 0 {
		t.Fatalf("expected deadline-capped timeout, got %v", got)
	}
}

func TestDeadlineAware(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	err := deadlineAware(ctx, os.ErrClosed)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, os.ErrClosed) {
		t.Fatalf("expected both errors wrapped, got %v", err)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHub(config.HubModeCDP, "http://127.0.0.1:9222"))
	cfg.Hub.ConnectTimeout = 15
	cfg.Service.NavigationTimeout = 20

	dir := filepath.Join(cfg.Paths.DownloadDir, "aum-run")
	opts := OptionsFromConfig(cfg, dir)
	if opts.Mode != config.HubModeCDP || opts.URL != "http://127.0.0.1:9222" {
		t.Fatalf("unexpected endpoint %+v", opts)
	}
	if opts.ConnectTimeout != 15*time.Second || opts.ActionTimeout != 20*time.Second {
		t.Fatalf("unexpected timeouts %+v", opts)
	}
	if opts.DownloadDir != dir || !opts.Headless {
		t.Fatalf("unexpected download settings %+v", opts)
	}
}

func TestSetEnvTemporarilyRestores(t *testing.T) {
	t.Setenv(seleniumRemoteEnv, "http://old-hub:4444")
	restore, err := setEnvTemporarily(seleniumRemoteEnv, "http://hub:4444")
	if err != nil {
		t.Fatalf("setEnvTemporarily: %v", err)
	}
	if got := os.Getenv(seleniumRemoteEnv); got != "http://hub:4444" {
		t.Fatalf("env during driver start = %q", got)
	}
	restore()
	if got := os.Getenv(seleniumRemoteEnv); got != "http://old-hub:4444" {
		t.Fatalf("env after restore = %q", got)
	}

	os.Unsetenv(seleniumRemoteEnv)
	restore, err = setEnvTemporarily(seleniumRemoteEnv, "http://hub:4444")
	if err != nil {
		t.Fatalf("setEnvTemporarily: %v", err)
	}
	restore()
	if _, ok := os.LookupEnv(seleniumRemoteEnv); ok {
		t.Fatalf("expected %s unset after restore", seleniumRemoteEnv)
	}
}
