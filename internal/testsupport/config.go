package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"aum/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a validated config seeded with unique temp directories
// per test. The music and download directories exist on return.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.ForEnvironment(config.EnvTesting)
	cfgVal.Paths.MusicDir = filepath.Join(base, "music")
	cfgVal.Paths.DownloadDir = filepath.Join(base, "downloads")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Hub.URL = "http://127.0.0.1:4444/wd/hub"
	cfgVal.Service.URL = "http://127.0.0.1:8080/"
	cfgVal.Suffixes.Locked = []string{".ncm", ".qmcflac"}
	cfgVal.Suffixes.Unlocked = []string{".flac", ".mp3"}
	cfgVal.Unlock.PollInterval = 1
	cfgVal.Unlock.Timeout = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	for _, dir := range []string{cfgVal.Paths.MusicDir, cfgVal.Paths.DownloadDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := builder.cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return builder.cfg
}

// WithSuffixes overrides the locked and unlocked suffix sets.
func WithSuffixes(locked, unlocked []string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Suffixes.Locked = locked
		b.cfg.Suffixes.Unlocked = unlocked
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// WithServiceURL overrides the unlock service address.
func WithServiceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Service.URL = url
	}
}

// WithHub overrides the hub mode and address.
func WithHub(mode, url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Hub.Mode = mode
		b.cfg.Hub.URL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.MusicDir)
}
