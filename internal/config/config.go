package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	MusicDir    string `toml:"music_dir" yaml:"music_dir"`
	DownloadDir string `toml:"download_dir" yaml:"download_dir"`
	StateDir    string `toml:"state_dir" yaml:"state_dir"`
	LogDir      string `toml:"log_dir" yaml:"log_dir"`
}

// Hub contains configuration for the browser automation endpoint.
type Hub struct {
	URL              string `toml:"url" yaml:"url"`
	Mode             string `toml:"mode" yaml:"mode"`
	Headless         bool   `toml:"headless" yaml:"headless"`
	ConnectTimeout   int    `toml:"connect_timeout" yaml:"connect_timeout"`
	SharedFilesystem bool   `toml:"shared_filesystem" yaml:"shared_filesystem"`
}

// Service contains configuration for the unlock web service page.
type Service struct {
	URL               string `toml:"url" yaml:"url"`
	FileInputSelector string `toml:"file_input_selector" yaml:"file_input_selector"`
	SubmitSelector    string `toml:"submit_selector" yaml:"submit_selector"`
	DownloadSelector  string `toml:"download_selector" yaml:"download_selector"`
	NavigationTimeout int    `toml:"navigation_timeout" yaml:"navigation_timeout"`
}

// Suffixes contains the extension sets that discriminate locked and unlocked files.
type Suffixes struct {
	Locked   []string `toml:"locked" yaml:"locked"`
	Unlocked []string `toml:"unlocked" yaml:"unlocked"`
}

// Unlock contains completion detection timing, in seconds.
type Unlock struct {
	PollInterval int `toml:"poll_interval" yaml:"poll_interval"`
	Timeout      int `toml:"timeout" yaml:"timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format" yaml:"format"`
	Level         string `toml:"level" yaml:"level"`
	RetentionDays int    `toml:"retention_days" yaml:"retention_days"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic" yaml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout" yaml:"request_timeout"`
	BatchCompleted bool   `toml:"batch_completed" yaml:"batch_completed"`
	Errors         bool   `toml:"errors" yaml:"errors"`
}

// Config encapsulates all configuration values for aum.
//
// Configuration sections by subsystem:
//   - Paths: music library, browser download, state, and log directories
//   - Hub: automation hub address and connection mode
//   - Service: unlock web page address and page controls
//   - Suffixes: locked and unlocked file extensions
//   - Unlock: completion polling interval and ceiling
//   - Logging: log format, level, and retention
//   - Notifications: ntfy push notification settings
type Config struct {
	Environment   string        `toml:"-" yaml:"-"`
	Paths         Paths         `toml:"paths" yaml:"paths"`
	Hub           Hub           `toml:"hub" yaml:"hub"`
	Service       Service       `toml:"service" yaml:"service"`
	Suffixes      Suffixes      `toml:"suffixes" yaml:"suffixes"`
	Unlock        Unlock        `toml:"unlock" yaml:"unlock"`
	Logging       Logging       `toml:"logging" yaml:"logging"`
	Notifications Notifications `toml:"notifications" yaml:"notifications"`

	// Warnings collects non-fatal problems found while loading, for the
	// caller to log once a logger exists.
	Warnings []string `toml:"-" yaml:"-"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/aum/config.toml")
}

// Load locates, parses, and validates configuration. Dotenv files are read
// first, the environment tag selects the variant defaults, the optional file
// overrides them, and AUM_* variables override the file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	loadDotenv("")

	env, envWarning := resolveEnvironment(os.Getenv(EnvVarEnvironment))
	loadDotenv(env)

	cfg := ForEnvironment(env)
	if envWarning != "" {
		cfg.Warnings = append(cfg.Warnings, envWarning)
	}

	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv(EnvVarConfig))
	}
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if err := decodeFile(resolvedPath, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := toml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	candidates := []string{defaultPath}
	for _, name := range []string{"aum.toml", "aum.yaml", "aum.yml"} {
		projectPath, err := filepath.Abs(name)
		if err != nil {
			return "", false, err
		}
		candidates = append(candidates, projectPath)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories aum owns. The music directory is
// never created: it must already exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir, c.Paths.DownloadDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the completion detection polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Unlock.PollInterval) * time.Second
}

// UnlockTimeout returns the per-file completion ceiling.
func (c *Config) UnlockTimeout() time.Duration {
	return time.Duration(c.Unlock.Timeout) * time.Second
}

// ConnectTimeout returns the browser session establishment timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Hub.ConnectTimeout) * time.Second
}

// NavigationTimeout returns the per-action page timeout.
func (c *Config) NavigationTimeout() time.Duration {
	return time.Duration(c.Service.NavigationTimeout) * time.Second
}

// HistoryPath returns the location of the run history database.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the location of the single-run lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "aum.lock")
}

// Setting describes one resolved configuration value for startup logging.
type Setting struct {
	Name  string
	Value string
	Set   bool
}

// Settings lists the user-relevant settings and whether each one is set.
func (c *Config) Settings() []Setting {
	list := func(values []string) string { return strings.Join(values, ",") }
	return []Setting{
		{Name: "environment", Value: c.Environment, Set: c.Environment != ""},
		{Name: "hub.url", Value: c.Hub.URL, Set: c.Hub.URL != ""},
		{Name: "hub.mode", Value: c.Hub.Mode, Set: c.Hub.Mode != ""},
		{Name: "service.url", Value: c.Service.URL, Set: c.Service.URL != ""},
		{Name: "paths.music_dir", Value: c.Paths.MusicDir, Set: c.Paths.MusicDir != ""},
		{Name: "paths.download_dir", Value: c.Paths.DownloadDir, Set: c.Paths.DownloadDir != ""},
		{Name: "suffixes.locked", Value: list(c.Suffixes.Locked), Set: len(c.Suffixes.Locked) > 0},
		{Name: "suffixes.unlocked", Value: list(c.Suffixes.Unlocked), Set: len(c.Suffixes.Unlocked) > 0},
		{Name: "notifications.ntfy_topic", Value: "", Set: c.Notifications.NtfyTopic != ""},
	}
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
