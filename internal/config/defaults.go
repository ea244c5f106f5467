package config

import (
	"fmt"
	"slices"
	"strings"
)

// Environment tags select a variant of defaults.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
	EnvDocker      = "docker"
)

const (
	defaultStateDir             = "~/.local/share/aum"
	defaultLogDir               = "~/.local/share/aum/logs"
	defaultHubMode              = HubModeSelenium
	defaultConnectTimeout       = 60
	defaultFileInputSelector    = `input[type="file"]`
	defaultNavigationTimeout    = 60
	defaultPollInterval         = 2
	defaultUnlockTimeout        = 180
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	defaultNotifyRequestTimeout = 10
)

// Hub connection modes.
const (
	HubModeSelenium   = "selenium"
	HubModePlaywright = "playwright"
	HubModeCDP        = "cdp"
	HubModeLocal      = "local"
)

var (
	defaultLockedSuffixes   = []string{".ncm", ".qmc0", ".qmc3", ".qmcflac", ".qmcogg", ".mflac", ".mgg", ".kgm", ".kwm"}
	defaultUnlockedSuffixes = []string{".mp3", ".flac", ".ogg", ".m4a", ".wav"}
)

// Environments lists the recognised environment tags.
func Environments() []string {
	return []string{EnvDevelopment, EnvTesting, EnvProduction, EnvDocker}
}

// Default returns a Config populated with production defaults.
func Default() Config {
	return Config{
		Environment: EnvProduction,
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Hub: Hub{
			Mode:           defaultHubMode,
			Headless:       true,
			ConnectTimeout: defaultConnectTimeout,
		},
		Service: Service{
			FileInputSelector: defaultFileInputSelector,
			NavigationTimeout: defaultNavigationTimeout,
		},
		Suffixes: Suffixes{
			Locked:   slices.Clone(defaultLockedSuffixes),
			Unlocked: slices.Clone(defaultUnlockedSuffixes),
		},
		Unlock: Unlock{
			PollInterval: defaultPollInterval,
			Timeout:      defaultUnlockTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			BatchCompleted: true,
			Errors:         true,
		},
	}
}

// ForEnvironment returns the default values for the given environment tag.
// Unknown tags yield the production defaults.
func ForEnvironment(tag string) Config {
	cfg := Default()
	switch tag {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
		cfg.Hub.URL = "http://127.0.0.1:4444/wd/hub"
		cfg.Service.URL = "https://demo.unlock-music.dev/"
		cfg.Logging.Level = "debug"
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "debug"
	case EnvDocker:
		cfg.Environment = EnvDocker
		cfg.Paths.MusicDir = "/music"
		cfg.Paths.DownloadDir = "/downloads"
		cfg.Paths.StateDir = "/data"
		cfg.Paths.LogDir = "/data/logs"
		cfg.Hub.URL = "http://selenium-hub:4444/wd/hub"
		cfg.Logging.Format = "json"
	}
	return cfg
}

func resolveEnvironment(raw string) (string, string) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag == "" {
		return EnvProduction, ""
	}
	if slices.Contains(Environments(), tag) {
		return tag, ""
	}
	return EnvProduction, fmt.Sprintf("unknown %s %q, using %s", EnvVarEnvironment, raw, EnvProduction)
}
