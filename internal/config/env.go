package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables recognised by Load.
const (
	EnvVarEnvironment      = "AUM_ENV"
	EnvVarConfig           = "AUM_CONFIG"
	EnvVarSeleniumHub      = "AUM_SELENIUM_HUB"
	EnvVarHubMode          = "AUM_HUB_MODE"
	EnvVarUnlockServer     = "AUM_UNLOCK_SERVER"
	EnvVarMusicDir         = "AUM_MUSIC_DIR"
	EnvVarDownloadDir      = "AUM_DOWNLOAD_DIR"
	EnvVarStateDir         = "AUM_STATE_DIR"
	EnvVarLogDir           = "AUM_LOG_DIR"
	EnvVarLockedSuffixes   = "AUM_LOCKED_SUFFIXES"
	EnvVarUnlockedSuffixes = "AUM_UNLOCKED_SUFFIXES"
	EnvVarPollInterval     = "AUM_POLL_INTERVAL"
	EnvVarUnlockTimeout    = "AUM_UNLOCK_TIMEOUT"
	EnvVarLogLevel         = "AUM_LOG_LEVEL"
	EnvVarLogFormat        = "AUM_LOG_FORMAT"
	EnvVarNtfyTopic        = "AUM_NTFY_TOPIC"
)

// loadDotenv reads ".env" (tag empty) or "<tag>.env" from the working
// directory. Variables already present in the process environment win.
func loadDotenv(tag string) {
	name := ".env"
	if tag != "" {
		name = tag + ".env"
	}
	if _, err := os.Stat(name); err != nil {
		return
	}
	_ = godotenv.Load(name)
}

func (c *Config) applyEnv() error {
	strs := []struct {
		name   string
		target *string
	}{
		{EnvVarSeleniumHub, &c.Hub.URL},
		{EnvVarHubMode, &c.Hub.Mode},
		{EnvVarUnlockServer, &c.Service.URL},
		{EnvVarMusicDir, &c.Paths.MusicDir},
		{EnvVarDownloadDir, &c.Paths.DownloadDir},
		{EnvVarStateDir, &c.Paths.StateDir},
		{EnvVarLogDir, &c.Paths.LogDir},
		{EnvVarLogLevel, &c.Logging.Level},
		{EnvVarLogFormat, &c.Logging.Format},
		{EnvVarNtfyTopic, &c.Notifications.NtfyTopic},
	}
	for _, entry := range strs {
		if value, ok := os.LookupEnv(entry.name); ok {
			*entry.target = strings.TrimSpace(value)
		}
	}

	if value, ok := os.LookupEnv(EnvVarLockedSuffixes); ok {
		c.Suffixes.Locked = ParseSuffixList(value)
	}
	if value, ok := os.LookupEnv(EnvVarUnlockedSuffixes); ok {
		c.Suffixes.Unlocked = ParseSuffixList(value)
	}

	ints := []struct {
		name   string
		target *int
	}{
		{EnvVarPollInterval, &c.Unlock.PollInterval},
		{EnvVarUnlockTimeout, &c.Unlock.Timeout},
	}
	for _, entry := range ints {
		value, ok := os.LookupEnv(entry.name)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", entry.name, value)
		}
		*entry.target = parsed
	}
	return nil
}

// ParseSuffixList splits a comma, semicolon, or whitespace delimited list of
// extensions. Empty entries are dropped; case is preserved.
func ParseSuffixList(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r':
			return true
		}
		return false
	})
	return fields
}
