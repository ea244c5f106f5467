package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateHub(); err != nil {
		return err
	}
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateSuffixes(); err != nil {
		return err
	}
	if err := c.validateUnlock(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.MusicDir == "" {
		return errors.New("paths.music_dir must be set (or " + EnvVarMusicDir + ")")
	}
	if c.Paths.DownloadDir == "" {
		return errors.New("paths.download_dir must be set (or " + EnvVarDownloadDir + ")")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	info, err := os.Stat(c.Paths.MusicDir)
	if err != nil {
		return fmt.Errorf("paths.music_dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("paths.music_dir %q is not a directory", c.Paths.MusicDir)
	}
	return nil
}

func (c *Config) validateHub() error {
	switch c.Hub.Mode {
	case HubModeSelenium, HubModePlaywright, HubModeCDP:
		if c.Hub.URL == "" {
			return fmt.Errorf("hub.url must be set for mode %q (or %s)", c.Hub.Mode, EnvVarSeleniumHub)
		}
		if err := validateURL("hub.url", c.Hub.URL, "http", "https", "ws", "wss"); err != nil {
			return err
		}
	case HubModeLocal:
	default:
		return fmt.Errorf("hub.mode must be one of selenium, playwright, cdp, local (got %q)", c.Hub.Mode)
	}
	if c.Hub.ConnectTimeout <= 0 {
		return errors.New("hub.connect_timeout must be positive")
	}
	return nil
}

func (c *Config) validateService() error {
	if c.Service.URL == "" {
		return errors.New("service.url must be set (or " + EnvVarUnlockServer + ")")
	}
	if err := validateURL("service.url", c.Service.URL, "http", "https"); err != nil {
		return err
	}
	if c.Service.NavigationTimeout <= 0 {
		return errors.New("service.navigation_timeout must be positive")
	}
	return nil
}

func (c *Config) validateSuffixes() error {
	for _, group := range []struct {
		name   string
		values []string
	}{
		{"suffixes.locked", c.Suffixes.Locked},
		{"suffixes.unlocked", c.Suffixes.Unlocked},
	} {
		for _, suffix := range group.values {
			if !strings.HasPrefix(suffix, ".") || len(suffix) < 2 {
				return fmt.Errorf("%s: %q must start with '.' followed by an extension", group.name, suffix)
			}
			if strings.ContainsAny(suffix[1:], `./\`) {
				return fmt.Errorf("%s: %q must be a single extension", group.name, suffix)
			}
		}
	}
	if len(c.Suffixes.Locked) > 0 && len(c.Suffixes.Unlocked) == 0 {
		return errors.New("suffixes.unlocked must be set when suffixes.locked is set (or " + EnvVarUnlockedSuffixes + ")")
	}
	for _, locked := range c.Suffixes.Locked {
		for _, unlocked := range c.Suffixes.Unlocked {
			if locked == unlocked {
				return fmt.Errorf("suffix %q appears in both suffixes.locked and suffixes.unlocked", locked)
			}
		}
	}
	return nil
}

func (c *Config) validateUnlock() error {
	if c.Unlock.PollInterval <= 0 {
		return errors.New("unlock.poll_interval must be positive")
	}
	if c.Unlock.Timeout <= 0 {
		return errors.New("unlock.timeout must be positive")
	}
	if c.Unlock.Timeout < c.Unlock.PollInterval {
		return errors.New("unlock.timeout must not be shorter than unlock.poll_interval")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s: %q has no host", field, raw)
	}
	for _, scheme := range schemes {
		if strings.EqualFold(parsed.Scheme, scheme) {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported scheme %q", field, parsed.Scheme)
}
