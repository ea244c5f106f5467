package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	for _, field := range []*string{&c.Paths.MusicDir, &c.Paths.DownloadDir, &c.Paths.StateDir, &c.Paths.LogDir} {
		*field = strings.TrimSpace(*field)
		if *field == "" {
			continue
		}
		if *field, err = expandPath(*field); err != nil {
			return fmt.Errorf("paths: %w", err)
		}
	}

	c.Hub.URL = strings.TrimSpace(c.Hub.URL)
	c.Hub.Mode = strings.ToLower(strings.TrimSpace(c.Hub.Mode))
	if c.Hub.Mode == "" {
		c.Hub.Mode = defaultHubMode
	}
	if c.Hub.ConnectTimeout == 0 {
		c.Hub.ConnectTimeout = defaultConnectTimeout
	}

	c.Service.URL = strings.TrimSpace(c.Service.URL)
	c.Service.FileInputSelector = strings.TrimSpace(c.Service.FileInputSelector)
	if c.Service.FileInputSelector == "" {
		c.Service.FileInputSelector = defaultFileInputSelector
	}
	c.Service.SubmitSelector = strings.TrimSpace(c.Service.SubmitSelector)
	c.Service.DownloadSelector = strings.TrimSpace(c.Service.DownloadSelector)
	if c.Service.NavigationTimeout == 0 {
		c.Service.NavigationTimeout = defaultNavigationTimeout
	}

	c.Suffixes.Locked = normalizeSuffixes(c.Suffixes.Locked)
	c.Suffixes.Unlocked = normalizeSuffixes(c.Suffixes.Unlocked)

	if c.Unlock.PollInterval == 0 {
		c.Unlock.PollInterval = defaultPollInterval
	}
	if c.Unlock.Timeout == 0 {
		c.Unlock.Timeout = defaultUnlockTimeout
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout == 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	return nil
}

// normalizeSuffixes trims entries, drops empties, and removes duplicates
// while keeping the first occurrence order.
func normalizeSuffixes(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
