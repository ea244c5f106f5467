package preflight

import (
	"context"
	"fmt"
	"strings"

	"aum/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	timeout := cfg.ConnectTimeout()
	results := []Result{
		CheckDirectoryAccess("Music directory", cfg.Paths.MusicDir),
		CheckWritableDirectory("Download directory", cfg.Paths.DownloadDir),
	}

	switch cfg.Hub.Mode {
	case config.HubModeSelenium:
		results = append(results, CheckSeleniumHub(ctx, cfg.Hub.URL, timeout))
	case config.HubModeCDP:
		results = append(results, CheckCDPEndpoint(ctx, cfg.Hub.URL, timeout))
	case config.HubModePlaywright:
		results = append(results, CheckTCPEndpoint(ctx, "Playwright server", cfg.Hub.URL, timeout))
	}

	results = append(results, CheckService(ctx, cfg.Service.URL, timeout))
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

// Summary renders failed checks as a single line for errors and notifications.
func Summary(results []Result) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}
	return strings.Join(parts, "; ")
}
