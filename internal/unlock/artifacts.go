package unlock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"aum/internal/library"
)

// mtimeSlack absorbs coarse filesystem timestamps when comparing an
// artifact's modification time against the job start.
const mtimeSlack = 2 * time.Second

// Artifact is a finished download observed in the download directory.
type Artifact struct {
	Path    string
	Ext     string
	ModTime time.Time
	Size    int64
}

// claimRegistry records artifacts already attributed to a job in this batch.
type claimRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

func newClaimRegistry() *claimRegistry {
	return &claimRegistry{paths: make(map[string]struct{})}
}

func (c *claimRegistry) claimed(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.paths[path]
	return ok
}

// claim returns false if path was already claimed.
func (c *claimRegistry) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.paths[path]; ok {
		return false
	}
	c.paths[path] = struct{}{}
	return true
}

// snapshotDir returns the names present in dir. A missing dir is empty.
func snapshotDir(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("snapshot download dir: %w", err)
	}
	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}
	return names, nil
}

// artifactWatcher finds the download produced by one job.
type artifactWatcher struct {
	dir      string
	suffixes []string
	baseline map[string]struct{}
	since    time.Time
	claims   *claimRegistry
	sizes    map[string]int64
}

func newArtifactWatcher(dir string, suffixes []string, baseline map[string]struct{}, start time.Time, claims *claimRegistry) *artifactWatcher {
	return &artifactWatcher{
		dir:      dir,
		suffixes: suffixes,
		baseline: baseline,
		since:    start.Add(-mtimeSlack),
		claims:   claims,
		sizes:    make(map[string]int64),
	}
}

// poll inspects the download directory once. It returns the most recently
// modified candidate whose size is non-zero and unchanged since the previous
// poll, claiming it so no other job can take it.
func (w *artifactWatcher) poll() (Artifact, bool, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("read download dir: %w", err)
	}

	var best Artifact
	found := false
	seen := make(map[string]int64, len(w.sizes))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !library.MatchesSuffix(name, w.suffixes) {
			continue
		}
		if _, existed := w.baseline[name]; existed {
			continue
		}
		path := filepath.Join(w.dir, name)
		if w.claims.claimed(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
			continue
		}
		if info.ModTime().Before(w.since) {
			continue
		}

		seen[path] = info.Size()
		if prev, ok := w.sizes[path]; !ok || prev != info.Size() {
			continue
		}
		candidate := Artifact{Path: path, Ext: filepath.Ext(name), ModTime: info.ModTime(), Size: info.Size()}
		if !found || candidate.ModTime.After(best.ModTime) ||
			(candidate.ModTime.Equal(best.ModTime) && candidate.Path > best.Path) {
			best = candidate
			found = true
		}
	}
	w.sizes = seen

	if !found || !w.claims.claim(best.Path) {
		return Artifact{}, false, nil
	}
	return best, true, nil
}
