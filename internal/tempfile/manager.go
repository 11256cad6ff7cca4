// Package tempfile generates per-job staged-scene paths, tracks created
// files, and applies retention cleanup (keep-latest-N and age-based).
package tempfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/gammazero/workerpool"

	renderctx "github.com/lrctoolbox/batchrender/internal/context"
	"github.com/lrctoolbox/batchrender/internal/metrics"
)

// Manager generates staged scene paths under a project-root-relative
// .tmp hierarchy (or a user-home fallback for unclassified scenes),
// tracks every path it hands out, and sweeps old files under a bounded
// worker pool so a burst of job completions cannot fork unbounded
// cleanup goroutines.
type Manager struct {
	projectRoot  string
	fallbackRoot string

	mu      sync.Mutex
	tracked map[string]time.Time // path -> time it was generated

	pool *workerpool.WorkerPool
}

// New builds a Manager rooted at projectRoot (the directory containing
// the "scene"/"asset" hierarchies) with a bounded cleanup worker pool.
func New(projectRoot string) *Manager {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Manager{
		projectRoot:  projectRoot,
		fallbackRoot: filepath.Join(home, "Documents", "maya_batch_tmp"),
		tracked:      make(map[string]time.Time),
		pool:         workerpool.New(2),
	}
}

// Close waits for in-flight cleanup sweeps to finish and releases the
// worker pool.
func (m *Manager) Close() {
	m.pool.StopWait()
}

// GeneratePath derives the staged temp scene path for a job and creates
// its parent directory. It does not write the scene file itself; that is
// the Host Scene Writer's job.
func (m *Manager) GeneratePath(scenePath, layer, jobID string, ctx renderctx.Context) (string, error) {
	dir := m.dirFor(ctx, layer)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating temp directory %s: %w", dir, err)
	}

	filename := m.filenameFor(scenePath, ctx, jobID)
	path := filepath.Join(dir, filename)

	m.mu.Lock()
	m.tracked[path] = time.Now()
	m.mu.Unlock()

	return path, nil
}

func (m *Manager) dirFor(ctx renderctx.Context, layer string) string {
	cleanLayer := Clean(layer)
	switch ctx.Kind {
	case renderctx.Shot:
		return filepath.Join(m.projectRoot, "scene", ".tmp",
			Clean(ctx.Episode), Clean(ctx.Sequence), Clean(ctx.Shot), Clean(ctx.Department), cleanLayer)
	case renderctx.Asset:
		return filepath.Join(m.projectRoot, "asset", ".tmp",
			Clean(ctx.Category), Clean(ctx.Subcategory), Clean(ctx.AssetName), Clean(ctx.Department), cleanLayer)
	default:
		return filepath.Join(m.fallbackRoot, cleanLayer)
	}
}

func (m *Manager) filenameFor(scenePath string, ctx renderctx.Context, jobID string) string {
	version := ExtractVersion(scenePath)
	timestamp := time.Now().Format("20060102_150405")

	prefix := ctx.Prefix()
	if prefix == "" {
		prefix = Clean(stemOf(scenePath))
	}

	parts := []string{"render", Clean(prefix)}
	if ctx.Kind != renderctx.Unclassified {
		parts = append(parts, Clean(ctx.Department))
	}
	if version != "" {
		parts = append(parts, version)
	}
	parts = append(parts, timestamp, jobID)

	name := ""
	for i, p := range parts {
		if i > 0 {
			name += "_"
		}
		name += p
	}
	return name + ".ma"
}

func stemOf(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// Untrack removes a path from the tracked set without deleting it, e.g.
// because the job already removed it itself.
func (m *Manager) Untrack(path string) {
	m.mu.Lock()
	delete(m.tracked, path)
	m.mu.Unlock()
}

// TrackedCount returns the number of paths currently tracked, for tests
// and diagnostics.
func (m *Manager) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// SweepKeepLatest posts a background job that, within dir, keeps only the
// keepLatest most recently modified render_*.ma files and deletes the
// rest. It is idempotent and logs (rather than fails on) delete errors.
func (m *Manager) SweepKeepLatest(dir string, keepLatest int) {
	m.pool.Submit(func() {
		m.sweepKeepLatest(dir, keepLatest)
	})
}

// SweepOlderThan posts a background job that deletes render_*.ma files
// under dir older than maxAge.
func (m *Manager) SweepOlderThan(dir string, maxAge time.Duration) {
	m.pool.Submit(func() {
		m.sweepOlderThan(dir, maxAge)
	})
}

func (m *Manager) sweepKeepLatest(dir string, keepLatest int) {
	files, err := findRenderFiles(dir)
	if err != nil {
		logging.Log.WithError(err).WithField("dir", dir).Warn("temp file sweep: failed to list files")
		return
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})
	if keepLatest < 0 {
		keepLatest = 0
	}
	if len(files) <= keepLatest {
		return
	}
	for _, f := range files[keepLatest:] {
		m.delete(f.path, "keep_latest")
	}
}

func (m *Manager) sweepOlderThan(dir string, maxAge time.Duration) {
	files, err := findRenderFiles(dir)
	if err != nil {
		logging.Log.WithError(err).WithField("dir", dir).Warn("temp file sweep: failed to list files")
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, f := range files {
		if f.modTime.Before(cutoff) {
			m.delete(f.path, "max_age")
		}
	}
}

func (m *Manager) delete(path, reason string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logging.Log.WithError(err).WithField("path", path).Warn("temp file sweep: delete failed")
		return
	}
	m.Untrack(path)
	metrics.RecordTempFileDeleted(reason)
}

type trackedFile struct {
	path    string
	modTime time.Time
}

func findRenderFiles(dir string) ([]trackedFile, error) {
	var out []trackedFile
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if matchesRenderFile(base) {
			out = append(out, trackedFile{path: path, modTime: info.ModTime()})
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return out, nil
}

func matchesRenderFile(name string) bool {
	return len(name) > len("render_.ma") &&
		name[:len("render_")] == "render_" &&
		filepath.Ext(name) == ".ma"
}
