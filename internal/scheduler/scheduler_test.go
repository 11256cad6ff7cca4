package scheduler

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrctoolbox/batchrender/internal/config"
	"github.com/lrctoolbox/batchrender/internal/job"
	"github.com/lrctoolbox/batchrender/internal/process"
	"github.com/lrctoolbox/batchrender/internal/resource"
	"github.com/lrctoolbox/batchrender/internal/tempfile"
)

// fakeHost stages nothing but the scene path itself; it lets Submit
// reach a real subprocess without needing an actual scene file on disk.
type fakeHost struct {
	mu    sync.Mutex
	fail  bool
	paths []string
}

func (h *fakeHost) WriteScene(sourceScenePath, layerName, destPath string) error {
	h.mu.Lock()
	fail := h.fail
	h.mu.Unlock()
	if fail {
		return os.ErrPermission
	}
	if err := os.WriteFile(destPath, []byte("staged"), 0o644); err != nil {
		return err
	}
	h.mu.Lock()
	h.paths = append(h.paths, destPath)
	h.mu.Unlock()
	return nil
}

func (h *fakeHost) lastPath() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.paths) == 0 {
		return ""
	}
	return h.paths[len(h.paths)-1]
}

// eventRecorder collects the Facade-equivalent Hooks callbacks so tests
// can wait on terminal states without sleeping.
type eventRecorder struct {
	mu        sync.Mutex
	cond      *sync.Cond
	started   []string
	completed map[string]bool
}

func newEventRecorder() *eventRecorder {
	r := &eventRecorder{completed: make(map[string]bool)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *eventRecorder) hooks() Hooks {
	return Hooks{
		Started: func(jobID string) {
			r.mu.Lock()
			r.started = append(r.started, jobID)
			r.mu.Unlock()
		},
		Completed: func(jobID string, success bool) {
			r.mu.Lock()
			r.completed[jobID] = success
			r.cond.Broadcast()
			r.mu.Unlock()
		},
	}
}

func (r *eventRecorder) waitFor(t *testing.T, jobID string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if success, ok := r.completed[jobID]; ok {
			return success
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for job %s to complete", jobID)
		}
		timer := time.AfterFunc(remaining, func() { r.cond.Broadcast() })
		r.cond.Wait()
		timer.Stop()
		if time.Now().After(deadline) {
			if success, ok := r.completed[jobID]; ok {
				return success
			}
			t.Fatalf("timed out waiting for job %s to complete", jobID)
		}
	}
}

// writeScript creates an executable shell script under t.TempDir() that
// ignores every argument passed to it and runs body. The command
// builders always append flags/paths as trailing argv, so a script that
// ignores $@ stands in for a renderer binary of a known exit behavior.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake_render.sh")
	content := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755), "writing fake renderer script")
	return path
}

// randomLayer generates a shot-layer-like name so tests aren't all
// exercising the literal same string "BG".
func randomLayer() string {
	return gofakeit.Word() + "_" + gofakeit.Word()
}

func baseConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		MaxConcurrentJobs:     2,
		GPUMode:               config.GPUModeAuto,
		LogCapPerJob:          1000,
		KeepLatestTempFiles:   5,
		TempFileMaxAgeHours:   24,
		ProcessTimeoutSeconds: 0,
		RenderMethod:          "native_binary",
		Renderer:              "redshift",
		UseGPU:                false,
	}
}

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig, exePaths ExecutablePaths, host *fakeHost, rec *eventRecorder) *Scheduler {
	t.Helper()
	root := t.TempDir()
	tempMgr := tempfile.New(root)
	t.Cleanup(tempMgr.Close)

	s := New(cfg, exePaths, tempMgr, process.New(), host, rec.hooks())
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

// TestHappyPathSingleJob (S1): a job submitted against a native_binary
// renderer pointed at /bin/true runs and completes successfully.
func TestHappyPathSingleJob(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	cfg := baseConfig()
	s := newTestScheduler(t, cfg, ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)

	id, err := s.Submit(JobDescriptor{Layer: randomLayer(), FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
	require.NoError(t, err)

	assert.True(t, rec.waitFor(t, id, 5*time.Second), "expected job to complete successfully")

	view, ok := s.JobView(id)
	require.True(t, ok, "expected job view to exist")
	assert.Equal(t, job.Completed, view.State)
	assert.Equal(t, job.NoErrorKind, view.ErrorKind)
}

// TestSubmitRejectsEmptyLayer covers the Submit-time validation path
// modeled as RejectedError.
func TestSubmitRejectsEmptyLayer(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	s := newTestScheduler(t, baseConfig(), ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)

	_, err := s.Submit(JobDescriptor{Layer: "  ", FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
	require.Error(t, err)
	assert.IsType(t, &RejectedError{}, err)
}

// TestSubmitRejectsBadFrameExpression exercises frame.Parse's error
// surfacing straight out of Submit, before any job record is created.
func TestSubmitRejectsBadFrameExpression(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	s := newTestScheduler(t, baseConfig(), ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)

	_, err := s.Submit(JobDescriptor{Layer: "BG", FrameExpr: "not-a-range", ScenePath: "/scenes/shot.ma"})
	assert.Error(t, err, "expected error for malformed frame expression")
}

// TestCancelWhileRunning (S4): cancelling a running job terminates its
// process and reaches CANCELLED, publishing render_completed(false)
// exactly once.
func TestCancelWhileRunning(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	cfg := baseConfig()
	// A slow-running process to cancel mid-flight.
	slowScript := writeScript(t, "sleep 5")
	s := newTestScheduler(t, cfg, ExecutablePaths{RenderBinaryPath: slowScript}, host, rec)

	id, err := s.Submit(JobDescriptor{Layer: "BG", FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
	require.NoError(t, err)

	// Give the process a moment to actually start before cancelling.
	time.Sleep(200 * time.Millisecond)
	s.Cancel(id)

	assert.False(t, rec.waitFor(t, id, 20*time.Second), "expected cancelled job to report success=false")

	view, _ := s.JobView(id)
	assert.Equal(t, job.Cancelled, view.State)
	assert.Equal(t, job.CancelledKind, view.ErrorKind)
}

// TestCancelFromQueuedSkipsCompletedEvent (S4 exception): cancelling a
// job that never left the queue must not publish render_completed.
func TestCancelFromQueuedSkipsCompletedEvent(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	cfg := baseConfig()
	cfg.MaxConcurrentJobs = 1
	slowScript := writeScript(t, "sleep 5")
	s := newTestScheduler(t, cfg, ExecutablePaths{RenderBinaryPath: slowScript}, host, rec)

	// Occupy the single slot with a long sleep, then queue a second job
	// that will never be admitted.
	_, err := s.Submit(JobDescriptor{Layer: "BG", FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
	require.NoError(t, err, "submit first job")
	queuedID, err := s.Submit(JobDescriptor{Layer: "CH", FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
	require.NoError(t, err, "submit second job")

	time.Sleep(100 * time.Millisecond)
	s.Cancel(queuedID)
	time.Sleep(200 * time.Millisecond)

	rec.mu.Lock()
	_, published := rec.completed[queuedID]
	rec.mu.Unlock()
	assert.False(t, published, "expected no render_completed event for a job cancelled while queued")

	view, ok := s.JobView(queuedID)
	require.True(t, ok, "expected job view to exist")
	assert.Equal(t, job.Cancelled, view.State)
}

// TestAutoFallbackChain (S5): under method=auto, a builder failure on
// the first hop (mayapy undiscovered) advances to the next method in
// the chain instead of failing the job.
func TestAutoFallbackChain(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	cfg := baseConfig()
	cfg.RenderMethod = "auto"
	// MayapyPath left empty: host_script_custom (first in FallbackChain)
	// fails at the builder step and falls through to native_binary.
	s := newTestScheduler(t, cfg, ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)

	id, err := s.Submit(JobDescriptor{Layer: "BG", FrameExpr: "1-5", ScenePath: "/scenes/shot.ma", Method: "auto"})
	require.NoError(t, err)

	assert.True(t, rec.waitFor(t, id, 5*time.Second), "expected job to complete successfully after falling back to native_binary")
}

// TestPreSpawnFailureNeverConsumesSlot (admission invariant): a scene
// host that always fails must fail the job without ever marking it
// RUNNING or consuming a concurrency slot.
func TestPreSpawnFailureNeverConsumesSlot(t *testing.T) {
	host := &fakeHost{fail: true}
	rec := newEventRecorder()
	s := newTestScheduler(t, baseConfig(), ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)

	id, err := s.Submit(JobDescriptor{Layer: "BG", FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
	require.NoError(t, err)

	assert.False(t, rec.waitFor(t, id, 5*time.Second), "expected scene-stage failure to report success=false")

	view, _ := s.JobView(id)
	assert.Equal(t, job.Failed, view.State)
	assert.Equal(t, job.SceneStageError, view.ErrorKind)

	rec.mu.Lock()
	started := len(rec.started)
	rec.mu.Unlock()
	assert.Zero(t, started, "expected render_started never to fire")
}

// TestTempFileRetentionKeepsLatestN (S6): the cleanup sweep triggered on
// job completion removes staged scene files beyond the configured
// retention count.
func TestTempFileRetentionKeepsLatestN(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	cfg := baseConfig()
	cfg.KeepLatestTempFiles = 1
	s := newTestScheduler(t, cfg, ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)

	// One layer for every job, so all staged files share a directory.
	layer := randomLayer()
	for i := 0; i < 3; i++ {
		id, err := s.Submit(JobDescriptor{Layer: layer, FrameExpr: "1-5", ScenePath: "/scenes/shot.ma"})
		require.NoError(t, err, "submit job %d", i)
		rec.waitFor(t, id, 5*time.Second)
	}
	// Retention sweeps run on the temp manager's own bounded worker
	// pool, asynchronously from the loop goroutine; give them time to
	// finish before inspecting the directory.
	time.Sleep(500 * time.Millisecond)

	dir := filepath.Dir(host.lastPath())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err, "reading temp dir")
	assert.LessOrEqual(t, len(entries), 1, "expected retention sweep to keep at most 1 file")
}

// TestGPUAutoModeRoundRobins (S2): in auto GPU mode, successive jobs
// draw GPU ids from the configured pool in round-robin order.
func TestGPUAutoModeRoundRobins(t *testing.T) {
	host := &fakeHost{}
	rec := newEventRecorder()
	cfg := baseConfig()
	cfg.MaxConcurrentJobs = 1
	s := newTestScheduler(t, cfg, ExecutablePaths{RenderBinaryPath: "/bin/true"}, host, rec)
	s.SetGPUs([]resource.GPU{
		{DeviceID: 0, Available: true},
		{DeviceID: 1, Available: true},
	})
	time.Sleep(50 * time.Millisecond) // let evSetGPUs land before submitting

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.Submit(JobDescriptor{Layer: "BG", FrameExpr: "1-2", ScenePath: "/scenes/shot.ma"})
		require.NoError(t, err, "submit job %d", i)
		rec.waitFor(t, id, 5*time.Second)
		ids = append(ids, id)
	}

	var gpuIDs []int
	for _, id := range ids {
		view, _ := s.JobView(id)
		gpuIDs = append(gpuIDs, view.GPUID)
	}
	assert.False(t, gpuIDs[0] == gpuIDs[1] && gpuIDs[1] == gpuIDs[2], "expected GPU ids to rotate across jobs, got %v", gpuIDs)
}
