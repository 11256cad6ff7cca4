package orchestrator

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lrctoolbox/batchrender/internal/config"
	"github.com/lrctoolbox/batchrender/internal/job"
	"github.com/lrctoolbox/batchrender/internal/renderconfig"
	"github.com/lrctoolbox/batchrender/internal/resource"
)

type fakeHost struct{}

func (fakeHost) WriteScene(sourceScenePath, layerName, destPath string) error {
	return os.WriteFile(destPath, []byte("staged"), 0o644)
}

func testConfig() config.SchedulerConfig {
	cfg := config.Default()
	cfg.MaxConcurrentJobs = 2
	cfg.RenderMethod = "native_binary"
	cfg.Renderer = "redshift"
	cfg.UseGPU = false
	cfg.GPUMode = config.GPUModeAuto
	// /bin/true ignores every argument the command builder appends and
	// always exits 0, standing in for a renderer binary that isn't
	// actually installed on this machine.
	cfg.RenderBinaryPath = "/bin/true"
	return cfg
}

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	f := New(t.TempDir(), fakeHost{})
	if err := f.Initialize(testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return f
}

// completionWaiter collects render_completed events so tests can block
// on a specific set of job ids without sleeping arbitrarily.
type completionWaiter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	results map[string]bool
}

func newCompletionWaiter(f *Facade) *completionWaiter {
	w := &completionWaiter{results: make(map[string]bool)}
	w.cond = sync.NewCond(&w.mu)
	f.OnRenderCompleted(func(jobID string, success bool) {
		w.mu.Lock()
		w.results[jobID] = success
		w.cond.Broadcast()
		w.mu.Unlock()
	})
	return w
}

func (w *completionWaiter) wait(t *testing.T, jobID string, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)

	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		if success, ok := w.results[jobID]; ok {
			return success
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for job %s to complete", jobID)
		}
		timer := time.AfterFunc(time.Until(deadline), func() { w.cond.Broadcast() })
		w.cond.Wait()
		timer.Stop()
	}
}

func TestStartBatchExpandsOnePerLayer(t *testing.T) {
	f := newTestFacade(t)
	waiter := newCompletionWaiter(f)

	rc := renderconfig.RenderConfig{
		ScenePath: "/scenes/shot010.ma",
		Layers:    []string{"BG", "CH_hero"},
		FrameExpr: "1-5",
		Renderer:  "redshift",
	}

	ids, err := f.StartBatch(rc)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for _, id := range ids {
		assert.True(t, waiter.wait(t, id, 5*time.Second), "expected job %s to complete successfully", id)
	}
}

func TestStartBatchRejectsNoLayers(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.StartBatch(renderconfig.RenderConfig{ScenePath: "/scenes/shot.ma", FrameExpr: "1-5"})
	assert.Error(t, err, "expected error for render config with no layers")
}

func TestRerenderCompletedJobGetsNewID(t *testing.T) {
	f := newTestFacade(t)
	waiter := newCompletionWaiter(f)

	ids, err := f.StartBatch(renderconfig.RenderConfig{
		ScenePath: "/scenes/shot.ma",
		Layers:    []string{"BG"},
		FrameExpr: "1-5",
		Renderer:  "redshift",
	})
	require.NoError(t, err)
	id := ids[0]
	waiter.wait(t, id, 5*time.Second)

	newFrames := "1-10"
	newID, err := f.Rerender(id, RerenderOverrides{FrameExpr: &newFrames})
	require.NoError(t, err)
	assert.NotEqual(t, id, newID, "expected a new job id for the re-render")
	assert.True(t, waiter.wait(t, newID, 5*time.Second), "expected re-rendered job to complete successfully")

	views := f.Status()
	var found bool
	for _, v := range views {
		if v.ID == id {
			found = true
			assert.Equal(t, job.Completed, v.State, "expected original job to remain COMPLETED")
		}
	}
	assert.True(t, found, "expected original job to still be present in Status()")
}

func TestRerenderUnknownJob(t *testing.T) {
	f := newTestFacade(t)
	_, err := f.Rerender("no-such-job", RerenderOverrides{})
	assert.Error(t, err, "expected error for unknown job id")
}

func TestResourcesPublishesSystemInfo(t *testing.T) {
	f := newTestFacade(t)

	var mu sync.Mutex
	var received *resource.Snapshot
	f.OnSystemInfoUpdated(func(snap resource.Snapshot) {
		mu.Lock()
		received = &snap
		mu.Unlock()
	})

	snap := f.Resources()

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, received, "expected system_info_updated subscriber to fire")
	assert.Equal(t, snap.CPUThreads, received.CPUThreads, "expected published snapshot to match returned snapshot")
}
