// Package orchestrator is the Public API Facade: a thin layer over the
// Scheduler that runs the Resource Probe, owns subscriber registration,
// and expands a multi-layer RenderConfig into per-layer jobs (spec.md
// section 4.I).
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/lrctoolbox/batchrender/internal/config"
	"github.com/lrctoolbox/batchrender/internal/frame"
	"github.com/lrctoolbox/batchrender/internal/job"
	"github.com/lrctoolbox/batchrender/internal/process"
	"github.com/lrctoolbox/batchrender/internal/renderconfig"
	"github.com/lrctoolbox/batchrender/internal/resource"
	"github.com/lrctoolbox/batchrender/internal/scenehost"
	"github.com/lrctoolbox/batchrender/internal/scheduler"
	"github.com/lrctoolbox/batchrender/internal/tempfile"
)

// RerenderOverrides carries the subset of a job's original descriptor a
// caller wants to change for a re-render. Nil fields keep the original
// value.
type RerenderOverrides struct {
	FrameExpr *string
	GPUID     *int
	UseGPU    *bool
	Method    *string
}

// Facade is the orchestrator's single entry point. The zero value is not
// usable; build one with New.
type Facade struct {
	projectRoot string
	host        scenehost.SceneHost

	initOnce sync.Once
	initErr  error

	probe   *resource.Probe
	tempMgr *tempfile.Manager
	sched   *scheduler.Scheduler

	descMu      sync.Mutex
	descriptors map[string]scheduler.JobDescriptor

	subs subscribers
}

type subscribers struct {
	mu         sync.RWMutex
	started    []func(jobID string)
	progress   []func(jobID string, percent float64)
	completed  []func(jobID string, success bool)
	log        []func(jobID, line string)
	systemInfo []func(snapshot resource.Snapshot)
}

// New builds a Facade rooted at projectRoot (the directory containing
// the "scene"/"asset" hierarchies used by the Context Resolver), using
// host to materialize staged scene files. Call Initialize before
// submitting any work.
func New(projectRoot string, host scenehost.SceneHost) *Facade {
	return &Facade{
		projectRoot: projectRoot,
		host:        host,
		descriptors: make(map[string]scheduler.JobDescriptor),
	}
}

// Initialize runs the Resource Probe, builds the Scheduler wired to the
// loaded configuration, and starts its event loop. Idempotent: later
// calls are no-ops returning the first call's result.
func (f *Facade) Initialize(cfg config.SchedulerConfig) error {
	f.initOnce.Do(func() {
		f.probe = resource.New(cfg.ReserveGPUCount, cfg.ReserveCPUThreads)
		f.tempMgr = tempfile.New(f.projectRoot)

		snapshot := f.probe.Snapshot()
		exePaths := scheduler.ExecutablePaths{
			MayapyPath:       firstNonEmpty(resource.NormalizePath(cfg.MayapyPath), snapshot.MayapyPath),
			RenderBinaryPath: firstNonEmpty(resource.NormalizePath(cfg.RenderBinaryPath), snapshot.RenderBinaryPath),
			CustomScriptPath: resource.NormalizePath(cfg.CustomScriptPath),
			BasicScriptPath:  resource.NormalizePath(cfg.BasicScriptPath),
		}

		f.sched = scheduler.New(cfg, exePaths, f.tempMgr, process.New(), f.host, scheduler.Hooks{
			Started:   f.publishStarted,
			Progress:  f.publishProgress,
			Log:       f.publishLog,
			Completed: f.publishCompleted,
		})
		f.sched.SetGPUs(snapshot.AvailableGPUs())
		f.sched.Start()
	})
	return f.initErr
}

// Configure replaces the scheduler's tunable parameters.
func (f *Facade) Configure(cfg config.SchedulerConfig) {
	f.sched.Configure(cfg)
}

// StartBatch expands a RenderConfig into one job per layer and submits
// them in order, returning their ids. In auto GPU mode the layer index
// participates in the round-robin via the scheduler's own cursor; in
// manual mode every job inherits the config's gpu_id.
func (f *Facade) StartBatch(rc renderconfig.RenderConfig) ([]string, error) {
	if len(rc.Layers) == 0 {
		return nil, &scheduler.RejectedError{Reason: "render config has no layers"}
	}

	ids := make([]string, 0, len(rc.Layers))
	for _, layer := range rc.Layers {
		desc := scheduler.JobDescriptor{
			Layer:     layer,
			FrameExpr: rc.FrameExpr,
			ScenePath: rc.ScenePath,
			Renderer:  rc.Renderer,
			Method:    rc.Method,
			GPUID:     rc.GPUID,
			UseGPU:    rc.UseGPU,
		}
		id, err := f.sched.Submit(desc)
		if err != nil {
			return ids, err
		}
		f.rememberDescriptor(id, desc)
		ids = append(ids, id)
	}
	return ids, nil
}

// StopAll cancels every non-terminal job.
func (f *Facade) StopAll() {
	f.sched.CancelAll()
}

// Cancel requests cancellation of one job.
func (f *Facade) Cancel(jobID string) {
	f.sched.Cancel(jobID)
}

// Rerender resubmits a job that has reached a terminal state, applying
// any overrides to its original descriptor. It always produces a new
// job_id; the original job's record is untouched.
func (f *Facade) Rerender(jobID string, overrides RerenderOverrides) (string, error) {
	view, ok := f.sched.JobView(jobID)
	if !ok {
		return "", fmt.Errorf("unknown job %q", jobID)
	}
	if !view.State.IsTerminal() {
		return "", fmt.Errorf("job %q is not in a terminal state (current: %s)", jobID, view.State)
	}

	f.descMu.Lock()
	desc, ok := f.descriptors[jobID]
	f.descMu.Unlock()
	if !ok {
		return "", fmt.Errorf("original descriptor for job %q is no longer available", jobID)
	}

	if overrides.FrameExpr != nil {
		if _, err := frame.Parse(*overrides.FrameExpr); err != nil {
			return "", err
		}
		desc.FrameExpr = *overrides.FrameExpr
	}
	if overrides.GPUID != nil {
		desc.GPUID = *overrides.GPUID
	}
	if overrides.UseGPU != nil {
		desc.UseGPU = *overrides.UseGPU
	}
	if overrides.Method != nil {
		desc.Method = *overrides.Method
	}

	newID, err := f.sched.Submit(desc)
	if err != nil {
		return "", err
	}
	f.rememberDescriptor(newID, desc)
	return newID, nil
}

// Status returns a point-in-time snapshot of every submitted job.
func (f *Facade) Status() []job.View {
	return f.sched.Snapshot()
}

// Resources returns a fresh hardware/executable snapshot and republishes
// it to system_info_updated subscribers.
func (f *Facade) Resources() resource.Snapshot {
	snapshot := f.probe.Snapshot()
	f.sched.SetGPUs(snapshot.AvailableGPUs())
	f.publishSystemInfo(snapshot)
	return snapshot
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func (f *Facade) rememberDescriptor(id string, desc scheduler.JobDescriptor) {
	f.descMu.Lock()
	f.descriptors[id] = desc
	f.descMu.Unlock()
}

// OnRenderStarted registers a render_started(job_id) subscriber.
func (f *Facade) OnRenderStarted(fn func(jobID string)) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	f.subs.started = append(f.subs.started, fn)
}

// OnRenderProgress registers a render_progress(job_id, percent) subscriber.
func (f *Facade) OnRenderProgress(fn func(jobID string, percent float64)) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	f.subs.progress = append(f.subs.progress, fn)
}

// OnRenderCompleted registers a render_completed(job_id, success) subscriber.
func (f *Facade) OnRenderCompleted(fn func(jobID string, success bool)) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	f.subs.completed = append(f.subs.completed, fn)
}

// OnRenderLog registers a render_log(job_id, line) subscriber.
func (f *Facade) OnRenderLog(fn func(jobID, line string)) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	f.subs.log = append(f.subs.log, fn)
}

// OnSystemInfoUpdated registers a system_info_updated(snapshot) subscriber.
func (f *Facade) OnSystemInfoUpdated(fn func(snapshot resource.Snapshot)) {
	f.subs.mu.Lock()
	defer f.subs.mu.Unlock()
	f.subs.systemInfo = append(f.subs.systemInfo, fn)
}

func (f *Facade) publishStarted(jobID string) {
	f.subs.mu.RLock()
	defer f.subs.mu.RUnlock()
	for _, fn := range f.subs.started {
		fn(jobID)
	}
}

func (f *Facade) publishProgress(jobID string, percent float64) {
	f.subs.mu.RLock()
	defer f.subs.mu.RUnlock()
	for _, fn := range f.subs.progress {
		fn(jobID, percent)
	}
}

func (f *Facade) publishCompleted(jobID string, success bool) {
	f.subs.mu.RLock()
	defer f.subs.mu.RUnlock()
	for _, fn := range f.subs.completed {
		fn(jobID, success)
	}
}

func (f *Facade) publishLog(jobID, line string) {
	f.subs.mu.RLock()
	defer f.subs.mu.RUnlock()
	for _, fn := range f.subs.log {
		fn(jobID, line)
	}
}

func (f *Facade) publishSystemInfo(snapshot resource.Snapshot) {
	f.subs.mu.RLock()
	defer f.subs.mu.RUnlock()
	for _, fn := range f.subs.systemInfo {
		fn(snapshot)
	}
}
