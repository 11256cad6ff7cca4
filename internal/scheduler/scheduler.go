// Package scheduler is the heart of the orchestrator: a single-threaded
// event loop that owns the FIFO job queue, GPU slot assignment, and the
// fallback chain for method=auto, coordinating the Context Resolver,
// Temp File Manager, Command Builders, and Process Supervisor on every
// admission and exit (spec.md section 4.H).
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lrctoolbox/batchrender/internal/config"
	"github.com/lrctoolbox/batchrender/internal/frame"
	"github.com/lrctoolbox/batchrender/internal/job"
	"github.com/lrctoolbox/batchrender/internal/metrics"
	"github.com/lrctoolbox/batchrender/internal/process"
	"github.com/lrctoolbox/batchrender/internal/resource"
	"github.com/lrctoolbox/batchrender/internal/scenehost"
	"github.com/lrctoolbox/batchrender/internal/tempfile"
)

// JobDescriptor is everything Submit needs to admit one render job.
// The Facade builds one of these per layer when expanding a
// RenderConfig (spec.md section 4.I).
type JobDescriptor struct {
	Layer     string
	FrameExpr string
	ScenePath string
	Renderer  string
	Method    string
	GPUID     int
	UseGPU    bool
}

// Hooks are the callbacks the loop invokes to publish job events. They
// run on the scheduler loop goroutine and must not block (spec.md
// section 4.I) — the Facade is responsible for fast, non-blocking fan
// out to its own subscribers.
type Hooks struct {
	Started   func(jobID string)
	Progress  func(jobID string, percent float64)
	Log       func(jobID string, line string)
	Completed func(jobID string, success bool)
}

// ExecutablePaths resolves the binaries the Command Builders need.
// These are discovered once by the Resource Probe at startup; renderer
// executables don't move mid-process, so they are set at construction
// rather than routed through the event loop.
type ExecutablePaths struct {
	MayapyPath       string
	RenderBinaryPath string
	CustomScriptPath string
	BasicScriptPath  string
}

type admissionInfo struct {
	tempPath string
	gpuID    int
	useGPU   bool
}

// Scheduler is the bounded-concurrency FIFO job coordinator. All
// mutable scheduling state (queue, running set, GPU cursor) is touched
// only from the loop goroutine; external callers communicate with it
// exclusively through the events channel, so no lock is needed around
// that state (spec.md section 5, "the GPU slot set is owned exclusively
// by the scheduler loop").
type Scheduler struct {
	cfgMu sync.Mutex
	cfg   config.SchedulerConfig

	exePaths ExecutablePaths
	hooks    Hooks

	tempMgr *tempfile.Manager
	sup     *process.Supervisor
	host    scenehost.SceneHost

	events chan event
	quit   chan struct{}
	wg     sync.WaitGroup

	idSeq int64

	jobsMu   sync.RWMutex
	jobsByID map[string]*job.RenderJob

	// Loop-owned state below. Touched only inside run()/handleEvent().
	queue            []string
	running          map[string]bool
	admission        map[string]admissionInfo
	attemptMethod    map[string]string
	cancelRequested  map[string]bool
	timeoutRequested map[string]bool
	fatalSeen        map[string]bool
	gpuIDs           []int
	cursor           int
}

// New builds a Scheduler. Call SetGPUs once resources have been probed
// and Start to begin processing events.
func New(cfg config.SchedulerConfig, exePaths ExecutablePaths, tempMgr *tempfile.Manager, sup *process.Supervisor, host scenehost.SceneHost, hooks Hooks) *Scheduler {
	return &Scheduler{
		cfg:              cfg,
		exePaths:         exePaths,
		hooks:            hooks,
		tempMgr:          tempMgr,
		sup:              sup,
		host:             host,
		events:           make(chan event, 256),
		quit:             make(chan struct{}),
		jobsByID:         make(map[string]*job.RenderJob),
		running:          make(map[string]bool),
		admission:        make(map[string]admissionInfo),
		attemptMethod:    make(map[string]string),
		cancelRequested:  make(map[string]bool),
		timeoutRequested: make(map[string]bool),
		fatalSeen:        make(map[string]bool),
	}
}

// Start launches the event loop goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the loop to exit and waits for it. Running subprocesses
// are left alone; callers that want a clean shutdown should CancelAll
// first and wait for completions.
func (s *Scheduler) Stop() {
	close(s.quit)
	s.wg.Wait()
}

// Configure replaces the scheduler's tunable parameters. Mutable
// fields (max_concurrent_jobs, gpu_mode, ...) take effect immediately;
// in-flight jobs are unaffected.
func (s *Scheduler) Configure(cfg config.SchedulerConfig) {
	s.cfgMu.Lock()
	s.cfg = cfg
	s.cfgMu.Unlock()
	s.events <- event{kind: evConfigUpdated}
}

// SetMaxConcurrent adjusts the concurrency ceiling. Raising it tries to
// admit queued jobs immediately; lowering it never preempts already
// running jobs (spec.md section 4.H).
func (s *Scheduler) SetMaxConcurrent(n int) {
	s.events <- event{kind: evSetMaxConcurrent, n: n}
}

// SetGPUs updates the pool of GPU ids the auto-mode round-robin cursor
// draws from, keeping only GPUs marked Available.
func (s *Scheduler) SetGPUs(gpus []resource.GPU) {
	var ids []int
	for _, g := range gpus {
		if g.Available {
			ids = append(ids, g.DeviceID)
		}
	}
	s.events <- event{kind: evSetGPUs, gpus: ids}
}

// Submit validates and admits a new job, returning its id immediately.
// The id is a handle, not a confirmation of start (spec.md section
// 4.H, ordering guarantee iii). No job record is created for a
// rejected submission.
func (s *Scheduler) Submit(desc JobDescriptor) (string, error) {
	if trimmedEmpty(desc.Layer) {
		return "", &RejectedError{Reason: "layer name is empty"}
	}
	frames, err := frame.Parse(desc.FrameExpr)
	if err != nil {
		return "", err
	}

	method := desc.Method
	if method == "" {
		method = s.cfgSnapshot().RenderMethod
	}
	renderer := desc.Renderer
	if renderer == "" {
		renderer = s.cfgSnapshot().Renderer
	}

	id := s.nextJobID()
	rj := job.New(id, tempfile.Clean(desc.Layer), frames, desc.ScenePath, renderer, method, desc.GPUID, desc.UseGPU, s.cfgSnapshot().LogCapPerJob)

	s.jobsMu.Lock()
	s.jobsByID[id] = rj
	s.jobsMu.Unlock()

	metrics.RecordSubmission(renderer, method)
	s.events <- event{kind: evAdmission, jobID: id}
	return id, nil
}

// Cancel requests cancellation of one job. Non-blocking: a QUEUED job
// is cancelled synchronously from the loop's perspective; a RUNNING job
// only reaches CANCELLED once its process exits.
func (s *Scheduler) Cancel(jobID string) {
	s.events <- event{kind: evCancel, jobID: jobID}
}

// CancelAll requests cancellation of every non-terminal job.
func (s *Scheduler) CancelAll() {
	s.events <- event{kind: evCancelAll}
}

// Snapshot returns a point-in-time copy of every job record, oldest
// submission first.
func (s *Scheduler) Snapshot() []job.View {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	views := make([]job.View, 0, len(s.jobsByID))
	for _, rj := range s.jobsByID {
		views = append(views, rj.View())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SubmitTime.Before(views[j].SubmitTime) })
	return views
}

// JobView returns one job's current snapshot, or ok=false if unknown.
func (s *Scheduler) JobView(jobID string) (job.View, bool) {
	rj := s.getJob(jobID)
	if rj == nil {
		return job.View{}, false
	}
	return rj.View(), true
}

func (s *Scheduler) getJob(jobID string) *job.RenderJob {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	return s.jobsByID[jobID]
}

func (s *Scheduler) cfgSnapshot() config.SchedulerConfig {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

func (s *Scheduler) nextJobID() string {
	n := atomic.AddInt64(&s.idSeq, 1)
	return fmt.Sprintf("p%03d_%s", n, time.Now().Format("20060102150405"))
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		case <-ticker.C:
			s.handleTick()
		}
	}
}

func trimmedEmpty(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' {
			return false
		}
	}
	return true
}
