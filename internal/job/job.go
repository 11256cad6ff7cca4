package job

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lrctoolbox/batchrender/internal/logparser"
)

// ExecutionAttempt records one fallback-chain hop for a job. Multiple
// attempts share the same job_id (Open Question c in spec.md section 9):
// the job identity never changes across a retried method.
type ExecutionAttempt struct {
	AttemptID uuid.UUID
	Method    string
	Argv      []string
	StartedAt time.Time
	ExitCode  *int
	SpawnErr  string
}

// RenderJob is one admitted unit of work: a render layer over a frame
// range, tracked through the lifecycle state machine. Every mutable
// field is guarded by mu; View() returns a consistent copy for readers.
type RenderJob struct {
	ID            string
	Layer         string
	Frames        []int
	ScenePath     string
	Renderer      string
	Method        string
	GPUID         int
	UseGPU        bool

	mu            sync.Mutex
	state         State
	tempScenePath string
	currentFrame  int
	totalFrames   int
	outputPath    string
	logs          *logRing
	exitCode      *int
	errorKind     ErrorKind
	submitTime    time.Time
	startTime     time.Time
	endTime       time.Time
	attempts      []ExecutionAttempt
}

// New constructs a job in the Queued state (spec.md's transient
// "SUBMITTED" admission check happens before a RenderJob is ever
// created — a rejected submission retains no job record).
func New(id, layer string, frames []int, scenePath, renderer, method string, gpuID int, useGPU bool, logCap int) *RenderJob {
	return &RenderJob{
		ID:          id,
		Layer:       layer,
		Frames:      frames,
		ScenePath:   scenePath,
		Renderer:    renderer,
		Method:      method,
		GPUID:       gpuID,
		UseGPU:      useGPU,
		state:       Queued,
		totalFrames: len(frames),
		logs:        newLogRing(logCap),
		submitTime:  time.Now(),
	}
}

// State returns the job's current lifecycle state.
func (j *RenderJob) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// MarkRunning transitions Queued -> Running, recording the staged scene
// path and start time. Only the scheduler calls this.
func (j *RenderJob) MarkRunning(tempScenePath string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, Running) {
		return &ErrIllegalTransition{From: j.state, To: Running}
	}
	j.state = Running
	j.tempScenePath = tempScenePath
	j.startTime = time.Now()
	return nil
}

// MarkCompleted transitions Running -> Completed. Per Open Question (b),
// success is strictly exit_code == 0; no frame-count reconciliation.
func (j *RenderJob) MarkCompleted(exitCode int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, Completed) {
		return &ErrIllegalTransition{From: j.state, To: Completed}
	}
	j.state = Completed
	j.exitCode = &exitCode
	j.endTime = time.Now()
	return nil
}

// MarkFailed transitions Queued|Running -> Failed with the given error
// kind. Queued -> Failed is the pre-spawn admission-failure path.
func (j *RenderJob) MarkFailed(exitCode *int, kind ErrorKind) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, Failed) {
		return &ErrIllegalTransition{From: j.state, To: Failed}
	}
	j.state = Failed
	j.exitCode = exitCode
	j.errorKind = kind
	j.endTime = time.Now()
	return nil
}

// MarkCancelled transitions Queued|Running -> Cancelled with
// error_kind=Cancelled.
func (j *RenderJob) MarkCancelled() error {
	return j.MarkCancelledWithKind(CancelledKind)
}

// MarkCancelledWithKind transitions Queued|Running -> Cancelled tagged
// with a caller-chosen kind. The scheduler uses this to distinguish an
// operator-requested cancel (Cancelled) from wall-clock timeout
// enforcement (Timeout), which reaches the same terminal state.
func (j *RenderJob) MarkCancelledWithKind(kind ErrorKind) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, Cancelled) {
		return &ErrIllegalTransition{From: j.state, To: Cancelled}
	}
	j.state = Cancelled
	j.errorKind = kind
	j.endTime = time.Now()
	return nil
}

// RecordAttempt appends a fallback-chain execution attempt to the job's
// history without altering its state.
func (j *RenderJob) RecordAttempt(a ExecutionAttempt) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
}

// AttemptCount returns how many execution attempts have been recorded.
func (j *RenderJob) AttemptCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.attempts)
}

// AppendLogLine pushes a raw stdout line into the bounded log ring.
func (j *RenderJob) AppendLogLine(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs.push(line)
}

// ApplyLogEvent updates progress/output-path state from a classified log
// event. FrameStart raises current_frame to at least n; FrameDone
// advances it; OutputPath overwrites the last-seen output path.
func (j *RenderJob) ApplyLogEvent(ev logparser.LogEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch ev.Kind {
	case logparser.FrameStart:
		if ev.Frame > j.currentFrame {
			j.currentFrame = ev.Frame
		}
	case logparser.FrameDone:
		if ev.Frame > j.currentFrame {
			j.currentFrame = ev.Frame
		}
	case logparser.OutputPath:
		j.outputPath = ev.Path
	}
	if j.currentFrame > j.totalFrames {
		j.currentFrame = j.totalFrames
	}
}

// Progress returns current_frame/total_frames as a percentage clamped to
// [0, 100].
func (j *RenderJob) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.totalFrames == 0 {
		return 0
	}
	pct := 100 * float64(j.currentFrame) / float64(j.totalFrames)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// TempScenePath returns the staged scene path assigned on admission, or
// "" before the job has run.
func (j *RenderJob) TempScenePath() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.tempScenePath
}

// View is a read-only, point-in-time snapshot of a RenderJob returned by
// the Scheduler's status/snapshot operations.
type View struct {
	ID            string
	Layer         string
	Frames        []int
	State         State
	CurrentFrame  int
	TotalFrames   int
	Progress      float64
	OutputPath    string
	ExitCode      *int
	ErrorKind     ErrorKind
	LogTail       []string
	SubmitTime    time.Time
	StartTime     time.Time
	EndTime       time.Time
	GPUID         int
	UseGPU        bool
	Renderer      string
	Method        string
	AttemptCount  int
}

// View takes a consistent copy of the job's mutable fields under lock.
func (j *RenderJob) View() View {
	j.mu.Lock()
	defer j.mu.Unlock()

	var progress float64
	if j.totalFrames > 0 {
		progress = 100 * float64(j.currentFrame) / float64(j.totalFrames)
		if progress > 100 {
			progress = 100
		}
	}

	return View{
		ID:           j.ID,
		Layer:        j.Layer,
		Frames:       append([]int(nil), j.Frames...),
		State:        j.state,
		CurrentFrame: j.currentFrame,
		TotalFrames:  j.totalFrames,
		Progress:     progress,
		OutputPath:   j.outputPath,
		ExitCode:     j.exitCode,
		ErrorKind:    j.errorKind,
		LogTail:      j.logs.snapshot(),
		SubmitTime:   j.submitTime,
		StartTime:    j.startTime,
		EndTime:      j.endTime,
		GPUID:        j.GPUID,
		UseGPU:       j.UseGPU,
		Renderer:     j.Renderer,
		Method:       j.Method,
		AttemptCount: len(j.attempts),
	}
}
