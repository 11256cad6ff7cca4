package scheduler

import (
	"strings"
	"time"

	"github.com/lrctoolbox/batchrender/internal/job"
	"github.com/lrctoolbox/batchrender/internal/logparser"
	"github.com/lrctoolbox/batchrender/internal/metrics"
	"github.com/lrctoolbox/batchrender/internal/process"
)

// handleCancel processes one cancel request. A QUEUED job is the one
// documented exception to the finishJob/render_completed path (spec.md
// section 8 invariant 4): it is removed from the queue and marked
// CANCELLED directly, with no render_completed ever published for it.
// A RUNNING job is only asked to terminate; it reaches CANCELLED once
// its process actually exits and handleExit observes the request.
func (s *Scheduler) handleCancel(jobID string) {
	rj := s.getJob(jobID)
	if rj == nil {
		return
	}

	switch rj.State() {
	case job.Queued:
		s.removeFromQueue(jobID)
		if err := rj.MarkCancelled(); err != nil {
			return
		}
		s.cleanupJob(rj)
	case job.Running:
		s.cancelRequested[jobID] = true
		go s.sup.Terminate(jobID)
	}
}

func (s *Scheduler) removeFromQueue(jobID string) {
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// handleCancelAll requests cancellation of every job not already in a
// terminal state.
func (s *Scheduler) handleCancelAll() {
	s.jobsMu.RLock()
	ids := make([]string, 0, len(s.jobsByID))
	for id, rj := range s.jobsByID {
		switch rj.State() {
		case job.Queued, job.Running:
			ids = append(ids, id)
		}
	}
	s.jobsMu.RUnlock()

	for _, id := range ids {
		s.handleCancel(id)
	}
}

// handleLog classifies one stdout line against the job's renderer,
// folds it into progress/output-path state, appends it to the bounded
// log ring, and republishes render_log/render_progress. A recognized
// fatal error phrase is remembered so handleExit can tag a subsequent
// zero exit code as a renderer failure rather than a false success
// (spec.md section 7, RendererFatal).
func (s *Scheduler) handleLog(jobID, line string) {
	rj := s.getJob(jobID)
	if rj == nil {
		return
	}

	rj.AppendLogLine(line)
	if s.hooks.Log != nil {
		s.hooks.Log(jobID, line)
	}

	ev := logparser.Classify(rj.Renderer, line)
	rj.ApplyLogEvent(ev)
	metrics.RecordLogLine(rj.Renderer, logEventKindName(ev.Kind))

	switch ev.Kind {
	case logparser.FrameStart, logparser.FrameDone:
		if s.hooks.Progress != nil {
			s.hooks.Progress(jobID, rj.Progress())
		}
	case logparser.Error:
		if isFatalErrorLine(line) {
			s.fatalSeen[jobID] = true
		}
	}
}

func logEventKindName(k logparser.EventKind) string {
	switch k {
	case logparser.FrameStart:
		return "frame_start"
	case logparser.FrameDone:
		return "frame_done"
	case logparser.OutputPath:
		return "output_path"
	case logparser.Warning:
		return "warning"
	case logparser.Error:
		return "error"
	default:
		return "other"
	}
}

// isFatalErrorLine recognizes the renderer error phrases that should
// fail a job even when its process exits 0 (a renderer that swallows
// its own fatal errors and returns success regardless).
func isFatalErrorLine(line string) bool {
	lower := strings.ToLower(line)
	fatalSubstrings := []string{
		"license failed", "licensing error", "scene open failed",
		"failed to open scene", "out of memory", "cuda error",
	}
	for _, sub := range fatalSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// handleExit is reached once per process exit. It first resolves a
// pending cancel (operator or timeout triggered) to CANCELLED, then
// falls back to the retryable-exit-code chain under method=auto, and
// otherwise applies the terminal Completed/Failed transition.
func (s *Scheduler) handleExit(jobID string, exitCode int) {
	rj := s.getJob(jobID)
	if rj == nil {
		return
	}

	if s.cancelRequested[jobID] {
		delete(s.cancelRequested, jobID)
		kind := job.CancelledKind
		if s.timeoutRequested[jobID] {
			kind = job.Timeout
		}
		delete(s.timeoutRequested, jobID)
		delete(s.fatalSeen, jobID)
		if err := rj.MarkCancelledWithKind(kind); err == nil {
			s.finishJob(rj, false)
			s.cleanupJob(rj)
		}
		s.drainQueue()
		return
	}

	classification := process.ClassifyExitCode(exitCode)
	if classification.Retryable {
		method := s.attemptMethod[jobID]
		s.advanceFallbackOrFail(rj, method)
		return
	}

	fatal := s.fatalSeen[jobID]
	delete(s.fatalSeen, jobID)

	code := exitCode
	switch {
	case exitCode == 0 && !fatal:
		if err := rj.MarkCompleted(exitCode); err == nil {
			s.finishJob(rj, true)
		}
	case exitCode == 0 && fatal:
		if err := rj.MarkFailed(&code, job.RendererFatal); err == nil {
			s.finishJob(rj, false)
		}
	default:
		if err := rj.MarkFailed(&code, job.NonZeroExit); err == nil {
			s.finishJob(rj, false)
		}
	}
	s.cleanupJob(rj)
	s.drainQueue()
}

// handleTick enforces the per-job wall-clock timeout: any RUNNING job
// whose process_timeout_seconds has elapsed since start gets a
// cancellation request, tagged so handleExit records Timeout rather
// than Cancelled once the process actually exits.
func (s *Scheduler) handleTick() {
	timeout := s.cfgSnapshot().TimeoutDuration()
	if timeout == 0 {
		return
	}

	now := time.Now()
	for jobID := range s.running {
		if s.cancelRequested[jobID] {
			continue
		}
		rj := s.getJob(jobID)
		if rj == nil {
			continue
		}
		view := rj.View()
		if view.State != job.Running {
			continue
		}
		if now.Sub(view.StartTime) >= timeout {
			s.requestCancelForTimeout(jobID)
		}
	}
}

func (s *Scheduler) requestCancelForTimeout(jobID string) {
	s.cancelRequested[jobID] = true
	s.timeoutRequested[jobID] = true
	go s.sup.Terminate(jobID)
}
