package scheduler

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/catalystcommunity/app-utils-go/logging"
	"github.com/google/uuid"

	"github.com/lrctoolbox/batchrender/internal/commandbuilder"
	"github.com/lrctoolbox/batchrender/internal/config"
	renderctx "github.com/lrctoolbox/batchrender/internal/context"
	"github.com/lrctoolbox/batchrender/internal/job"
	"github.com/lrctoolbox/batchrender/internal/metrics"
)

// drainQueue admits queued jobs while there is spare concurrency. Only
// ever called from the loop goroutine.
func (s *Scheduler) drainQueue() {
	for len(s.queue) > 0 && len(s.running) < s.maxConcurrent() {
		id := s.queue[0]
		s.queue = s.queue[1:]

		rj := s.getJob(id)
		if rj == nil {
			continue
		}
		if rj.State() != job.Queued {
			continue // cancelled while still queued
		}
		s.admit(rj)
	}
	metrics.SetQueueDepth(len(s.queue))
	metrics.SetRunningJobs(len(s.running))
}

func (s *Scheduler) maxConcurrent() int {
	return s.cfgSnapshot().MaxConcurrentJobs
}

// admit stages the scene, resolves the GPU assignment, and attempts the
// first method in the job's render-method chain. Any failure before a
// subprocess is spawned goes straight to FAILED without ever consuming
// a running slot (spec.md section 4.H).
func (s *Scheduler) admit(rj *job.RenderJob) {
	gpuID, useGPU := s.assignGPU(rj)

	ctx := renderctx.Detect(rj.ScenePath)
	tempPath, err := s.tempMgr.GeneratePath(rj.ScenePath, rj.Layer, rj.ID, ctx)
	if err != nil {
		logging.Log.WithError(err).WithField("job_id", rj.ID).Warn("scheduler: failed to stage temp scene path")
		s.failPreSpawn(rj, job.SceneStageError)
		return
	}

	if err := s.host.WriteScene(rj.ScenePath, rj.Layer, tempPath); err != nil {
		logging.Log.WithError(err).WithField("job_id", rj.ID).Warn("scheduler: scene host failed to stage scene")
		s.failPreSpawn(rj, job.SceneStageError)
		return
	}

	s.admission[rj.ID] = admissionInfo{tempPath: tempPath, gpuID: gpuID, useGPU: useGPU}

	method := rj.Method
	if method == commandbuilder.Auto {
		method = commandbuilder.FallbackChain[0]
	}
	s.spawnAttempt(rj, tempPath, gpuID, useGPU, method)
}

// assignGPU applies the configured GPU mode: manual honors the job's
// requested gpu_id verbatim; auto round-robins across the available
// pool, falling back to CPU mode when no GPU is available.
func (s *Scheduler) assignGPU(rj *job.RenderJob) (gpuID int, useGPU bool) {
	if s.cfgSnapshot().GPUMode == config.GPUModeManual {
		return rj.GPUID, rj.UseGPU
	}
	if len(s.gpuIDs) == 0 {
		return 0, false
	}
	id := s.gpuIDs[s.cursor%len(s.gpuIDs)]
	s.cursor++
	return id, true
}

// spawnAttempt builds the command for one (method, renderer) hop and
// spawns it. A job is only ever marked RUNNING, and render_started only
// ever fires, on the first hop that actually starts a process — prior
// failed hops within an auto fallback chain never touch either.
func (s *Scheduler) spawnAttempt(rj *job.RenderJob, tempPath string, gpuID int, useGPU bool, method string) {
	in := commandbuilder.Input{
		JobID:            rj.ID,
		Layer:            rj.Layer,
		Frames:           rj.Frames,
		TempScenePath:    tempPath,
		GPUID:            gpuID,
		UseGPU:           useGPU,
		Renderer:         rj.Renderer,
		RenderBinaryPath: s.exePaths.RenderBinaryPath,
		MayapyPath:       s.exePaths.MayapyPath,
		CustomScriptPath: s.exePaths.CustomScriptPath,
		BasicScriptPath:  s.exePaths.BasicScriptPath,
	}

	attemptID := uuid.New()
	startedAt := time.Now()

	builder, err := commandbuilder.Get(method, rj.Renderer)
	var argv []string
	var env map[string]string
	if err == nil {
		argv, env, err = builder(in)
	}
	if err == nil {
		err = s.sup.Spawn(rj.ID, argv, env, filepath.Dir(tempPath),
			func(line string) { s.events <- event{kind: evLog, jobID: rj.ID, line: line} },
			func(exitCode int) { s.events <- event{kind: evExit, jobID: rj.ID, exitCode: exitCode} })
	}

	if err != nil {
		rj.RecordAttempt(job.ExecutionAttempt{AttemptID: attemptID, Method: method, Argv: argv, StartedAt: startedAt, SpawnErr: err.Error()})
		s.advanceFallbackOrFail(rj, method)
		return
	}

	rj.RecordAttempt(job.ExecutionAttempt{AttemptID: attemptID, Method: method, Argv: argv, StartedAt: startedAt})
	s.attemptMethod[rj.ID] = method

	if rj.State() == job.Queued {
		if err := rj.MarkRunning(tempPath); err != nil {
			logging.Log.WithError(err).WithField("job_id", rj.ID).Warn("scheduler: illegal transition to running")
			return
		}
		if s.hooks.Started != nil {
			s.hooks.Started(rj.ID)
		}
		if useGPU {
			metrics.GPUUtilization.WithLabelValues(gpuLabel(gpuID)).Inc()
		}
	}
	s.running[rj.ID] = true
}

func gpuLabel(gpuID int) string {
	return strconv.Itoa(gpuID)
}

// advanceFallbackOrFail is reached whenever a hop could not be spawned
// (builder error or a process failing to start/exec), and from
// handleExit when a started hop exits with a retryable code (126/127).
// Under method=auto it retries with the next builder in the chain,
// preserving the job's identity across attempts; otherwise, or once the
// chain is exhausted, the job fails with SpawnError. A job on which no
// hop ever started never consumed a slot.
func (s *Scheduler) advanceFallbackOrFail(rj *job.RenderJob, failedMethod string) {
	if rj.Method == commandbuilder.Auto {
		if next, ok := nextInChain(failedMethod); ok {
			metrics.RecordFallback(failedMethod, next)
			info := s.admission[rj.ID]
			s.spawnAttempt(rj, info.tempPath, info.gpuID, info.useGPU, next)
			return
		}
	}

	if err := rj.MarkFailed(nil, job.SpawnError); err != nil {
		logging.Log.WithError(err).WithField("job_id", rj.ID).Warn("scheduler: illegal transition to failed")
	}
	s.finishJob(rj, false)
	s.cleanupJob(rj)
	s.drainQueue()
}

func nextInChain(method string) (string, bool) {
	for i, m := range commandbuilder.FallbackChain {
		if m == method && i+1 < len(commandbuilder.FallbackChain) {
			return commandbuilder.FallbackChain[i+1], true
		}
	}
	return "", false
}

// failPreSpawn fails a job before any method was ever attempted
// (staging/scene-host errors). No slot was ever acquired.
func (s *Scheduler) failPreSpawn(rj *job.RenderJob, kind job.ErrorKind) {
	if err := rj.MarkFailed(nil, kind); err != nil {
		logging.Log.WithError(err).WithField("job_id", rj.ID).Warn("scheduler: illegal admission-failure transition")
	}
	s.finishJob(rj, false)
	s.cleanupJob(rj)
	s.drainQueue()
}

// finishJob releases bookkeeping for a job that just reached a terminal
// state and republishes render_completed, including for pre-spawn
// failures that never ran. Cancel-from-queued never reaches finishJob;
// handleCancel marks that job directly and publishes nothing.
func (s *Scheduler) finishJob(rj *job.RenderJob, success bool) {
	_, wasRunning := s.running[rj.ID]
	delete(s.running, rj.ID)
	delete(s.attemptMethod, rj.ID)

	if wasRunning {
		if info, ok := s.admission[rj.ID]; ok && info.useGPU {
			metrics.GPUUtilization.WithLabelValues(gpuLabel(info.gpuID)).Dec()
		}
	}

	view := rj.View()
	duration := view.EndTime.Sub(view.SubmitTime).Seconds()
	metrics.RecordCompletion(rj.Renderer, view.State.String(), string(view.ErrorKind), duration)

	if s.hooks.Completed != nil {
		s.hooks.Completed(rj.ID, success)
	}
}

// cleanupJob schedules the bounded background retention sweep for the
// job's temp directory, then forgets its admission bookkeeping.
func (s *Scheduler) cleanupJob(rj *job.RenderJob) {
	info, ok := s.admission[rj.ID]
	delete(s.admission, rj.ID)
	if !ok {
		return
	}
	dir := filepath.Dir(info.tempPath)
	cfg := s.cfgSnapshot()
	s.tempMgr.SweepKeepLatest(dir, cfg.KeepLatestTempFiles)
	s.tempMgr.SweepOlderThan(dir, time.Duration(cfg.TempFileMaxAgeHours)*time.Hour)
}
