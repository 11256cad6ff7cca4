// Package config defines the scheduler's tunable parameters and loads
// them from environment variables, layered over the defaults the
// original tool shipped in its batch render settings module.
package config

import (
	"time"

	"github.com/catalystcommunity/app-utils-go/env"
)

// GPU assignment policy, closed enumeration per spec.md section 3.
const (
	GPUModeAuto   = "auto"
	GPUModeManual = "manual"
)

// SchedulerConfig is the single mutable configuration value passed
// explicitly to the orchestrator Facade. There is no package-level
// settings singleton; callers hold their own copy and pass it to
// Configure.
type SchedulerConfig struct {
	MaxConcurrentJobs     int
	GPUMode               string
	LogCapPerJob          int
	KeepLatestTempFiles   int
	TempFileMaxAgeHours   int
	ProcessTimeoutSeconds int // 0 == unbounded
	ReserveGPUCount       int
	ReserveCPUThreads     int
	RenderMethod          string
	Renderer              string
	UseGPU                bool
	CustomScriptPath      string
	BasicScriptPath       string
	MayapyPath            string // overrides Resource Probe auto-discovery when set
	RenderBinaryPath      string // overrides Resource Probe auto-discovery when set
}

// Default returns the baseline configuration mirrored from the
// original tool's batch_render_defaults module.
func Default() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrentJobs:     4,
		GPUMode:               GPUModeAuto,
		LogCapPerJob:          10000,
		KeepLatestTempFiles:   5,
		TempFileMaxAgeHours:   24,
		ProcessTimeoutSeconds: 0,
		ReserveGPUCount:       1,
		ReserveCPUThreads:     4,
		RenderMethod:          "auto",
		Renderer:              "redshift",
		UseGPU:                true,
		CustomScriptPath:      "",
		BasicScriptPath:       "",
		MayapyPath:            "",
		RenderBinaryPath:      "",
	}
}

// FromEnv overlays environment-variable overrides onto Default().
func FromEnv() SchedulerConfig {
	cfg := Default()
	cfg.MaxConcurrentJobs = env.GetEnvAsIntOrDefault("BATCHRENDER_MAX_CONCURRENT_JOBS", "4")
	cfg.GPUMode = env.GetEnvOrDefault("BATCHRENDER_GPU_MODE", cfg.GPUMode)
	cfg.LogCapPerJob = env.GetEnvAsIntOrDefault("BATCHRENDER_LOG_CAP_PER_JOB", "10000")
	cfg.KeepLatestTempFiles = env.GetEnvAsIntOrDefault("BATCHRENDER_KEEP_LATEST_TEMP_FILES", "5")
	cfg.TempFileMaxAgeHours = env.GetEnvAsIntOrDefault("BATCHRENDER_TEMP_FILE_MAX_AGE_HOURS", "24")
	cfg.ProcessTimeoutSeconds = env.GetEnvAsIntOrDefault("BATCHRENDER_PROCESS_TIMEOUT_SECONDS", "0")
	cfg.ReserveGPUCount = env.GetEnvAsIntOrDefault("BATCHRENDER_RESERVE_GPU_COUNT", "1")
	cfg.ReserveCPUThreads = env.GetEnvAsIntOrDefault("BATCHRENDER_RESERVE_CPU_THREADS", "4")
	cfg.RenderMethod = env.GetEnvOrDefault("BATCHRENDER_RENDER_METHOD", cfg.RenderMethod)
	cfg.Renderer = env.GetEnvOrDefault("BATCHRENDER_RENDERER", cfg.Renderer)
	cfg.UseGPU = env.GetEnvAsBoolOrDefault("BATCHRENDER_USE_GPU", "true")
	cfg.CustomScriptPath = env.GetEnvOrDefault("BATCHRENDER_CUSTOM_SCRIPT_PATH", cfg.CustomScriptPath)
	cfg.BasicScriptPath = env.GetEnvOrDefault("BATCHRENDER_BASIC_SCRIPT_PATH", cfg.BasicScriptPath)
	cfg.MayapyPath = env.GetEnvOrDefault("BATCHRENDER_MAYAPY_PATH", cfg.MayapyPath)
	cfg.RenderBinaryPath = env.GetEnvOrDefault("BATCHRENDER_RENDER_BINARY_PATH", cfg.RenderBinaryPath)
	return cfg
}

// TimeoutDuration converts ProcessTimeoutSeconds into a time.Duration;
// zero means unbounded, matching the scheduler's tick-based enforcement.
func (c SchedulerConfig) TimeoutDuration() time.Duration {
	if c.ProcessTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.ProcessTimeoutSeconds) * time.Second
}
