// Package commandbuilder turns an admitted job plus its GPU assignment
// and discovered executables into a subprocess argv/env pair. Builders
// are small pure functions, registered by (method, renderer); there is no
// dynamic dispatch on renderer/method strings at call sites (spec.md
// section 9's redesign note).
package commandbuilder

import (
	"fmt"

	"github.com/lrctoolbox/batchrender/internal/frame"
)

// Render methods, closed enumeration per spec.md section 3.
const (
	Auto             = "auto"
	NativeBinary     = "native_binary"
	HostScriptCustom = "host_script_custom"
	HostScriptBasic  = "host_script_basic"
)

// FallbackChain is the ordered list of concrete methods attempted under
// method=auto. The Scheduler owns advancing through it on SpawnError.
var FallbackChain = []string{HostScriptCustom, NativeBinary, HostScriptBasic}

// Input carries everything a builder needs to construct an argv/env
// pair. It never depends on scene content (spec.md section 4.J).
type Input struct {
	JobID           string
	Layer           string
	Frames          []int
	TempScenePath   string
	GPUID           int
	UseGPU          bool
	Renderer        string
	RenderBinaryPath string // native Maya Render executable
	MayapyPath       string // mayapy interpreter, for host-script methods
	CustomScriptPath string // project-supplied custom render driver script
	BasicScriptPath  string // minimal fallback render driver script
}

// Builder produces the subprocess argv and environment for one
// (method, renderer) combination.
type Builder func(in Input) (argv []string, env map[string]string, err error)

var registry = map[string]map[string]Builder{
	NativeBinary: {
		"redshift": buildNativeBinary,
		"arnold":   buildNativeBinary,
		"vray":     buildNativeBinary,
	},
	HostScriptCustom: {
		"redshift": buildHostScriptCustom,
		"arnold":   buildHostScriptCustom,
		"vray":     buildHostScriptCustom,
	},
	HostScriptBasic: {
		"redshift": buildHostScriptBasic,
		"arnold":   buildHostScriptBasic,
		"vray":     buildHostScriptBasic,
	},
}

// Get resolves the builder for (method, renderer). method must be a
// concrete method, never Auto — callers expand Auto via FallbackChain
// first.
func Get(method, renderer string) (Builder, error) {
	perRenderer, ok := registry[method]
	if !ok {
		return nil, fmt.Errorf("unknown render method %q", method)
	}
	builder, ok := perRenderer[renderer]
	if !ok {
		return nil, fmt.Errorf("no builder for renderer %q under method %q", renderer, method)
	}
	return builder, nil
}

func gpuEnv(in Input) map[string]string {
	env := map[string]string{}
	if in.UseGPU {
		env["CUDA_VISIBLE_DEVICES"] = fmt.Sprintf("%d", in.GPUID)
	} else {
		env["CUDA_VISIBLE_DEVICES"] = ""
	}
	return env
}

func buildNativeBinary(in Input) ([]string, map[string]string, error) {
	if in.RenderBinaryPath == "" {
		return nil, nil, fmt.Errorf("native render binary not discovered")
	}
	argv := []string{
		in.RenderBinaryPath,
		"-r", in.Renderer,
		"-rl", in.Layer,
		"-fr", frame.Format(in.Frames),
		in.TempScenePath,
	}
	return argv, gpuEnv(in), nil
}

func buildHostScriptCustom(in Input) ([]string, map[string]string, error) {
	if in.MayapyPath == "" {
		return nil, nil, fmt.Errorf("mayapy not discovered")
	}
	script := in.CustomScriptPath
	if script == "" {
		return nil, nil, fmt.Errorf("custom render script not configured")
	}
	argv := []string{
		in.MayapyPath, script,
		"--scene", in.TempScenePath,
		"--layer", in.Layer,
		"--frames", frame.Format(in.Frames),
		"--renderer", in.Renderer,
		"--job-id", in.JobID,
	}
	return argv, gpuEnv(in), nil
}

func buildHostScriptBasic(in Input) ([]string, map[string]string, error) {
	if in.MayapyPath == "" {
		return nil, nil, fmt.Errorf("mayapy not discovered")
	}
	script := in.BasicScriptPath
	if script == "" {
		return nil, nil, fmt.Errorf("basic render script not configured")
	}
	argv := []string{
		in.MayapyPath, script,
		in.TempScenePath,
		in.Layer,
		frame.Format(in.Frames),
	}
	return argv, gpuEnv(in), nil
}
