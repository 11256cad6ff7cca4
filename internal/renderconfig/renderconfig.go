// Package renderconfig loads a multi-layer RenderConfig from a YAML or
// JSON file, the input the Facade expands into one job per layer.
package renderconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RenderConfig is the Facade's batch-submission input (spec.md section
// 3): one scene, one or more render layers, one frame expression shared
// across all of them, and the GPU/method knobs a submission can
// override from the scheduler's defaults.
type RenderConfig struct {
	ScenePath string   `json:"scene_path" yaml:"scene_path"`
	Layers    []string `json:"layers" yaml:"layers"`
	FrameExpr string   `json:"frame_expr" yaml:"frame_expr"`
	Renderer  string   `json:"renderer" yaml:"renderer"`
	Method    string   `json:"method" yaml:"method"`
	GPUID     int      `json:"gpu_id" yaml:"gpu_id"`
	UseGPU    bool     `json:"use_gpu" yaml:"use_gpu"`
}

// Load reads a RenderConfig from a YAML or JSON file, selected by
// extension.
func Load(path string) (*RenderConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read render config: %w", err)
	}

	var cfg RenderConfig
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	}

	if cfg.ScenePath == "" {
		return nil, fmt.Errorf("render config must specify scene_path")
	}
	if len(cfg.Layers) == 0 {
		return nil, fmt.Errorf("render config must specify at least one layer")
	}
	if cfg.FrameExpr == "" {
		return nil, fmt.Errorf("render config must specify frame_expr")
	}

	return &cfg, nil
}
