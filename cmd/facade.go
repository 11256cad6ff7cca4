package cmd

import (
	"os"

	"github.com/lrctoolbox/batchrender/internal/config"
	"github.com/lrctoolbox/batchrender/internal/scenehost"
	"github.com/lrctoolbox/batchrender/orchestrator"
)

// buildFacade constructs and initializes a Facade rooted at the current
// working directory, using the plain file-copy SceneHost. A real
// embedder (a Maya plugin, a farm dispatcher) supplies its own
// scenehost.SceneHost instead; this CLI has no scene-authoring API to
// call into.
func buildFacade() (*orchestrator.Facade, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	f := orchestrator.New(root, scenehost.CopyHost{})
	if err := f.Initialize(config.FromEnv()); err != nil {
		return nil, err
	}
	return f, nil
}
