// Package scenehost defines the collaborator interface the orchestrator
// uses to materialize a per-job scene artifact, plus a trivial
// file-copy implementation for local/CLI operation.
package scenehost

import (
	"io"
	"os"
)

// SceneHost stages a scene file for one job. Implementations live
// outside the core and are supplied by the embedding application; the
// orchestrator treats this as a black box (spec.md section 6) — any
// error becomes a job-level SceneStageError.
type SceneHost interface {
	WriteScene(sourceScenePath, layerName, destPath string) error
}

// CopyHost implements SceneHost by copying the source scene file
// verbatim to destPath, ignoring layerName. It is sufficient for local
// operation and CLI smoke testing without a real Maya host; embedders
// with an actual scene-authoring API supply their own SceneHost.
type CopyHost struct{}

// WriteScene copies sourceScenePath to destPath byte-for-byte.
func (CopyHost) WriteScene(sourceScenePath, _ string, destPath string) error {
	src, err := os.Open(sourceScenePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
