package resource

import (
	"os"
	"path/filepath"
	"runtime"
)

// mayaVersions is the version-ordered candidate list; newest first, as in
// the host application's own discovery order.
var mayaVersions = []string{"2025", "2024", "2023", "2022"}

func windowsMayapyPaths(version string) []string {
	return []string{
		`C:\Program Files\Autodesk\Maya` + version + `\bin\mayapy.exe`,
		`C:\Program Files (x86)\Autodesk\Maya` + version + `\bin\mayapy.exe`,
	}
}

func windowsRenderPaths(version string) []string {
	return []string{
		`C:\Program Files\Autodesk\Maya` + version + `\bin\Render.exe`,
		`C:\Program Files (x86)\Autodesk\Maya` + version + `\bin\Render.exe`,
	}
}

func unixMayapyPaths(version string) []string {
	return []string{
		"/usr/autodesk/maya" + version + "/bin/mayapy",
		"/opt/autodesk/maya" + version + "/bin/mayapy",
	}
}

func unixRenderPaths(version string) []string {
	return []string{
		"/usr/autodesk/maya" + version + "/bin/Render",
		"/opt/autodesk/maya" + version + "/bin/Render",
	}
}

// findExecutable walks mayaVersions (newest first) against the
// platform-appropriate candidate path builder and returns the first path
// that exists on disk, or "" if none do. Discovery is fail-slow: a
// missing Maya install degrades the orchestrator to whatever render
// method doesn't need that binary, it never errors here.
func findExecutable(pathsFor func(version string) []string) string {
	for _, version := range mayaVersions {
		for _, candidate := range pathsFor(version) {
			if fileExists(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func findMayapy() string {
	if runtime.GOOS == "windows" {
		return findExecutable(windowsMayapyPaths)
	}
	return findExecutable(unixMayapyPaths)
}

func findRenderBinary() string {
	if runtime.GOOS == "windows" {
		return findExecutable(windowsRenderPaths)
	}
	return findExecutable(unixRenderPaths)
}

// NormalizePath returns path unchanged if it is empty, otherwise its
// absolute form (best-effort; discovery paths are already absolute on
// every supported platform, this only guards custom override paths such
// as a configured host-script location).
func NormalizePath(path string) string {
	if path == "" {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
