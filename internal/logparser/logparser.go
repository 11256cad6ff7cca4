// Package logparser classifies renderer stdout lines into structured
// events. It is stateless and renderer-aware: each supported renderer
// has its own table of recognized phrases.
package logparser

import (
	"regexp"
	"strconv"
	"strings"
)

// EventKind identifies which variant of LogEvent a value holds.
type EventKind int

const (
	Other EventKind = iota
	FrameStart
	FrameDone
	OutputPath
	Warning
	Error
)

// LogEvent is the classification result for one stdout line.
type LogEvent struct {
	Kind    EventKind
	Frame   int    // valid for FrameStart/FrameDone
	Path    string // valid for OutputPath
	Message string // valid for Warning/Error/Other (original line)
}

// Renderer names, matching spec.md's closed enumeration.
const (
	Redshift = "redshift"
	Arnold   = "arnold"
	Vray     = "vray"
)

type phraseTable struct {
	frameStart []*regexp.Regexp
	frameDone  []*regexp.Regexp
	outputPath []*regexp.Regexp
	errorSubs  []string
	warnSubs   []string
}

var frameNumPattern = `(\d+)`

func compileFrame(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + prefix + `\s*` + frameNumPattern)
}

var outputPathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)saved file:\s*(\S+)`),
	regexp.MustCompile(`(?i)writing image:\s*(\S+)`),
}

var commonErrorSubstrings = []string{
	"error", "error:", "license failed", "licensing error", "scene open failed", "failed to open scene",
}

var commonWarnSubstrings = []string{"warning", "warn:"}

var tables = map[string]phraseTable{
	Redshift: {
		frameStart: []*regexp.Regexp{compileFrame(`rendering frame`)},
		frameDone:  []*regexp.Regexp{compileFrame(`frame`), compileFrame(`finished frame`)},
		outputPath: outputPathPatterns,
		errorSubs:  append([]string{"redshift license", "cuda error", "out of memory"}, commonErrorSubstrings...),
		warnSubs:   commonWarnSubstrings,
	},
	Arnold: {
		frameStart: []*regexp.Regexp{compileFrame(`rendering frame`), regexp.MustCompile(`(?i)\[arnold\].*frame\s+` + frameNumPattern + `.*start`)},
		frameDone:  []*regexp.Regexp{compileFrame(`frame`), regexp.MustCompile(`(?i)\[arnold\].*frame\s+` + frameNumPattern + `.*done`)},
		outputPath: outputPathPatterns,
		errorSubs:  append([]string{"arnold license", "kick error"}, commonErrorSubstrings...),
		warnSubs:   commonWarnSubstrings,
	},
	Vray: {
		frameStart: []*regexp.Regexp{compileFrame(`rendering frame`), regexp.MustCompile(`(?i)preparing frame\s*` + frameNumPattern)},
		frameDone:  []*regexp.Regexp{compileFrame(`frame`), regexp.MustCompile(`(?i)frame\s*` + frameNumPattern + `\s*completed`)},
		outputPath: outputPathPatterns,
		errorSubs:  append([]string{"vray license", "v-ray error"}, commonErrorSubstrings...),
		warnSubs:   commonWarnSubstrings,
	},
}

// Classify inspects a single stdout/stderr line from the named renderer
// and returns the structured event it represents. Unknown renderers fall
// back to a generic classification that recognizes output paths, errors
// and warnings but never frame start/done events.
func Classify(renderer, line string) LogEvent {
	table, ok := tables[renderer]
	if !ok {
		return classifyGeneric(line)
	}

	for _, re := range table.outputPath {
		if m := re.FindStringSubmatch(line); m != nil {
			return LogEvent{Kind: OutputPath, Path: m[1]}
		}
	}
	for _, re := range table.frameDone {
		if m := re.FindStringSubmatch(line); m != nil {
			if matchesDoneVerb(line) {
				if n, err := strconv.Atoi(m[len(m)-1]); err == nil {
					return LogEvent{Kind: FrameDone, Frame: n}
				}
			}
		}
	}
	for _, re := range table.frameStart {
		if m := re.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[len(m)-1]); err == nil {
				return LogEvent{Kind: FrameStart, Frame: n}
			}
		}
	}

	lower := strings.ToLower(line)
	for _, sub := range table.errorSubs {
		if strings.Contains(lower, sub) {
			return LogEvent{Kind: Error, Message: line}
		}
	}
	for _, sub := range table.warnSubs {
		if strings.Contains(lower, sub) {
			return LogEvent{Kind: Warning, Message: line}
		}
	}

	return LogEvent{Kind: Other, Message: line}
}

// matchesDoneVerb disambiguates the generic "frame N" pattern (which is
// shared between start/done tables) from a line that actually announces
// completion, so "Rendering frame 1" is never misread as FrameDone.
func matchesDoneVerb(line string) bool {
	lower := strings.ToLower(line)
	return strings.Contains(lower, "done") || strings.Contains(lower, "finished") || strings.Contains(lower, "completed")
}

func classifyGeneric(line string) LogEvent {
	for _, re := range outputPathPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return LogEvent{Kind: OutputPath, Path: m[1]}
		}
	}
	lower := strings.ToLower(line)
	for _, sub := range commonErrorSubstrings {
		if strings.Contains(lower, sub) {
			return LogEvent{Kind: Error, Message: line}
		}
	}
	for _, sub := range commonWarnSubstrings {
		if strings.Contains(lower, sub) {
			return LogEvent{Kind: Warning, Message: line}
		}
	}
	return LogEvent{Kind: Other, Message: line}
}
