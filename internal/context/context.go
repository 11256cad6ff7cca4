// Package context classifies a scene path as a shot, asset, or
// unclassified context, driving temp-directory layout downstream.
package context

import (
	"regexp"
	"strings"
)

// Kind identifies which branch of the tagged union a Context holds.
type Kind int

const (
	Unclassified Kind = iota
	Shot
	Asset
)

// Context is the tagged union described in spec.md section 3. Only the
// fields matching Kind are meaningful.
type Context struct {
	Kind Kind

	// Shot fields.
	Episode  string
	Sequence string
	Shot     string

	// Asset fields.
	Category    string
	Subcategory string
	AssetName   string

	// Shared.
	Department string
}

const defaultDepartment = "lighting"

var shotPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)scene/(?P<episode>Ep\d+)/(?P<sequence>sq\d+)/(?P<shot>SH\d+)/(?P<department>\w+)`),
	regexp.MustCompile(`(?i)scene/(?P<episode>[^/]+)/(?P<sequence>[^/]+)/(?P<shot>[^/]+)/(?P<department>\w+)`),
}

var assetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)assets?/(?P<category>\w+)/(?P<subcategory>\w+)/(?P<asset>[^/]+)/(?P<department>\w+)`),
}

// Detect classifies scenePath into a Context. Path separators are
// normalized to "/" and patterns are tried in order, shot first. The
// first match wins; if nothing matches, Unclassified is returned.
func Detect(scenePath string) Context {
	normalized := strings.ReplaceAll(scenePath, `\`, "/")

	if c, ok := detectShot(normalized); ok {
		return c
	}
	if c, ok := detectAsset(normalized); ok {
		return c
	}
	return Context{Kind: Unclassified}
}

func detectShot(path string) (Context, bool) {
	for _, pattern := range shotPatterns {
		m := pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		groups := namedGroups(pattern, m)
		return Context{
			Kind:       Shot,
			Episode:    groups["episode"],
			Sequence:   groups["sequence"],
			Shot:       groups["shot"],
			Department: orDefault(groups["department"], defaultDepartment),
		}, true
	}
	return Context{}, false
}

func detectAsset(path string) (Context, bool) {
	for _, pattern := range assetPatterns {
		m := pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		groups := namedGroups(pattern, m)
		return Context{
			Kind:        Asset,
			Category:    groups["category"],
			Subcategory: groups["subcategory"],
			AssetName:   groups["asset"],
			Department:  orDefault(groups["department"], defaultDepartment),
		}, true
	}
	return Context{}, false
}

func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		out[name] = match[i]
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Prefix returns the context's naming prefix: the shot name for Shot
// contexts, the asset name for Asset contexts, empty for Unclassified.
func (c Context) Prefix() string {
	switch c.Kind {
	case Shot:
		return c.Shot
	case Asset:
		return c.AssetName
	default:
		return ""
	}
}

// Summary returns a human-readable one-line description of the context.
func (c Context) Summary() string {
	switch c.Kind {
	case Shot:
		return "shot:" + c.Episode + "/" + c.Sequence + "/" + c.Shot + "/" + c.Department
	case Asset:
		return "asset:" + c.Category + "/" + c.Subcategory + "/" + c.AssetName + "/" + c.Department
	default:
		return "unclassified"
	}
}
