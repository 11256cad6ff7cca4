// Package frame parses human frame-range expressions into sorted,
// deduplicated frame lists.
package frame

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// BadExpressionError is returned for any frame expression that fails to
// parse or validates to an empty/invalid range.
type BadExpressionError struct {
	Expr   string
	Reason string
}

func (e *BadExpressionError) Error() string {
	return fmt.Sprintf("bad frame expression %q: %s", e.Expr, e.Reason)
}

// Parse turns a comma-separated list of integers and ranges (a, a-b, or
// a-b x step) into a strictly increasing, deduplicated list of frames.
//
// Stepped ranges always include their upper bound, even if it falls off
// the step boundary (1-100x5 therefore ends in ...,96,100).
func Parse(expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, &BadExpressionError{Expr: expr, Reason: "empty expression"}
	}

	seen := make(map[int]struct{})
	for _, term := range strings.Split(expr, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			return nil, &BadExpressionError{Expr: expr, Reason: "empty term"}
		}
		frames, err := parseTerm(term)
		if err != nil {
			return nil, &BadExpressionError{Expr: expr, Reason: err.Error()}
		}
		for _, f := range frames {
			seen[f] = struct{}{}
		}
	}

	out := make([]int, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Ints(out)
	return out, nil
}

func parseTerm(term string) ([]int, error) {
	rangePart, stepPart, hasStep := strings.Cut(term, "x")

	if !strings.Contains(rangePart, "-") {
		if hasStep {
			return nil, fmt.Errorf("step given without a range: %q", term)
		}
		n, err := strconv.Atoi(rangePart)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", rangePart)
		}
		return []int{n}, nil
	}

	lo, hi, err := parseRangeBounds(rangePart)
	if err != nil {
		return nil, err
	}

	step := 1
	if hasStep {
		step, err = strconv.Atoi(strings.TrimSpace(stepPart))
		if err != nil {
			return nil, fmt.Errorf("bad step: %q", stepPart)
		}
		if step <= 0 {
			return nil, fmt.Errorf("step must be >= 1, got %d", step)
		}
	}

	frames := make([]int, 0, (hi-lo)/step+2)
	for f := lo; f <= hi; f += step {
		frames = append(frames, f)
	}
	if len(frames) == 0 || frames[len(frames)-1] != hi {
		frames = append(frames, hi)
	}
	return frames, nil
}

func parseRangeBounds(rangePart string) (lo, hi int, err error) {
	a, b, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, fmt.Errorf("not a range: %q", rangePart)
	}
	lo, err = strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("bad range start: %q", a)
	}
	hi, err = strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("bad range end: %q", b)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("range start %d greater than end %d", lo, hi)
	}
	return lo, hi, nil
}

// Format renders a sorted, deduplicated frame list as a canonical
// comma-separated-ranges expression, coalescing consecutive runs into
// a-b form. It is the inverse of Parse for lists with no stepped runs.
func Format(frames []int) string {
	if len(frames) == 0 {
		return ""
	}
	sorted := append([]int(nil), frames...)
	sort.Ints(sorted)

	var parts []string
	start := sorted[0]
	prev := sorted[0]
	flush := func(end int) {
		if start == end {
			parts = append(parts, strconv.Itoa(start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, end))
		}
	}
	for _, f := range sorted[1:] {
		if f == prev {
			continue // dedup should already have happened, be defensive
		}
		if f == prev+1 {
			prev = f
			continue
		}
		flush(prev)
		start, prev = f, f
	}
	flush(prev)
	return strings.Join(parts, ",")
}
