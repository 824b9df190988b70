package spec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/msgxform/internal/message"
)

// RedactedValue replaces sensitive values in logged documents.
const RedactedValue = "[REDACTED]"

var sensitivePathPattern = regexp.MustCompile(`^\$(\.[A-Za-z_][A-Za-z0-9_]*(\[\*?\d*\])*)*$`)

// SensitivePath is a validated JSONPath subset: dot-separated field names,
// each optionally followed by [*] or [n] selectors.
type SensitivePath struct {
	raw   string
	steps []pathStep
}

type pathStep struct {
	field string
	// index is -1 for a wildcard selector; a field step has no selector.
	index    int
	selector bool
}

// ParseSensitivePath validates and parses a sensitive path.
func ParseSensitivePath(raw string) (SensitivePath, error) {
	if strings.TrimSpace(raw) == "" {
		return SensitivePath{}, fmt.Errorf("sensitive path must not be blank")
	}
	if !sensitivePathPattern.MatchString(raw) {
		return SensitivePath{}, fmt.Errorf("invalid sensitive path %q: expected $.field with optional [*] or [n] selectors", raw)
	}

	var steps []pathStep
	for _, seg := range strings.Split(raw[1:], ".")[1:] {
		name, rest, _ := strings.Cut(seg, "[")
		steps = append(steps, pathStep{field: name})
		if rest == "" {
			continue
		}
		for _, sel := range strings.Split(strings.TrimSuffix(rest, "]"), "][") {
			digits := strings.TrimPrefix(sel, "*")
			if strings.HasPrefix(sel, "*") || digits == "" {
				steps = append(steps, pathStep{index: -1, selector: true})
				continue
			}
			n, err := strconv.Atoi(digits)
			if err != nil {
				return SensitivePath{}, fmt.Errorf("invalid index in sensitive path %q: %w", raw, err)
			}
			steps = append(steps, pathStep{index: n, selector: true})
		}
	}
	return SensitivePath{raw: raw, steps: steps}, nil
}

// String returns the source path.
func (p SensitivePath) String() string { return p.raw }

// Redact returns a copy of doc with every value selected by paths replaced
// by RedactedValue. doc itself is not modified.
func Redact(doc any, paths []SensitivePath) any {
	if len(paths) == 0 {
		return doc
	}
	out := message.DeepCopy(doc)
	for _, p := range paths {
		if len(p.steps) == 0 {
			return RedactedValue
		}
		out = redactSteps(out, p.steps)
	}
	return out
}

func redactSteps(node any, steps []pathStep) any {
	step, rest := steps[0], steps[1:]
	replace := func(child any) any {
		if len(rest) == 0 {
			return RedactedValue
		}
		return redactSteps(child, rest)
	}

	if !step.selector {
		obj, ok := node.(map[string]any)
		if !ok {
			return node
		}
		if child, exists := obj[step.field]; exists {
			obj[step.field] = replace(child)
		}
		return obj
	}

	list, ok := node.([]any)
	if !ok {
		return node
	}
	if step.index < 0 {
		for i := range list {
			list[i] = replace(list[i])
		}
		return list
	}
	if step.index < len(list) {
		list[step.index] = replace(list[step.index])
	}
	return list
}
