package stage

import (
	"fmt"
	"regexp"

	"go.uber.org/zap"
)

// placeholderPattern matches {name} tokens in reachable string fields
// (spec §4.7a grammar: `\{([A-Za-z0-9_.-]+)\}`).
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// substitutePlaceholders expands every {name} token in s using
// placeholders. An unresolvable token logs a warning through log and
// leaves the original text for that token unchanged (spec §4.7:
// "Unresolvable placeholders log a warning and leave the original text
// unchanged").
func substitutePlaceholders(s string, placeholders map[string]string, log *zap.Logger) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(tok string) string {
		name := placeholderPattern.FindStringSubmatch(tok)[1]
		if v, ok := placeholders[name]; ok {
			return v
		}
		if log != nil {
			log.Warn("unresolvable placeholder left unchanged", zap.String("name", name))
		}
		return tok
	})
}

// applyPlaceholders walks every string field of p reachable from the spec
// (url, secondary-urls, preferred-name, relative-dir, and nested atomic
// strings) and substitutes placeholders in place.
func applyPlaceholders(p *ParamSpec, placeholders map[string]string, log *zap.Logger) {
	if p == nil {
		return
	}
	p.PreferredName = substitutePlaceholders(p.PreferredName, placeholders, log)
	p.RelativeDir = substitutePlaceholders(p.RelativeDir, placeholders, log)
	for i := range p.URL {
		p.URL[i].URI = substitutePlaceholders(p.URL[i].URI, placeholders, log)
	}
	if s, ok := p.Scalar.(string); ok {
		p.Scalar = substitutePlaceholders(s, placeholders, log)
	}
	for i, v := range p.List {
		if s, ok := v.(string); ok {
			p.List[i] = substitutePlaceholders(s, placeholders, log)
		}
	}
	for _, child := range p.Children {
		applyPlaceholders(child, placeholders, log)
	}
}

// linearKeyJoin builds the dot-separated linear_key for a tree path.
func linearKeyJoin(parent, child string) string {
	if parent == "" {
		return child
	}
	return fmt.Sprintf("%s.%s", parent, child)
}
