package output

import (
	"fmt"

	"github.com/wfexsgo/core/internal/model"
)

// ParseExpectedOutputs parses a decoded workflow_meta.yaml "outputs" map
// into the ExpectedOutput records of spec §6 ("Output spec").
func ParseExpectedOutputs(raw map[string]any) (map[string]*ExpectedOutput, error) {
	out := make(map[string]*ExpectedOutput, len(raw))
	for k, v := range raw {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("outputs.%s: expected a mapping", k)
		}
		eo := &ExpectedOutput{}
		if s, ok := m["c-l-a-s-s"].(string); ok {
			eo.Class = model.ContentKind(s)
		}
		if s, ok := m["glob"].(string); ok {
			eo.Glob = s
		}
		if s, ok := m["fillFrom"].(string); ok {
			eo.FillFrom = s
		}
		if s, ok := m["preferredName"].(string); ok {
			eo.PreferredName = s
		}
		eo.Cardinality = parseCardinality(m["cardinality"])
		out[k] = eo
	}
	return out, nil
}

func parseCardinality(v any) model.Cardinality {
	switch val := v.(type) {
	case string:
		return model.ParseCardinality(val)
	case []any:
		if len(val) == 2 {
			min, _ := toInt(val[0])
			max, _ := toInt(val[1])
			return model.Cardinality{Min: min, Max: max}
		}
	}
	return model.ParseCardinality("1")
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
