package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/model"
)

func TestParseExpectedOutputsReadsClassGlobAndCardinality(t *testing.T) {
	raw := map[string]any{
		"bams": map[string]any{
			"c-l-a-s-s":   "File",
			"glob":        "*.bam",
			"cardinality": "+",
		},
		"report": map[string]any{
			"c-l-a-s-s": "File",
			"fillFrom":  "out.name",
		},
	}

	out, err := ParseExpectedOutputs(raw)
	require.NoError(t, err)
	require.Contains(t, out, "bams")
	require.Contains(t, out, "report")

	assert.Equal(t, model.KindFile, out["bams"].Class)
	assert.Equal(t, "*.bam", out["bams"].Glob)
	assert.Equal(t, model.Cardinality{Min: 1, Max: -1}, out["bams"].Cardinality)
	assert.Equal(t, "out.name", out["report"].FillFrom)
}

func TestParseExpectedOutputsRejectsNonMapping(t *testing.T) {
	_, err := ParseExpectedOutputs(map[string]any{"bad": "not-a-map"})
	assert.Error(t, err)
}

func TestParseExpectedOutputsDefaultsCardinalityToOne(t *testing.T) {
	out, err := ParseExpectedOutputs(map[string]any{"x": map[string]any{"c-l-a-s-s": "File"}})
	require.NoError(t, err)
	assert.Equal(t, model.Cardinality{Min: 1, Max: 1}, out["x"].Cardinality)
}

func TestParseExpectedOutputsCardinalityAsPair(t *testing.T) {
	out, err := ParseExpectedOutputs(map[string]any{
		"x": map[string]any{"c-l-a-s-s": "File", "cardinality": []any{0, 3}},
	})
	require.NoError(t, err)
	assert.Equal(t, model.Cardinality{Min: 0, Max: 3}, out["x"].Cardinality)
}
