package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamsLeafFileSpec(t *testing.T) {
	raw := map[string]any{
		"reads": map[string]any{
			"c-l-a-s-s":      "File",
			"url":            "https://example.org/reads.bam",
			"preferred-name": "reads.bam",
			"autoFill":       true,
		},
	}
	out, err := ParseParams(raw)
	require.NoError(t, err)
	require.Contains(t, out, "reads")

	p := out["reads"]
	assert.Equal(t, "File", p.Class)
	require.Len(t, p.URL, 1)
	assert.Equal(t, "https://example.org/reads.bam", p.URL[0].URI)
	assert.Equal(t, "reads.bam", p.PreferredName)
	assert.True(t, p.AutoFill)
}

func TestParseParamsNestedTree(t *testing.T) {
	raw := map[string]any{
		"sample": map[string]any{
			"normal": map[string]any{
				"c-l-a-s-s": "File",
				"url":       "https://example.org/normal.bam",
			},
			"tumor": map[string]any{
				"c-l-a-s-s": "File",
				"url":       "https://example.org/tumor.bam",
			},
		},
	}
	out, err := ParseParams(raw)
	require.NoError(t, err)
	sample := out["sample"]
	require.NotNil(t, sample.Children)
	assert.Equal(t, "File", sample.Children["normal"].Class)
	assert.Equal(t, "File", sample.Children["tumor"].Class)
}

func TestParseParamsScalarAndListLeaves(t *testing.T) {
	raw := map[string]any{
		"threads": 4,
		"regions": []any{"chr1", "chr2"},
	}
	out, err := ParseParams(raw)
	require.NoError(t, err)
	assert.Equal(t, 4, out["threads"].Scalar)
	assert.Equal(t, []any{"chr1", "chr2"}, out["regions"].List)
}

func TestParseParamsURLListWithAttributions(t *testing.T) {
	raw := map[string]any{
		"dataset": map[string]any{
			"c-l-a-s-s": "Directory",
			"url": []any{
				map[string]any{
					"uri":          "https://example.org/a",
					"attributions": []any{"alice"},
					"licences":     []any{"CC-BY"},
				},
				"https://example.org/b",
			},
		},
	}
	out, err := ParseParams(raw)
	require.NoError(t, err)
	d := out["dataset"]
	require.Len(t, d.URL, 2)
	assert.Equal(t, "https://example.org/a", d.URL[0].URI)
	assert.Equal(t, []string{"alice"}, d.URL[0].Attributions)
	assert.Equal(t, []string{"CC-BY"}, d.URL[0].Licences)
	assert.Equal(t, "https://example.org/b", d.URL[1].URI)
}
