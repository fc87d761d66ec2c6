package output

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wfexsgo/core/internal/model"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestResolveGlobBindsExactlyMatchingEntries(t *testing.T) {
	outputsDir := t.TempDir()
	writeFile(t, filepath.Join(outputsDir, "a.bam"), "a")
	writeFile(t, filepath.Join(outputsDir, "b.bam"), "b")
	writeFile(t, filepath.Join(outputsDir, "c.txt"), "c")

	r := &Resolver{OutputsDir: outputsDir, Log: zaptest.NewLogger(t)}
	outputs := map[string]*ExpectedOutput{
		"bams": {Class: model.KindFile, Glob: "*.bam", Cardinality: model.ParseCardinality("+")},
	}

	results, err := r.Resolve(context.Background(), outputs, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0].Values, 2)
	for _, v := range results[0].Values {
		assert.NotEmpty(t, v.Signature)
	}
}

func TestResolveFillFromReusesInputFilename(t *testing.T) {
	outputsDir := t.TempDir()
	writeFile(t, filepath.Join(outputsDir, "result.vcf"), "variants")

	inputs := []model.MaterializedInput{
		{
			Name: "out.name",
			Values: []model.ParamValue{
				{Kind: "scalar", Scalar: "result.vcf"},
			},
		},
	}

	r := &Resolver{OutputsDir: outputsDir, Log: zaptest.NewLogger(t)}
	outputs := map[string]*ExpectedOutput{
		"vcf": {Class: model.KindFile, FillFrom: "out.name"},
	}

	results, err := r.Resolve(context.Background(), outputs, inputs, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	assert.Equal(t, filepath.Join(outputsDir, "result.vcf"), results[0].Values[0].LocalPath)
}

func TestResolveExplicitMappingConsumesEngineDescriptor(t *testing.T) {
	outputsDir := t.TempDir()
	target := filepath.Join(outputsDir, "report.html")
	writeFile(t, target, "<html></html>")

	explicit := map[string]json.RawMessage{
		"report": json.RawMessage(`{"class":"File","path":"` + target + `"}`),
	}

	r := &Resolver{OutputsDir: outputsDir, HasExplicitOutputs: true, Log: zaptest.NewLogger(t)}
	outputs := map[string]*ExpectedOutput{
		"report": {Class: model.KindFile},
	}

	results, err := r.Resolve(context.Background(), outputs, nil, explicit)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Values, 1)
	assert.Equal(t, target, results[0].Values[0].LocalPath)
}

func TestResolveDiscoverWithNoDeclaredOutputs(t *testing.T) {
	outputsDir := t.TempDir()
	writeFile(t, filepath.Join(outputsDir, "only.txt"), "x")

	r := &Resolver{OutputsDir: outputsDir, Log: zaptest.NewLogger(t)}
	results, err := r.Resolve(context.Background(), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Synthetic)
}

func TestDigestDirIsOrderIndependent(t *testing.T) {
	dirA := t.TempDir()
	writeFile(t, filepath.Join(dirA, "a.txt"), "alpha")
	writeFile(t, filepath.Join(dirA, "sub", "b.txt"), "beta")

	dirB := t.TempDir()
	writeFile(t, filepath.Join(dirB, "sub", "b.txt"), "beta")
	writeFile(t, filepath.Join(dirB, "a.txt"), "alpha")

	digestA, err := DigestDir(dirA)
	require.NoError(t, err)
	digestB, err := DigestDir(dirB)
	require.NoError(t, err)
	assert.Equal(t, digestA, digestB)
	assert.Contains(t, digestA, "sha256:")
}
