package stage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/fetch"
)

func TestSubstitutePlaceholdersResolvedAndUnresolved(t *testing.T) {
	out := substitutePlaceholders("https://host/{x}.txt", map[string]string{"x": "abc"}, nil)
	assert.Equal(t, "https://host/abc.txt", out)

	out = substitutePlaceholders("https://host/{y}.txt", map[string]string{"x": "abc"}, zaptest.NewLogger(t))
	assert.Equal(t, "https://host/{y}.txt", out, "unresolvable placeholder must keep original text")
}

func TestAutoFillDirectoryUsesAutoPrefixPath(t *testing.T) {
	outputsDir := t.TempDir()
	s := &Stager{OutputsDir: outputsDir}

	p := &ParamSpec{Class: "Directory", AutoFill: true, AutoPrefix: true}
	results, err := s.stageAutoFill("run.outdir", p)
	require.NoError(t, err)
	require.Len(t, results, 1)

	content := results[0].Values[0].Content
	assert.Equal(t, filepath.Join(outputsDir, "run", "outdir"), content.LocalPath)
}

func TestStageFetchHardensNameOnCollision(t *testing.T) {
	dir := t.TempDir()
	inputsDir := filepath.Join(dir, "inputs")

	srcA := filepath.Join(dir, "a.txt")
	srcB := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(srcA, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(srcB, []byte("b"), 0o644))

	cacheHandler, err := cache.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	s := &Stager{
		Cache:      cacheHandler,
		Fetchers:   fetch.NewRegistry(nil, nil),
		InputsDir:  inputsDir,
		OutputsDir: t.TempDir(),
	}

	specA := &ParamSpec{Class: "File", URL: []URLRef{{URI: srcA}}, PreferredName: "same.txt"}
	specB := &ParamSpec{Class: "File", URL: []URLRef{{URI: srcB}}, PreferredName: "same.txt"}

	_, err = s.stageFetch(context.Background(), "a", specA)
	require.NoError(t, err)
	_, err = s.stageFetch(context.Background(), "b", specB)
	require.NoError(t, err)

	entries, err := os.ReadDir(inputsDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "colliding preferred-names must be hardened, not overwritten")
}
