package fetch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/fetch"
	"github.com/wfexsgo/core/internal/model"
)

func TestCanonicalizeURIExpandsDOI(t *testing.T) {
	assert.Equal(t, "https://doi.org/10.1000/xyz", fetch.CanonicalizeURI("doi:10.1000/xyz"))
	assert.Equal(t, "https://example.org/a", fetch.CanonicalizeURI("https://example.org/a"))
}

func TestSchemeOfDefaultsToFile(t *testing.T) {
	s, err := fetch.SchemeOf("/tmp/foo.txt")
	require.NoError(t, err)
	assert.Equal(t, "file", s)

	s, err = fetch.SchemeOf("doi:10.1000/xyz")
	require.NoError(t, err)
	assert.Equal(t, "https", s)
}

func TestFileFetcherDetectsDirectoryVsFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	ff := &fetch.FileFetcher{}
	e, err := ff.Fetch(context.Background(), filePath, dir)
	require.NoError(t, err)
	assert.Equal(t, filePath, e.LocalPath)
	assert.Equal(t, model.KindFile, e.Kind)

	d, err := ff.Fetch(context.Background(), dir, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, dir, d.LocalPath)
	assert.Equal(t, model.KindDirectory, d.Kind)
}

func TestDataFetcherWritesInlinePayload(t *testing.T) {
	dest := t.TempDir()
	df := &fetch.DataFetcher{}
	e, err := df.Fetch(context.Background(), "data:text/plain,hello", dest)
	require.NoError(t, err)
	content, err := os.ReadFile(e.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}
