package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

type countingFetcher struct {
	calls int32
}

func (f *countingFetcher) Fetch(_ context.Context, uri, dest string) (cache.Entry, error) {
	atomic.AddInt32(&f.calls, 1)
	p := filepath.Join(dest, "file.txt")
	if err := os.WriteFile(p, []byte(uri), 0o644); err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{Kind: model.KindFile, LocalPath: p, ResolvedURI: uri}, nil
}

func TestFetchIsIdempotentAndMemoized(t *testing.T) {
	h, err := cache.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	f := &countingFetcher{}
	e1, err := h.Fetch(context.Background(), cache.TypeInput, "https://example.org/a.txt", f, false)
	require.NoError(t, err)
	e2, err := h.Fetch(context.Background(), cache.TypeInput, "https://example.org/a.txt", f, false)
	require.NoError(t, err)

	assert.Equal(t, e1, e2)
	assert.EqualValues(t, 1, f.calls, "second fetch should be served from the sidecar, not re-fetched")
}

func TestOfflineMissReturnsCacheMiss(t *testing.T) {
	h, err := cache.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	f := &countingFetcher{}
	_, err = h.Fetch(context.Background(), cache.TypeInput, "https://example.org/absent.txt", f, true)
	require.Error(t, err)

	var fe *wferrors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, wferrors.CacheMiss, fe.Kind)
	assert.EqualValues(t, 0, f.calls)
}

func TestDistinctCacheTypesDoNotCollide(t *testing.T) {
	h, err := cache.New(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	f := &countingFetcher{}
	_, err = h.Fetch(context.Background(), cache.TypeInput, "same-uri", f, false)
	require.NoError(t, err)
	_, err = h.Fetch(context.Background(), cache.TypeWorkflow, "same-uri", f, false)
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.calls, "different cache types must not share a key for the same URI")
}
