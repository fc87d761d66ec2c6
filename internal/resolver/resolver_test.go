package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/wferrors"
)

func TestGuessRepoParamsGitHub(t *testing.T) {
	rr, ok := guessRepoParams("https://github.com/org/repo/tree/v1.2")
	require.True(t, ok)
	assert.Equal(t, "https://github.com/org/repo.git", rr.RepoURL)
	assert.Equal(t, "v1.2", rr.Tag)
}

func TestGuessRepoParamsPlainGitURL(t *testing.T) {
	rr, ok := guessRepoParams("https://example.org/some/repo.git")
	require.True(t, ok)
	assert.Equal(t, "https://example.org/some/repo.git", rr.RepoURL)
}

func TestGuessRepoParamsRejectsNonGit(t *testing.T) {
	_, ok := guessRepoParams("not a url at all")
	assert.False(t, ok)
}

func TestResolveDirectGitURLFillsTagFromVersion(t *testing.T) {
	r := New(nil, nil)
	iw, err := r.Resolve(context.Background(), Request{
		WorkflowID: "https://github.com/org/repo.git",
		VersionID:  "v2.0",
	})
	require.NoError(t, err)
	assert.Equal(t, "v2.0", iw.RemoteRepo.Tag)
}

func TestResolveWithoutTRSEndpointFailsConfigError(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Resolve(context.Background(), Request{WorkflowID: "opaque-id"})
	require.Error(t, err)
	var ce *wferrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestSelectVersionPicksLexicographicallyGreatestWhenUnspecified(t *testing.T) {
	v, err := selectVersion([]trsVersion{{ID: "1"}, {ID: "2"}, {ID: "10"}}, "")
	require.NoError(t, err)
	assert.Equal(t, "2", v.ID, "lexicographic compare, not numeric: \"2\" > \"10\"")
}

func TestSelectDescriptorTypeFailsWhenNotDeclared(t *testing.T) {
	_, err := selectDescriptorType([]string{"CWL"}, "WDL")
	require.Error(t, err)
	var re *wferrors.ResolverError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, wferrors.DescriptorTypeNotAvailable, re.Kind)
}

func TestProbeServiceInfoFallsBackToMetadata(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/service-info", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/metadata", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"2.0.1"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := New(srv.Client(), nil)
	v, err := r.probeServiceInfo(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", v)
}
