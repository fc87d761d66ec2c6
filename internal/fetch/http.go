package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// HTTPFetcher GETs a remote URI with optional token/basic auth pulled from
// a named security-context table (spec §4.2: "GETs with optional
// token/basic auth from a security-context table").
type HTTPFetcher struct {
	Client           *http.Client
	SecurityContexts map[string]SecurityContext
	// ContextName selects which SecurityContexts entry to apply; empty
	// means no auth. Set by callers that resolved a per-input context.
	ContextName string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, uri string, dest string) (cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return cache.Entry{}, wferrors.NewFetchError(wferrors.FetchUnknown, uri, err)
	}
	if sc, ok := f.SecurityContexts[f.ContextName]; ok {
		switch {
		case sc.Token != "":
			req.Header.Set("Authorization", "Bearer "+sc.Token)
		case sc.Username != "":
			req.SetBasicAuth(sc.Username, sc.Password)
		}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return cache.Entry{}, wferrors.NewFetchError(wferrors.Timeout, uri, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return cache.Entry{}, wferrors.NewFetchError(wferrors.HTTPStatus, uri, fmt.Errorf("status %d", resp.StatusCode))
	}

	name := path.Base(uri)
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	localPath := filepath.Join(dest, name)
	out, err := os.Create(localPath)
	if err != nil {
		return cache.Entry{}, err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return cache.Entry{}, wferrors.NewFetchError(wferrors.Timeout, uri, err)
	}

	return cache.Entry{
		Kind:        model.KindFile,
		LocalPath:   localPath,
		ResolvedURI: resp.Request.URL.String(),
		MetadataChain: []model.MetadataEntry{
			{URI: uri, Response: []string{"content-type: " + resp.Header.Get("Content-Type")}},
		},
	}, nil
}
