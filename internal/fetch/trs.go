package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// TRSFile is one entry of a GA4GH TRSv2 files endpoint response.
type TRSFile struct {
	Path     string `json:"file_path"`
	FileType string `json:"file_type"`
}

// TRSFetcher materializes the declared files of a specific
// tool/version/descriptor from a GA4GH TRSv2 endpoint (spec §4.2: "calls
// the GA4GH TRSv2 files endpoint ... exposes, when present, a
// remote_workflow_entrypoint hint").
type TRSFetcher struct {
	Client *http.Client
}

// TRSCoordinates identifies one tool/version/descriptor triple to fetch.
type TRSCoordinates struct {
	Endpoint       string
	ToolID         string
	VersionID      string
	DescriptorType string
}

// FetchFiles retrieves the files endpoint listing and downloads each
// declared file into dest, returning as the remote_workflow_entrypoint
// hint the contents of the listed file whose file_type is
// "remote_workflow_entrypoint", if any.
func (f *TRSFetcher) FetchFiles(ctx context.Context, c TRSCoordinates, dest string) (files []string, entrypointHint string, err error) {
	url := fmt.Sprintf("%s/tools/%s/versions/%s/%s/files", c.Endpoint, c.ToolID, c.VersionID, c.DescriptorType)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", wferrors.NewFetchError(wferrors.FetchUnknown, url, err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, "", wferrors.NewFetchError(wferrors.Timeout, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", wferrors.NewFetchError(wferrors.HTTPStatus, url, fmt.Errorf("status %d", resp.StatusCode))
	}

	var listing []TRSFile
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, "", wferrors.NewFetchError(wferrors.FetchUnknown, url, err)
	}

	for _, entry := range listing {
		fileURL := fmt.Sprintf("%s/tools/%s/versions/%s/%s/files/%s", c.Endpoint, c.ToolID, c.VersionID, c.DescriptorType, entry.Path)
		localPath := filepath.Join(dest, entry.Path)
		if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
			return nil, "", err
		}
		if err := downloadTo(ctx, f.Client, fileURL, localPath); err != nil {
			return nil, "", err
		}
		files = append(files, localPath)
		if entry.FileType == "remote_workflow_entrypoint" {
			data, rerr := os.ReadFile(localPath)
			if rerr == nil {
				entrypointHint = string(data)
			}
		}
	}
	return files, entrypointHint, nil
}

func downloadTo(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return wferrors.NewFetchError(wferrors.Timeout, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return wferrors.NewFetchError(wferrors.HTTPStatus, url, fmt.Errorf("status %d", resp.StatusCode))
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

// Fetch implements cache.Fetcher for the internal "trs" scheme, treating
// uri as an already-formed files-endpoint URL (used when the resolver has
// already expanded the tool/version/descriptor triple into a URI).
func (f *TRSFetcher) Fetch(ctx context.Context, uri string, dest string) (cache.Entry, error) {
	localPath := filepath.Join(dest, "files.json")
	if err := downloadTo(ctx, f.Client, uri, localPath); err != nil {
		return cache.Entry{}, err
	}
	return cache.Entry{Kind: model.KindFile, LocalPath: localPath, ResolvedURI: uri}, nil
}
