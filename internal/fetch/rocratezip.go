package fetch

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// ROCrateZipFetcher downloads an RO-Crate archive and expands it (spec
// §4.2: "downloads and expands an RO-Crate archive").
type ROCrateZipFetcher struct {
	HTTP *HTTPFetcher
}

func (f *ROCrateZipFetcher) Fetch(ctx context.Context, uri string, dest string) (cache.Entry, error) {
	archiveDir := filepath.Join(dest, ".archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return cache.Entry{}, err
	}
	entry, err := f.HTTP.Fetch(ctx, uri, archiveDir)
	if err != nil {
		return cache.Entry{}, err
	}

	expandDir := filepath.Join(dest, "crate")
	if err := os.MkdirAll(expandDir, 0o755); err != nil {
		return cache.Entry{}, err
	}
	if err := expandZip(entry.LocalPath, expandDir); err != nil {
		return cache.Entry{}, wferrors.NewFetchError(wferrors.FetchUnknown, uri, err)
	}

	return cache.Entry{
		Kind:          model.KindDirectory,
		LocalPath:     expandDir,
		MetadataChain: entry.MetadataChain,
		ResolvedURI:   entry.ResolvedURI,
	}, nil
}

func expandZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, file := range r.File {
		target := filepath.Join(destDir, file.Name)
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry escapes destination: %s", file.Name)
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := file.Open()
		if err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(out, src)
		src.Close()
		out.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
