// Package cache implements the content-addressed Cache Handler (C1):
// keyed by (cache-type, canonical URI), it persists the fetched payload, a
// metadata sidecar recording the dereference chain, and serializes
// concurrent fetches of the same key so at most one network retrieval
// happens per key per process.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
	"go.uber.org/zap"
)

// Type is the cache partition a fetch belongs to.
type Type string

const (
	TypeInput    Type = "input"
	TypeWorkflow Type = "workflow"
	TypeROCrate  Type = "ro-crate"
	TypeTRS      Type = "trs"
)

// Entry is the record the cache handler stores for one key, and what
// Fetch returns to callers.
type Entry struct {
	Kind          model.ContentKind
	LocalPath     string
	MetadataChain []model.MetadataEntry
	Licences      []string
	ResolvedURI   string
}

type sidecar struct {
	Kind          model.ContentKind     `json:"kind"`
	LocalPath     string                `json:"local_path"`
	MetadataChain []model.MetadataEntry `json:"metadata_chain"`
	Licences      []string              `json:"licences"`
	ResolvedURI   string                `json:"resolved_uri"`
}

// Fetcher is implemented by each scheme fetcher (C2). dest is a directory
// the fetcher may populate; the returned LocalPath must be inside dest (or
// a path the fetcher itself owns, e.g. a nested cache).
type Fetcher interface {
	Fetch(ctx context.Context, uri string, dest string) (Entry, error)
}

// Handler is the C1 Cache Handler.
type Handler struct {
	baseDir string
	log     *zap.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// New creates a Handler rooted at baseDir (typically ~/.cache/wfexsgo or an
// instance-local cache directory).
func New(baseDir string, log *zap.Logger) (*Handler, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{baseDir: baseDir, log: log, keyLocks: make(map[string]*sync.Mutex)}, nil
}

// Key computes the content-addressed cache key for (cacheType, uri).
func Key(cacheType Type, uri string) string {
	h := sha256.Sum256([]byte(string(cacheType) + "\x00" + uri))
	return hex.EncodeToString(h[:])
}

func (h *Handler) entryDir(key string) string {
	return filepath.Join(h.baseDir, key[:2], key)
}

func (h *Handler) lockFor(key string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.keyLocks[key]
	if !ok {
		l = &sync.Mutex{}
		h.keyLocks[key] = l
	}
	return l
}

// Fetch resolves (cacheType, uri) through fetcher, persisting the result
// under the cache key. If offline and the entry is absent, it fails with
// CacheMiss. Concurrent fetches for the same key are serialized in-process
// via a per-key mutex, and across processes via an advisory flock on the
// sidecar file when the cache directory is shared.
func (h *Handler) Fetch(ctx context.Context, cacheType Type, uri string, fetcher Fetcher, offline bool) (Entry, error) {
	key := Key(cacheType, uri)
	l := h.lockFor(key)
	l.Lock()
	defer l.Unlock()

	dir := h.entryDir(key)
	sidecarPath := filepath.Join(dir, "meta.json")

	unlockFile, err := h.flockAdvisory(sidecarPath)
	if err != nil {
		return Entry{}, wferrors.NewFetchError(wferrors.FetchUnknown, uri, err)
	}
	defer unlockFile()

	if e, ok := h.readSidecar(sidecarPath); ok {
		h.log.Debug("cache hit", zap.String("uri", uri), zap.String("key", key))
		return e, nil
	}

	if offline {
		return Entry{}, wferrors.NewFetchError(wferrors.CacheMiss, uri, fmt.Errorf("no cached entry for offline fetch"))
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create cache entry dir: %w", err)
	}
	payloadDir := filepath.Join(dir, "payload")
	if err := os.MkdirAll(payloadDir, 0o755); err != nil {
		return Entry{}, fmt.Errorf("create cache payload dir: %w", err)
	}

	e, err := fetcher.Fetch(ctx, uri, payloadDir)
	if err != nil {
		return Entry{}, err
	}

	if err := h.writeSidecarAtomic(sidecarPath, e); err != nil {
		return Entry{}, fmt.Errorf("commit cache sidecar: %w", err)
	}
	h.log.Info("cache miss, fetched", zap.String("uri", uri), zap.String("resolved_uri", e.ResolvedURI))
	return e, nil
}

func (h *Handler) readSidecar(path string) (Entry, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, false
	}
	var s sidecar
	if err := json.Unmarshal(data, &s); err != nil {
		return Entry{}, false
	}
	return Entry(s), true
}

// writeSidecarAtomic commits the sidecar via rename-into-place so partially
// written entries are never visible to other callers (spec §5 ordering
// guarantee: "commits are atomic").
func (h *Handler) writeSidecarAtomic(path string, e Entry) error {
	s := sidecar(e)
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// flockAdvisory takes an advisory file lock on path (creating it if
// absent) for cross-process fetch serialization when CACHE_DIR is shared.
// The returned func releases the lock.
func (h *Handler) flockAdvisory(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return func() {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
	}, nil
}
