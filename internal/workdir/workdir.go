// Package workdir implements the Secure Workdir (C3): provisioning of a
// per-instance raw or encrypted working tree, plus the background
// liveness goroutine that keeps an idle-unmount-configured FUSE mount
// alive for the duration of a long workflow run.
package workdir

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wfexsgo/core/internal/wferrors"
)

// MountBackend is implemented by each pluggable encrypted-filesystem
// driver (spec §4.3: "at least encfs, gocryptfs").
type MountBackend interface {
	Name() string
	// Mount provisions cryptDir (ciphertext) <-> mountDir (plaintext)
	// using passphrase, creating cryptDir if absent.
	Mount(cryptDir, mountDir, passphrase string) error
	// Unmount tears the mount down. lazy requests a lazy/detach unmount
	// so residual file handles do not block shutdown.
	Unmount(mountDir string, lazy bool) error
}

// WorkDir is a provisioned per-instance working tree, raw or encrypted.
type WorkDir struct {
	RawDir      string
	WorkDir     string
	IsEncrypted bool

	backend    MountBackend
	cryptDir   string
	passphrase string
	log        *zap.Logger

	liveness *liveness
}

// Options controls provisioning.
type Options struct {
	Encrypted bool
	Backend   MountBackend
	// LivenessInterval must be <= half the mount's idle-unmount timeout;
	// defaults to 60s per spec §5.
	LivenessInterval time.Duration
	Log              *zap.Logger
}

const passphraseFile = ".passphrase"

// Setup provisions the working tree under rawDir according to opts. For
// an encrypted tree it creates rawDir/.crypt and rawDir/work, generates
// or loads rawDir/.passphrase, moves aside a tainted non-empty work
// directory, mounts the backend, and starts the liveness goroutine.
func Setup(rawDir string, opts Options) (*WorkDir, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	if !opts.Encrypted {
		if err := os.MkdirAll(rawDir, 0o755); err != nil {
			return nil, wferrors.NewSetupError("create raw working directory", err)
		}
		return &WorkDir{RawDir: rawDir, WorkDir: rawDir, log: log}, nil
	}

	if opts.Backend == nil {
		return nil, wferrors.NewSetupError("encrypted workdir requested with no mount backend configured", nil)
	}

	cryptDir := filepath.Join(rawDir, ".crypt")
	mountDir := filepath.Join(rawDir, "work")
	if err := os.MkdirAll(cryptDir, 0o700); err != nil {
		return nil, wferrors.NewSetupError("create ciphertext directory", err)
	}
	if err := tainteMoveAside(mountDir); err != nil {
		return nil, wferrors.NewSetupError("refuse tainted working directory", err)
	}
	if err := os.MkdirAll(mountDir, 0o700); err != nil {
		return nil, wferrors.NewSetupError("create plaintext mount point", err)
	}

	pass, err := loadOrGeneratePassphrase(filepath.Join(rawDir, passphraseFile))
	if err != nil {
		return nil, wferrors.NewSetupError("provision passphrase", err)
	}

	if err := opts.Backend.Mount(cryptDir, mountDir, pass); err != nil {
		return nil, wferrors.NewSetupError(fmt.Sprintf("mount %s", opts.Backend.Name()), err)
	}

	interval := opts.LivenessInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}

	wd := &WorkDir{
		RawDir:      rawDir,
		WorkDir:     mountDir,
		IsEncrypted: true,
		backend:     opts.Backend,
		cryptDir:    cryptDir,
		passphrase:  pass,
		log:         log,
	}
	wd.liveness = startLiveness(mountDir, interval, log)
	return wd, nil
}

// Teardown signals the liveness goroutine to stop, waits for it to exit,
// then lazily unmounts the encrypted tree. A raw (unencrypted) WorkDir is
// a no-op.
func (w *WorkDir) Teardown() error {
	if !w.IsEncrypted {
		return nil
	}
	if w.liveness != nil {
		w.liveness.stop()
	}
	return w.backend.Unmount(w.WorkDir, true)
}

// tainteMoveAside moves a pre-existing non-empty mount point aside rather
// than mounting over it (spec §4.3: "tainted non-empty work directories
// are moved aside before mounting").
func tainteMoveAside(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	dest := dir + ".tainted." + time.Now().UTC().Format("20060102T150405")
	return os.Rename(dir, dest)
}

func loadOrGeneratePassphrase(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	pass := base64.RawURLEncoding.EncodeToString(buf)
	if err := os.WriteFile(path, []byte(pass), 0o600); err != nil {
		return "", err
	}
	return pass, nil
}

// liveness is the background goroutine that keeps an idle-unmount FUSE
// mount alive by stat-ing it on a fixed interval (spec §5: "sleeps on a
// condition variable with a 60-second timeout and on each wakeup stats
// the mount point; shutdown signals the condition variable; the thread
// joins before unmount").
type liveness struct {
	mu       sync.Mutex
	cond     *sync.Cond
	stopped  bool
	done     chan struct{}
}

func startLiveness(mountDir string, interval time.Duration, log *zap.Logger) *liveness {
	l := &liveness{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)

	go func() {
		defer close(l.done)
		l.mu.Lock()
		defer l.mu.Unlock()
		for {
			waitWithTimeout(l.cond, interval)
			if l.stopped {
				return
			}
			if _, err := os.Stat(mountDir); err != nil {
				log.Warn("liveness stat failed", zap.String("mount", mountDir), zap.Error(err))
			}
		}
	}()
	return l
}

// waitWithTimeout waits on cond (caller already holds cond.L) until
// signalled or timeout elapses. cond.Wait unlocks cond.L while parked and
// re-acquires it before returning, so the caller always regains the lock.
func waitWithTimeout(cond *sync.Cond, timeout time.Duration) {
	timer := time.AfterFunc(timeout, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	cond.Wait()
	timer.Stop()
}

func (l *liveness) stop() {
	l.mu.Lock()
	l.stopped = true
	l.cond.Broadcast()
	l.mu.Unlock()
	<-l.done
}
