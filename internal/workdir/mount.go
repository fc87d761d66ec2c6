package workdir

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wfexsgo/core/internal/procutil"
)

// EncFSBackend shells out to the encfs FUSE driver.
type EncFSBackend struct{ Binary string }

func (b *EncFSBackend) Name() string { return "encfs" }

func (b *EncFSBackend) binary() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "encfs"
}

func (b *EncFSBackend) Mount(cryptDir, mountDir, passphrase string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out nullWriter
	env := append(os.Environ(), "ENCFS6_CONFIG="+cryptDir+"/.encfs6.xml")
	return procutil.Run(ctx, procutil.Options{Env: env}, out, out,
		b.binary(), "--standard", "--extpass=echo "+passphrase, cryptDir, mountDir)
}

func (b *EncFSBackend) Unmount(mountDir string, lazy bool) error {
	return fusermount(mountDir, lazy)
}

// GocryptfsBackend shells out to the gocryptfs FUSE driver.
type GocryptfsBackend struct{ Binary string }

func (b *GocryptfsBackend) Name() string { return "gocryptfs" }

func (b *GocryptfsBackend) binary() string {
	if b.Binary != "" {
		return b.Binary
	}
	return "gocryptfs"
}

func (b *GocryptfsBackend) Mount(cryptDir, mountDir, passphrase string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	var out nullWriter

	if _, err := os.Stat(cryptDir + "/gocryptfs.conf"); os.IsNotExist(err) {
		if err := procutil.Run(ctx, procutil.Options{}, out, out,
			b.binary(), "-init", "-q", "-extpass", "echo "+passphrase, cryptDir); err != nil {
			return fmt.Errorf("init gocryptfs vault: %w", err)
		}
	}
	return procutil.Run(ctx, procutil.Options{}, out, out,
		b.binary(), "-extpass", "echo "+passphrase, cryptDir, mountDir)
}

func (b *GocryptfsBackend) Unmount(mountDir string, lazy bool) error {
	return fusermount(mountDir, lazy)
}

func fusermount(mountDir string, lazy bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var out nullWriter
	args := []string{"-u"}
	if lazy {
		args = append(args, "-z")
	}
	args = append(args, mountDir)
	return procutil.Run(ctx, procutil.Options{}, out, out, "fusermount", args...)
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
