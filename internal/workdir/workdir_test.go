package workdir_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/workdir"
)

type fakeBackend struct {
	mounted   bool
	unmounted bool
	lazy      bool
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Mount(cryptDir, mountDir, passphrase string) error {
	f.mounted = true
	return nil
}

func (f *fakeBackend) Unmount(mountDir string, lazy bool) error {
	f.unmounted = true
	f.lazy = lazy
	return nil
}

func TestRawWorkDirUsesRawDirDirectly(t *testing.T) {
	dir := t.TempDir()
	wd, err := workdir.Setup(dir, workdir.Options{})
	require.NoError(t, err)
	assert.Equal(t, dir, wd.WorkDir)
	assert.False(t, wd.IsEncrypted)
	assert.NoError(t, wd.Teardown())
}

func TestEncryptedWorkDirGeneratesPassphraseAndMounts(t *testing.T) {
	dir := t.TempDir()
	backend := &fakeBackend{}
	wd, err := workdir.Setup(dir, workdir.Options{Encrypted: true, Backend: backend})
	require.NoError(t, err)
	assert.True(t, wd.IsEncrypted)
	assert.True(t, backend.mounted)
	assert.FileExists(t, filepath.Join(dir, ".passphrase"))

	require.NoError(t, wd.Teardown())
	assert.True(t, backend.unmounted)
	assert.True(t, backend.lazy, "teardown must unmount lazily per spec")
}

func TestEncryptedWorkDirRejectsMissingBackend(t *testing.T) {
	_, err := workdir.Setup(t.TempDir(), workdir.Options{Encrypted: true})
	require.Error(t, err)
}
