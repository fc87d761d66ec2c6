package container_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/container"
	"github.com/wfexsgo/core/internal/container/containertest"
	"github.com/wfexsgo/core/internal/model"
)

func pushRandomImage(t *testing.T, registry, repo string) string {
	t.Helper()
	img, err := random.Image(1024, 2)
	require.NoError(t, err)
	ref, err := name.ParseReference(fmt.Sprintf("%s/%s:latest", registry, repo))
	require.NoError(t, err)
	require.NoError(t, remote.Write(ref, img))
	return ref.Name()
}

func TestDockerFactoryMaterializePlantsSymlinkAndFingerprint(t *testing.T) {
	reg := containertest.New(t, t.TempDir())
	tag := pushRandomImage(t, reg, "demo")

	f := &container.DockerFactory{}
	containersDir := t.TempDir()

	out, err := f.Materialize(context.Background(), []string{tag}, containersDir, false, false, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, model.ContainerDocker, out[0].Type)
	assert.NotEmpty(t, out[0].Fingerprint)
	assert.FileExists(t, filepath.Join(containersDir, out[0].LocalPath[len(containersDir)+1:]))
}

func TestSecureExecConflictDetection(t *testing.T) {
	sf := &container.SingularityFactory{UserNS: false, FuseAllowOther: false}
	err := container.CheckSecureExecConflicts(sf, true, false)
	require.Error(t, err, "secure_exec with no userns/allow_other must be refused")

	sf2 := &container.SingularityFactory{UserNS: true}
	err = container.CheckSecureExecConflicts(sf2, true, true)
	require.Error(t, err, "secure_exec + writable_containers on Singularity is always fatal")

	err = container.CheckSecureExecConflicts(sf2, true, false)
	assert.NoError(t, err)
}
