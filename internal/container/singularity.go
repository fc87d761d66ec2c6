package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/procutil"
	"github.com/wfexsgo/core/internal/wferrors"
)

// SingularityFactory materializes each tag into a single SIF file under
// a shared cache, mirroring the two-step conveyor+packer shape of
// apptainer's build/sources conveyorPacker_oci.go (fetch the OCI image,
// then pack it into the runtime's native file format) without
// reimplementing image-layer manipulation, which is explicitly out of
// scope (spec Non-goals: "implementing container builds or image-layer
// manipulation"). It shells out to `singularity build` for the actual
// OCI-to-SIF conversion.
type SingularityFactory struct {
	Binary         string
	UserNS         bool
	FuseAllowOther bool
}

func (f *SingularityFactory) binary() string {
	if f.Binary != "" {
		return f.Binary
	}
	return "singularity"
}

func (f *SingularityFactory) ContainerType() model.ContainerType { return model.ContainerSingularity }
func (f *SingularityFactory) EngineVersion() string              { return "" }

func (f *SingularityFactory) Architecture() (string, string) {
	return runtime.GOOS, runtime.GOARCH
}

func (f *SingularityFactory) Supports(capability string) bool {
	switch capability {
	case CapUserNS:
		return f.UserNS
	case CapFuseAllowOther:
		return f.FuseAllowOther
	default:
		return false
	}
}

// Materialize converts each OCI tag into a cached .sif file, planting a
// symlink inside containersDir named after the tag, the same
// engine-convention-naming the DockerFactory uses.
func (f *SingularityFactory) Materialize(ctx context.Context, tags []string, containersDir string, offline bool, force bool, injectable []string) ([]model.Container, error) {
	if err := os.MkdirAll(containersDir, 0o755); err != nil {
		return nil, err
	}

	var out []model.Container
	for _, tag := range tags {
		sifPath := filepath.Join(containersDir, ".cache", sanitizeTagName(tag)+".sif")
		if err := os.MkdirAll(filepath.Dir(sifPath), 0o755); err != nil {
			return nil, err
		}

		digest, err := f.digestFor(tag)
		if err != nil && !offline {
			return nil, wferrors.NewContainerError(fmt.Sprintf("resolve digest for %s", tag), err)
		}

		if _, err := os.Stat(sifPath); os.IsNotExist(err) || force {
			if offline {
				return nil, wferrors.NewContainerError(fmt.Sprintf("offline materialize of %s: not cached", tag), nil)
			}
			if err := f.buildSIF(ctx, tag, sifPath); err != nil {
				return nil, wferrors.NewContainerError(fmt.Sprintf("build SIF for %s", tag), err)
			}
		}

		linkName := filepath.Join(containersDir, sanitizeTagName(tag)+".sif")
		os.Remove(linkName)
		if err := os.Symlink(sifPath, linkName); err != nil {
			return nil, wferrors.NewContainerError("plant SIF symlink", err)
		}

		osName, arch := f.Architecture()
		out = append(out, model.Container{
			Type:            model.ContainerSingularity,
			TaggedName:      tag,
			Fingerprint:     digest,
			LocalPath:       linkName,
			OperatingSystem: osName,
			Architecture:    arch,
		})
	}
	return out, nil
}

func (f *SingularityFactory) digestFor(tag string) (string, error) {
	ref, err := name.ParseReference(tag)
	if err != nil {
		return "", err
	}
	img, err := remote.Image(ref, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return "", err
	}
	d, err := img.Digest()
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

func (f *SingularityFactory) buildSIF(ctx context.Context, tag, destPath string) error {
	var out nullWriter
	return procutil.Run(ctx, procutil.Options{}, out, out, f.binary(), "build", "--force", destPath, "docker://"+tag)
}

// Deploy is a no-op for Singularity-style file-based runtimes (spec
// §4.6: "a no-op for Singularity-style file-based runtimes"); the .sif
// file materialized above is already directly executable.
func (f *SingularityFactory) Deploy(ctx context.Context, containers []model.Container, dir string, force bool) ([]model.Container, error) {
	return containers, nil
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }
