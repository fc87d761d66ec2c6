package container

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/docker/docker/client"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"go.uber.org/zap"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// DockerFactory materializes images via go-containerregistry's remote
// puller and registers them with a Docker-style daemon via
// docker/docker/client, generalizing the teacher's imgutil.go
// (GetRemoteImage/ExtractEnvbuilderFromImage) from a single
// hardcoded-binary extraction into a general per-tag materialize/deploy
// factory.
type DockerFactory struct {
	Log *zap.Logger

	// dockerClient is created lazily since it dials a local daemon socket.
	dockerClient *client.Client
}

func (f *DockerFactory) ContainerType() model.ContainerType { return model.ContainerDocker }
func (f *DockerFactory) EngineVersion() string              { return "" }

func (f *DockerFactory) logInfo(msg string, fields ...zap.Field) {
	if f.Log != nil {
		f.Log.Info(msg, fields...)
	}
}

func (f *DockerFactory) Architecture() (string, string) {
	return runtime.GOOS, runtime.GOARCH
}

func (f *DockerFactory) Supports(capability string) bool {
	// Docker-style daemons run images in their own namespaces already;
	// neither capability flag is meaningful for this factory.
	return false
}

// Materialize pulls each tag's manifest via go-containerregistry (the
// same remote.Image(ref, remote.WithAuthFromKeychain(...)) call the
// teacher used to locate the envbuilder binary inside an image), records
// its digest as the fingerprint, and plants a symlink in containersDir
// named after the tag so the engine can reference it by convention.
func (f *DockerFactory) Materialize(ctx context.Context, tags []string, containersDir string, offline bool, force bool, injectable []string) ([]model.Container, error) {
	if err := os.MkdirAll(containersDir, 0o755); err != nil {
		return nil, err
	}

	var out []model.Container
	for _, tag := range tags {
		f.logInfo("materializing container", zap.String("tag", tag))
		c, err := f.materializeOne(tag, containersDir, force)
		if err != nil {
			if offline {
				return nil, wferrors.NewContainerError(fmt.Sprintf("offline materialize of %s", tag), err)
			}
			return nil, wferrors.NewContainerError(fmt.Sprintf("materialize %s", tag), err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *DockerFactory) materializeOne(tag, containersDir string, force bool) (model.Container, error) {
	ref, err := name.ParseReference(tag)
	if err != nil {
		return model.Container{}, fmt.Errorf("parse reference: %w", err)
	}

	img, err := remote.Image(ref, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return model.Container{}, fmt.Errorf("check remote image: %w", err)
	}

	digest, err := img.Digest()
	if err != nil {
		return model.Container{}, fmt.Errorf("digest image: %w", err)
	}

	osName, arch, err := platformOf(img)
	if err != nil {
		osName, arch = runtime.GOOS, runtime.GOARCH
	}

	linkName := filepath.Join(containersDir, sanitizeTagName(tag))
	if force {
		os.Remove(linkName)
	}
	if _, err := os.Lstat(linkName); os.IsNotExist(err) {
		if err := os.Symlink(tag, linkName); err != nil {
			return model.Container{}, fmt.Errorf("plant container symlink: %w", err)
		}
	}

	return model.Container{
		Type:            model.ContainerDocker,
		TaggedName:      tag,
		Fingerprint:     digest.String(),
		LocalPath:       linkName,
		OperatingSystem: osName,
		Architecture:    arch,
	}, nil
}

func platformOf(img v1.Image) (string, string, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return "", "", err
	}
	return cfg.OS, cfg.Architecture, nil
}

// Deploy loads each container into a local Docker-style daemon. This is
// the generalization of what the teacher's ExtractEnvbuilderFromImage did
// implicitly by pulling layers directly; here the image is registered
// with the daemon instead of having a single file extracted from it.
func (f *DockerFactory) Deploy(ctx context.Context, containers []model.Container, dir string, force bool) ([]model.Container, error) {
	cli, err := f.client()
	if err != nil {
		return nil, wferrors.NewContainerError("connect to docker daemon", err)
	}

	for i, c := range containers {
		archivePath := filepath.Join(dir, sanitizeTagName(c.TaggedName)+".tar")
		if _, err := os.Stat(archivePath); err == nil {
			f.logInfo("loading container image into daemon", zap.String("tag", c.TaggedName))
			f, ferr := os.Open(archivePath)
			if ferr != nil {
				return nil, wferrors.NewContainerError("open image tarball", ferr)
			}
			resp, err := cli.ImageLoad(ctx, f, true)
			f.Close()
			if err != nil {
				return nil, wferrors.NewContainerError(fmt.Sprintf("load %s", c.TaggedName), err)
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		containers[i] = c
	}
	return containers, nil
}

func (f *DockerFactory) client() (*client.Client, error) {
	if f.dockerClient != nil {
		return f.dockerClient, nil
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	f.dockerClient = cli
	return cli, nil
}

func sanitizeTagName(tag string) string {
	out := make([]byte, 0, len(tag))
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
