// Package container declares the Container Factory Interface (C6) and a
// registry of concrete factories (Docker-style daemon, Singularity-style
// file-based), following the same capability-set-without-inheritance
// design used by internal/engine.
package container

import (
	"context"

	"github.com/wfexsgo/core/internal/model"
)

// Capability names advertised by a Factory (spec §4.6: "supports(...)").
const (
	CapUserNS          = "userns"
	CapFuseAllowOther  = "user_allow_other"
)

// Factory is implemented by each concrete container runtime.
type Factory interface {
	ContainerType() model.ContainerType
	EngineVersion() string
	Architecture() (os string, arch string)
	Supports(capability string) bool

	// Materialize downloads (or copies from an injectable bundle) each
	// tag into a shared cache keyed by tagged name, then plants an
	// engine-convention-named symlink inside containersDir.
	Materialize(ctx context.Context, tags []string, containersDir string, offline bool, force bool, injectable []string) ([]model.Container, error)

	// Deploy registers containers into the local runtime: a no-op for
	// Singularity-style file-based runtimes, a `load` for Docker-style
	// daemons.
	Deploy(ctx context.Context, containers []model.Container, dir string, force bool) ([]model.Container, error)
}

// Registry holds the enabled container factories, keyed by container
// type (spec's tagged-variant registry pattern).
type Registry struct {
	factories map[model.ContainerType]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[model.ContainerType]Factory)}
}

func (r *Registry) Register(f Factory) {
	r.factories[f.ContainerType()] = f
}

func (r *Registry) Get(t model.ContainerType) (Factory, bool) {
	f, ok := r.factories[t]
	return f, ok
}

// CheckSecureExecConflicts enforces spec §4.6's capability rules:
// secure_exec with Singularity and neither userns nor FUSE
// user_allow_other available is refused; secure_exec combined with
// writable_containers on Singularity is always fatal.
func CheckSecureExecConflicts(f Factory, secureExec, writableContainers bool) error {
	if !secureExec || f.ContainerType() != model.ContainerSingularity {
		return nil
	}
	if writableContainers {
		return errSecureWritableConflict
	}
	if !f.Supports(CapUserNS) && !f.Supports(CapFuseAllowOther) {
		return errSecureExecUnavailable
	}
	return nil
}
