package main

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/container"
	"github.com/wfexsgo/core/internal/controller"
	"github.com/wfexsgo/core/internal/engine"
	"github.com/wfexsgo/core/internal/export"
	"github.com/wfexsgo/core/internal/fetch"
	"github.com/wfexsgo/core/internal/logadapt"
	"github.com/wfexsgo/core/internal/resolver"
	"github.com/wfexsgo/core/internal/workdir"
)

// buildOptions wires the process-wide component registries (engine
// adapters, container factories, scheme fetchers, the shared cache, and
// an empty export plugin registry external collaborators populate) into
// a controller.Options shared by every lifecycle subcommand.
func buildOptions(log *zap.Logger) (controller.Options, error) {
	cacheDir := flagCacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return controller.Options{}, err
		}
		cacheDir = filepath.Join(home, ".cache", "wfexsgo")
	}
	cacheHandler, err := cache.New(cacheDir, log)
	if err != nil {
		return controller.Options{}, err
	}

	logFunc := logadapt.FromZap(log)

	engines := engine.NewRegistry()
	engines.Register(engine.CWLDescriptor, &engine.CWLAdapter{Log: logFunc})
	engines.Register(engine.NextflowDescriptor, &engine.NextflowAdapter{Log: logFunc})

	containers := container.NewRegistry()
	containers.Register(&container.DockerFactory{Log: log})
	containers.Register(&container.SingularityFactory{})

	securityContexts := map[string]fetch.SecurityContext{}
	fetchers := fetch.NewRegistry(nil, securityContexts)

	res := resolver.New(nil, engines)

	var backend workdir.MountBackend
	switch flagMountBackend {
	case "gocryptfs":
		backend = &workdir.GocryptfsBackend{}
	default:
		backend = &workdir.EncFSBackend{}
	}

	return controller.Options{
		Cache:            cacheHandler,
		Fetchers:         fetchers,
		Resolver:         res,
		Engines:          engines,
		Containers:       containers,
		Exports:          export.NewRegistry(),
		SecurityContexts: securityContexts,
		Encrypted:        flagEncrypted,
		MountBackend:     backend,
		LivenessInterval: 60 * time.Second,
		Offline:          flagOffline,
		FailOk:           flagFailOk,
		Overwrite:        flagOverwrite,
		Log:              log,
	}, nil
}
