package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wfexsgo/core/internal/logadapt"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/procutil"
	"github.com/wfexsgo/core/internal/wferrors"
)

// NextflowAdapter is the Nextflow counterpart to CWLAdapter: a thin
// dispatcher over the `nextflow` CLI, grounded the same way on
// original_source/wfexs_backend/workflow_engines/__init__.py.
type NextflowAdapter struct {
	Binary string

	// Log, if set, receives leveled progress messages around the nextflow
	// subprocess (mirrors the teacher's tfLogFunc bridge).
	Log logadapt.Func
}

func (a *NextflowAdapter) log(level logadapt.Level, format string, args ...any) {
	if a.Log != nil {
		a.Log(level, format, args...)
	}
}

func (a *NextflowAdapter) binary() string {
	if a.Binary != "" {
		return a.Binary
	}
	return "nextflow"
}

var NextflowDescriptor = Descriptor{
	ShortName:     "nextflow",
	URIPatterns:   []string{`(?i)nextflow`},
	CanonicalURL:  "https://www.nextflow.io/",
	TRSDescriptor: "NFL",
	Priority:      5,
	Enabled:       true,
}

func (a *NextflowAdapter) Identify(_ context.Context, local model.LocalWorkflow, desiredVersion string) (string, model.LocalWorkflow, bool, error) {
	candidates := []string{"main.nf", "nextflow.config"}
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(local.Dir, c)); err == nil {
			refined := local
			if refined.RelPath == "" && c == "main.nf" {
				refined.RelPath = c
			}
			return desiredVersion, refined, true, nil
		}
	}
	return "", local, false, nil
}

func (a *NextflowAdapter) MaterializeEngine(ctx context.Context, local model.LocalWorkflow, engineVersion string) (model.MaterializedWorkflowEngine, error) {
	ctx, cancel := contextWithDefaultTimeout(ctx)
	defer cancel()
	var out strings.Builder
	if err := procutil.Run(ctx, procutil.Options{}, &out, &out, a.binary(), "-version"); err != nil {
		return model.MaterializedWorkflowEngine{}, wferrors.NewEngineError("nextflow not available", -1, err)
	}
	return model.MaterializedWorkflowEngine{
		Instance:    a.binary(),
		Version:     engineVersion,
		Fingerprint: fmt.Sprintf("nextflow:%s", strings.TrimSpace(out.String())),
		Workflow:    local,
	}, nil
}

func (a *NextflowAdapter) MaterializeWorkflow(_ context.Context, me model.MaterializedWorkflowEngine, consolidatedDir string, offline bool) (model.MaterializedWorkflowEngine, []string, error) {
	dest := filepath.Join(consolidatedDir, filepath.Base(me.Workflow.Dir))
	if err := copyDirShallow(me.Workflow.Dir, dest); err != nil {
		return me, nil, wferrors.NewEngineError("consolidate Nextflow workflow tree", -1, err)
	}
	me.Workflow.Dir = dest
	return me, nil, nil
}

// SideContainers returns nil: the adapter declares no container image for
// the Nextflow runtime itself.
func (a *NextflowAdapter) SideContainers() []string { return nil }

func (a *NextflowAdapter) Launch(ctx context.Context, me model.MaterializedWorkflowEngine, inputs []model.MaterializedInput, environment map[string]string, expectedOutputs []string) (StagedExecution, error) {
	ctx, cancel := contextWithDefaultTimeout(ctx)
	defer cancel()
	var out, errb strings.Builder
	args := []string{"run", filepath.Join(me.Workflow.Dir, me.Workflow.RelPath)}
	env := envSlice(environment)
	a.log(logadapt.LevelInfo, "launching %s %s", a.binary(), strings.Join(args, " "))
	err := procutil.Run(ctx, procutil.Options{Env: env}, &out, &errb, a.binary(), args...)
	se := StagedExecution{StdoutLog: out.String(), StderrLog: errb.String()}
	if err != nil {
		se.ExitCode = exitCodeOf(err)
		a.log(logadapt.LevelError, "nextflow run failed: %v", err)
		return se, wferrors.NewEngineError("nextflow run failed", se.ExitCode, err)
	}
	return se, nil
}

func (a *NextflowAdapter) SupportedContainerTypes() []model.ContainerType {
	return []model.ContainerType{model.ContainerDocker, model.ContainerSingularity}
}
func (a *NextflowAdapter) SupportedSecureContainerTypes() []model.ContainerType {
	return []model.ContainerType{model.ContainerSingularity}
}
func (a *NextflowAdapter) HasExplicitOutputs() bool { return false }
