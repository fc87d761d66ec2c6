// Package controller implements the Enactment Controller (C10): it
// composes the Cache Handler, Scheme Fetchers, Secure Workdir, Workflow
// Resolver, Engine Adapter, Container Factory, Input Stager, Output
// Resolver, and Export Plugin components into the four-stage lifecycle
// state machine of spec §4.10, and owns the instance's marshal/unmarshal
// pipeline.
package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wfexsgo/core/internal/cache"
	"github.com/wfexsgo/core/internal/container"
	"github.com/wfexsgo/core/internal/engine"
	"github.com/wfexsgo/core/internal/export"
	"github.com/wfexsgo/core/internal/fetch"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/model/schema"
	"github.com/wfexsgo/core/internal/output"
	"github.com/wfexsgo/core/internal/resolver"
	"github.com/wfexsgo/core/internal/rocrate"
	"github.com/wfexsgo/core/internal/stage"
	"github.com/wfexsgo/core/internal/wferrors"
	"github.com/wfexsgo/core/internal/workdir"
)

const (
	metaConfigFile    = "workflow_meta.yaml"
	metaStageFile     = "stage-state.yaml"
	metaExecFile      = "execution-state.yaml"
	metaExportFile    = "export-state.yaml"
	instanceLockFile  = ".instance.lock"
	stageCrateFile    = "stage-crate.zip"
	executionCrateFile = "execution-crate.zip"
)

// Options configures a Controller: the shared, process-wide component
// registries plus per-open behavioral flags.
type Options struct {
	Cache      *cache.Handler
	Fetchers   *fetch.Registry
	Resolver   *resolver.Resolver
	Engines    *engine.Registry
	Containers *container.Registry
	Exports    *export.Registry

	SecurityContexts map[string]fetch.SecurityContext

	Encrypted        bool
	MountBackend     workdir.MountBackend
	LivenessInterval time.Duration

	Offline   bool
	FailOk    bool
	Overwrite bool

	Log *zap.Logger
}

// Controller is one enactment instance's live, in-memory state, backed by
// the marshalled records under its meta directory.
type Controller struct {
	opts Options
	log  *zap.Logger

	Instance *model.Instance
	Setup    model.StagedSetup
	Status   model.MarshallingStatus

	Meta       ConfigDoc
	Identified model.IdentifiedWorkflow
	Local      model.LocalWorkflow

	EngineDesc         engine.Descriptor
	EngineAdapter      engine.Adapter
	MaterializedEngine model.MaterializedWorkflowEngine

	Inputs  []model.MaterializedInput
	Outputs []model.MaterializedOutput

	Execution     engine.StagedExecution
	ExportActions []model.MaterializedExportAction

	workDir  *workdir.WorkDir
	lockFile *os.File
	mu       sync.Mutex
}

// New provisions a brand-new instance's working tree under rawDir (spec
// §3 Instance: "created on first staging"). Config must still be
// marshalled via MarshallConfig before staging may proceed.
func New(rawDir, nickname string, opts Options) (*Controller, error) {
	c, err := newController(rawDir, opts)
	if err != nil {
		return nil, err
	}
	c.Instance.Nickname = nickname
	c.Setup.Nickname = nickname
	c.Setup.CreatedAt = time.Now().UTC()
	return c, nil
}

// Open reopens an existing instance, unmarshalling config, stage,
// execution, and export records in order and stopping at the first
// absent file (spec §4.10: "stopping at the first absent file"). With
// FailOk, an unmarshal failure mid-chain flags the instance DAMAGED
// instead of aborting the process.
func Open(rawDir string, opts Options) (*Controller, error) {
	c, err := newController(rawDir, opts)
	if err != nil {
		return nil, err
	}

	if err := c.unmarshalConfig(); err != nil {
		if os.IsNotExist(underlyingNotExist(err)) {
			return c, nil
		}
		return c.handleOpenError(err)
	}
	if err := c.unmarshalStage(); err != nil {
		if os.IsNotExist(underlyingNotExist(err)) {
			return c, nil
		}
		return c.handleOpenError(err)
	}
	if err := c.unmarshalExecution(); err != nil {
		if os.IsNotExist(underlyingNotExist(err)) {
			return c, nil
		}
		return c.handleOpenError(err)
	}
	if err := c.unmarshalExport(); err != nil {
		if os.IsNotExist(underlyingNotExist(err)) {
			return c, nil
		}
		return c.handleOpenError(err)
	}
	return c, nil
}

func (c *Controller) handleOpenError(err error) (*Controller, error) {
	if c.opts.FailOk {
		c.Setup.IsDamaged = true
		return c, nil
	}
	return nil, err
}

func underlyingNotExist(err error) error {
	if os.IsNotExist(err) {
		return err
	}
	return nil
}

func newController(rawDir string, opts Options) (*Controller, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	lockFile, err := acquireInstanceLock(rawDir)
	if err != nil {
		return nil, wferrors.NewSetupError("acquire instance lockfile", err)
	}

	wd, err := workdir.Setup(rawDir, workdir.Options{
		Encrypted:        opts.Encrypted,
		Backend:          opts.MountBackend,
		LivenessInterval: opts.LivenessInterval,
		Log:              log,
	})
	if err != nil {
		lockFile.Close()
		if opts.FailOk {
			return &Controller{
				opts:     opts,
				log:      log,
				Instance: &model.Instance{RawDir: rawDir},
				Setup:    model.StagedSetup{RawDir: rawDir, IsDamaged: true},
			}, nil
		}
		return nil, err
	}

	instanceID, err := loadOrGenerateInstanceID(rawDir)
	if err != nil {
		lockFile.Close()
		return nil, wferrors.NewSetupError("provision instance id", err)
	}

	c := &Controller{
		opts:     opts,
		log:      log,
		workDir:  wd,
		lockFile: lockFile,
		Instance: &model.Instance{ID: instanceID, RawDir: rawDir},
	}
	c.Setup = layoutFor(rawDir, wd.WorkDir, wd.IsEncrypted)
	c.Setup.InstanceID = instanceID
	if err := c.Setup.MkdirAll(); err != nil {
		return nil, wferrors.NewSetupError("create instance directory layout", err)
	}
	return c, nil
}

const instanceIDFile = ".instance_id"

// loadOrGenerateInstanceID loads the opaque instance id persisted
// alongside .passphrase/.crypt/work, generating one on first use (spec
// §3 Instance: "identity: a generated opaque instance_id, unique per
// host").
func loadOrGenerateInstanceID(rawDir string) (string, error) {
	path := filepath.Join(rawDir, instanceIDFile)
	if data, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	id := model.NewInstance(rawDir, "").ID
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", err
	}
	return id, nil
}

// layoutFor builds the StagedSetup path table of spec §6's on-disk layout.
func layoutFor(rawDir, workDir string, encrypted bool) model.StagedSetup {
	return model.StagedSetup{
		RawDir:                  rawDir,
		WorkDir:                 workDir,
		InputsDir:               filepath.Join(workDir, "inputs"),
		OutputsDir:              filepath.Join(workDir, "outputs"),
		IntermediateDir:         filepath.Join(workDir, "intermediate"),
		EngineTweaksDir:         filepath.Join(workDir, "engineTweaks"),
		WorkflowDir:             filepath.Join(workDir, "workflow"),
		ConsolidatedWorkflowDir: filepath.Join(workDir, "consolidated-workflow"),
		ContainersDir:           filepath.Join(workDir, "containers"),
		MetaDir:                 filepath.Join(workDir, "meta"),
		TempDir:                 filepath.Join(rawDir, ".TEMP"),
		IsEncrypted:             encrypted,
	}
}

// Close tears down the secure workdir (if encrypted) and releases the
// instance lockfile. It does not delete any on-disk state.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.workDir != nil {
		err = c.workDir.Teardown()
	}
	if c.lockFile != nil {
		syscall.Flock(int(c.lockFile.Fd()), syscall.LOCK_UN)
		c.lockFile.Close()
	}
	return err
}

func acquireInstanceLock(rawDir string) (*os.File, error) {
	if err := os.MkdirAll(rawDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(rawDir, instanceLockFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("raw working directory already owned by a live instance: %w", err)
	}
	return f, nil
}

// --- lifecycle transitions (spec §4.10 table) ---

// MarshallConfig implements INIT -> CONFIGURED. meta is schema-validated
// before anything is written (spec §6).
func (c *Controller) MarshallConfig(meta ConfigDoc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Status.Config.OK() && !c.opts.Overwrite {
		return nil
	}
	if err := schema.ValidateWorkflowMeta(meta.toMap()); err != nil {
		return wferrors.NewConfigError("workflow_meta.yaml schema validation failed", err)
	}
	c.Meta = meta
	c.Setup.Nickname = meta.Nickname
	if err := c.writeYAML(metaConfigFile, meta); err != nil {
		return c.softOrFatal(err, &c.Status.Config)
	}
	c.Status.Config = model.Success(time.Now().UTC())
	return nil
}

// FetchWorkflow resolves Meta into an IdentifiedWorkflow and clones its
// remote repo into Setup.WorkflowDir (spec §4.4, §4.2 git fetcher).
func (c *Controller) FetchWorkflow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Status.Config.OK() {
		return wferrors.NewStateError("INIT", "STAGED", "config must be marshalled before staging")
	}
	identified, err := c.opts.Resolver.Resolve(ctx, resolver.Request{
		WorkflowID:     c.Meta.WorkflowID,
		VersionID:      c.Meta.Version,
		DescriptorType: c.Meta.WorkflowType,
		TRSEndpoint:    c.Meta.TRSEndpoint,
	})
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	c.Identified = identified

	git := &fetch.GitFetcher{}
	dir, checkout, err := git.FetchRepo(ctx, identified.RemoteRepo, c.Setup.WorkflowDir)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	c.Local = model.LocalWorkflow{
		Dir:               dir,
		RelPath:           identified.RemoteRepo.RelPath,
		EffectiveCheckout: checkout,
	}
	return nil
}

// SetupEngine picks (via Meta.WorkflowType or by Identify-sniffing every
// registered adapter) and materializes the engine that will run Local
// (spec §4.5 Identify / MaterializeEngine).
func (c *Controller) SetupEngine(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	desc, adapter, ok := c.lookupEngine()
	if !ok {
		return c.softOrFatal(wferrors.NewEngineError("no registered engine recognizes this workflow", -1, nil), &c.Status.Stage)
	}

	version, refined, ok, err := adapter.Identify(ctx, c.Local, c.Meta.Version)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	if !ok {
		return c.softOrFatal(wferrors.NewEngineError(fmt.Sprintf("engine %s did not recognize the fetched workflow tree", desc.ShortName), -1, nil), &c.Status.Stage)
	}
	c.Local = refined
	c.EngineDesc = desc
	c.EngineAdapter = adapter

	me, err := adapter.MaterializeEngine(ctx, c.Local, version)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	me.Instance = c.Instance.ID
	c.MaterializedEngine = me
	return nil
}

func (c *Controller) lookupEngine() (engine.Descriptor, engine.Adapter, bool) {
	if c.Identified.WorkflowType != "" {
		if d, a, ok := c.opts.Engines.ByShortName(strings.ToLower(c.Identified.WorkflowType)); ok {
			return d, a, ok
		}
		if d, a, ok := c.opts.Engines.ByTRSDescriptor(c.Identified.WorkflowType); ok {
			return d, a, ok
		}
	}
	for _, e := range c.opts.Engines.All() {
		if _, _, ok, _ := e.Adapter.Identify(context.Background(), c.Local, c.Meta.Version); ok {
			return e.Descriptor, e.Adapter, true
		}
	}
	return engine.Descriptor{}, nil, false
}

// MaterializeWorkflow resolves the workflow's import/include directives
// into the consolidated-workflow tree and materializes the containers it
// (and the engine itself) need (spec §4.5 MaterializeWorkflow/SideContainers,
// §4.6 Materialize/Deploy).
func (c *Controller) MaterializeWorkflow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	me, tags, err := c.EngineAdapter.MaterializeWorkflow(ctx, c.MaterializedEngine, c.Setup.ConsolidatedWorkflowDir, c.opts.Offline)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	tags = append(tags, c.EngineAdapter.SideContainers()...)
	c.MaterializedEngine = me

	if len(tags) == 0 || c.opts.Containers == nil {
		return nil
	}

	factory, ok := c.pickContainerFactory()
	if !ok {
		return c.softOrFatal(wferrors.NewContainerError("no registered container factory supports this engine", nil), &c.Status.Stage)
	}

	containers, err := factory.Materialize(ctx, tags, c.Setup.ContainersDir, c.opts.Offline, false, nil)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	deployed, err := factory.Deploy(ctx, containers, c.Setup.ContainersDir, false)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	c.MaterializedEngine.ContainersPath = c.Setup.ContainersDir
	c.MaterializedEngine.Containers = deployed
	c.MaterializedEngine.OperationalContainers = deployed
	return nil
}

func (c *Controller) pickContainerFactory() (container.Factory, bool) {
	for _, t := range c.EngineAdapter.SupportedContainerTypes() {
		if f, ok := c.opts.Containers.Get(t); ok {
			if err := container.CheckSecureExecConflicts(f, c.Setup.SecureExec, false); err != nil {
				continue
			}
			return f, true
		}
	}
	return nil, false
}

// MaterializeInputs runs the Input Stager (C7) over Meta.Params (spec §4.7).
func (c *Controller) MaterializeInputs(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	params, err := stage.ParseParams(c.Meta.Params)
	if err != nil {
		return c.softOrFatal(wferrors.NewConfigError("parse params tree", err), &c.Status.Stage)
	}

	stager := &stage.Stager{
		Cache:            c.opts.Cache,
		Fetchers:         c.opts.Fetchers,
		SecurityContexts: c.opts.SecurityContexts,
		OutputsDir:       c.Setup.OutputsDir,
		InputsDir:        c.Setup.InputsDir,
		ParanoidMode:     c.Meta.ParanoidMode,
		Log:              c.log,
	}
	inputs, err := stager.Stage(ctx, params, c.Meta.Placeholders)
	if err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	c.Inputs = inputs
	return nil
}

// MarshallStage implements CONFIGURED -> STAGED's terminal write.
func (c *Controller) MarshallStage() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Status.Config.OK() {
		return wferrors.NewStateError("INIT", "STAGED", "config must be marshalled first")
	}
	if c.Status.Stage.OK() && !c.opts.Overwrite {
		return nil
	}
	doc := stageStateDoc{
		Identified:  c.Identified,
		Local:       c.Local,
		EngineDesc:  c.EngineDesc.ShortName,
		Materialized: c.MaterializedEngine,
		Inputs:      c.Inputs,
	}
	if err := c.writeYAML(metaStageFile, doc); err != nil {
		return c.softOrFatal(err, &c.Status.Stage)
	}
	c.Status.Stage = model.Success(time.Now().UTC())
	return nil
}

// ExecuteWorkflow implements STAGED -> EXECUTED: launches the engine,
// resolves declared outputs, and writes execution-state.yaml. It returns
// the engine's exit code "faithfully" per spec §6 even when err != nil.
func (c *Controller) ExecuteWorkflow(ctx context.Context, environment map[string]string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Status.Stage.OK() {
		return -1, wferrors.NewStateError("STAGED", "EXECUTED", "stage must be marshalled before execution")
	}

	expected, err := output.ParseExpectedOutputs(c.Meta.Outputs)
	if err != nil {
		return -1, c.softOrFatal(wferrors.NewConfigError("parse outputs tree", err), &c.Status.Execution)
	}
	outputNames := make([]string, 0, len(expected))
	for n := range expected {
		outputNames = append(outputNames, n)
	}
	sort.Strings(outputNames)

	startedAt := time.Now().UTC()
	se, launchErr := c.EngineAdapter.Launch(ctx, c.MaterializedEngine, c.Inputs, environment, outputNames)
	endedAt := time.Now().UTC()
	c.Execution = se

	outResolver := &output.Resolver{
		OutputsDir:         c.Setup.OutputsDir,
		HasExplicitOutputs: c.EngineAdapter.HasExplicitOutputs(),
		Log:                c.log,
	}
	outputs, resolveErr := outResolver.Resolve(ctx, expected, c.Inputs, se.ExplicitOutputs)
	if resolveErr == nil {
		c.Outputs = outputs
	}

	doc := executionStateDoc{
		ExitCode:  se.ExitCode,
		StdoutLog: se.StdoutLog,
		StderrLog: se.StderrLog,
		StartedAt: startedAt,
		EndedAt:   endedAt,
		Outputs:   c.Outputs,
	}
	if err := c.writeYAML(metaExecFile, doc); err != nil {
		return se.ExitCode, c.softOrFatal(err, &c.Status.Execution)
	}

	if launchErr != nil {
		if soft := c.softOrFatal(launchErr, &c.Status.Execution); soft != nil {
			return se.ExitCode, soft
		}
		return se.ExitCode, nil
	}
	c.Status.Execution = model.Success(time.Now().UTC())
	return se.ExitCode, nil
}

// ExportResults implements EXECUTED -> EXPORTED: runs each requested
// action through the Export Plugin driver and appends results to
// export-state.yaml. credentials is never persisted (spec §4.10:
// "Credential tables are never persisted").
func (c *Controller) ExportResults(ctx context.Context, actions []model.ExportAction, credentials map[string]map[string]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Status.Stage.OK() {
		return wferrors.NewStateError("STAGED", "EXPORTED", "stage must be marshalled before export")
	}

	driver := &export.Driver{Plugins: c.opts.Exports}
	for _, action := range export.SortActions(actions) {
		result, err := driver.Execute(ctx, action, c.Setup.WorkDir, c.Inputs, c.Outputs, credentials)
		if err != nil {
			if soft := c.softOrFatal(err, &c.Status.Export); soft != nil {
				return soft
			}
			continue
		}
		c.ExportActions = append(c.ExportActions, result)
	}

	if err := c.writeYAML(metaExportFile, exportStateDoc{Actions: c.ExportActions}); err != nil {
		return c.softOrFatal(err, &c.Status.Export)
	}
	c.Status.Export = model.Success(time.Now().UTC())
	return nil
}

// DefaultExportActions converts Meta.DefaultActions into model.ExportAction
// values, for callers that want to run the config's declared actions
// verbatim.
func (c *Controller) DefaultExportActions() ([]model.ExportAction, error) {
	out := make([]model.ExportAction, 0, len(c.Meta.DefaultActions))
	for _, a := range c.Meta.DefaultActions {
		ea, err := a.toExportAction()
		if err != nil {
			return nil, err
		}
		out = append(out, ea)
	}
	return out, nil
}

// expectedOutputs re-parses Meta.Outputs into the map the RO-Crate
// emitter and the output resolver both consume.
func (c *Controller) expectedOutputs() (map[string]*output.ExpectedOutput, error) {
	return output.ParseExpectedOutputs(c.Meta.Outputs)
}

// EmitStageCrate serializes the stage crate (workflow entry point,
// formal parameters, container software entries) and writes it zipped
// to meta/stage-crate.zip (spec §4.11).
func (c *Controller) EmitStageCrate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Status.Stage.OK() {
		return wferrors.NewStateError("STAGED", "stage-crate", "stage must be marshalled before the stage crate can be emitted")
	}
	expected, err := c.expectedOutputs()
	if err != nil {
		return wferrors.NewConfigError("parse outputs tree", err)
	}
	crate := rocrate.BuildStageCrate(c.MaterializedEngine, c.EngineDesc.ShortName, c.Inputs, expected, c.Setup.ConsolidatedWorkflowDir)
	return c.writeCrate(stageCrateFile, crate)
}

// EmitExecutionCrate extends the stage crate with a CreateAction
// bracketing the run and writes it zipped to meta/execution-crate.zip
// (spec §4.11).
func (c *Controller) EmitExecutionCrate(startedAt, endedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Status.Execution.OK() {
		return wferrors.NewStateError("EXECUTED", "execution-crate", "execution must be marshalled before the execution crate can be emitted")
	}
	expected, err := c.expectedOutputs()
	if err != nil {
		return wferrors.NewConfigError("parse outputs tree", err)
	}
	crate := rocrate.BuildExecutionCrate(c.MaterializedEngine, c.EngineDesc.ShortName, c.Inputs, expected, c.Outputs, c.Setup.ConsolidatedWorkflowDir, c.Setup.OutputsDir, startedAt, endedAt)
	return c.writeCrate(executionCrateFile, crate)
}

func (c *Controller) writeCrate(name string, crate *rocrate.Crate) error {
	if err := os.MkdirAll(c.Setup.MetaDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.Setup.MetaDir, name)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := crate.WriteZip(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// softOrFatal applies spec §7's propagation rule: with FailOk, the
// corresponding marshalling-status field becomes "damaged" and the error
// is swallowed (nil returned); otherwise the error is surfaced unwrapped.
func (c *Controller) softOrFatal(err error, status **model.StageStatus) error {
	if err == nil {
		return nil
	}
	if !c.opts.FailOk {
		return err
	}
	*status = model.Damaged()
	c.Setup.IsDamaged = true
	c.log.Warn("soft failure under fail_ok", zap.Error(wferrors.Soft(err)))
	return nil
}

// --- marshalling records ---

type stageStateDoc struct {
	Identified   model.IdentifiedWorkflow          `yaml:"identified_workflow"`
	Local        model.LocalWorkflow               `yaml:"local_workflow"`
	EngineDesc   string                             `yaml:"engine_desc"`
	Materialized model.MaterializedWorkflowEngine  `yaml:"materialized_engine"`
	Inputs       []model.MaterializedInput          `yaml:"inputs"`
}

type executionStateDoc struct {
	ExitCode  int                         `yaml:"exit_code"`
	StdoutLog string                      `yaml:"stdout_log,omitempty"`
	StderrLog string                      `yaml:"stderr_log,omitempty"`
	StartedAt time.Time                   `yaml:"started_at"`
	EndedAt   time.Time                   `yaml:"ended_at"`
	Outputs   []model.MaterializedOutput  `yaml:"outputs"`
}

type exportStateDoc struct {
	Actions []model.MaterializedExportAction `yaml:"actions"`
}

func (c *Controller) writeYAML(name string, doc any) error {
	if err := os.MkdirAll(c.Setup.MetaDir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	path := filepath.Join(c.Setup.MetaDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Controller) readYAML(name string, doc any) error {
	path := filepath.Join(c.Setup.MetaDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, doc)
}

func (c *Controller) statMtime(name string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(c.Setup.MetaDir, name))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime().UTC(), nil
}

func (c *Controller) unmarshalConfig() error {
	var doc ConfigDoc
	if err := c.readYAML(metaConfigFile, &doc); err != nil {
		return err
	}
	ts, err := c.statMtime(metaConfigFile)
	if err != nil {
		return err
	}
	c.Meta = doc
	c.Instance.Nickname = doc.Nickname
	c.Setup.Nickname = doc.Nickname
	c.Status.Config = model.Success(ts)
	return nil
}

func (c *Controller) unmarshalStage() error {
	var doc stageStateDoc
	if err := c.readYAML(metaStageFile, &doc); err != nil {
		return err
	}
	ts, err := c.statMtime(metaStageFile)
	if err != nil {
		return err
	}
	c.Identified = doc.Identified
	c.Local = doc.Local
	c.MaterializedEngine = doc.Materialized
	c.Inputs = doc.Inputs
	if doc.EngineDesc != "" && c.opts.Engines != nil {
		if desc, adapter, ok := c.opts.Engines.ByShortName(doc.EngineDesc); ok {
			c.EngineDesc = desc
			c.EngineAdapter = adapter
		}
	}
	c.Status.Stage = model.Success(ts)
	return nil
}

func (c *Controller) unmarshalExecution() error {
	var doc executionStateDoc
	if err := c.readYAML(metaExecFile, &doc); err != nil {
		return err
	}
	ts, err := c.statMtime(metaExecFile)
	if err != nil {
		return err
	}
	c.Execution = engine.StagedExecution{ExitCode: doc.ExitCode, StdoutLog: doc.StdoutLog, StderrLog: doc.StderrLog}
	c.Outputs = doc.Outputs
	c.Status.Execution = model.Success(ts)
	return nil
}

func (c *Controller) unmarshalExport() error {
	var doc exportStateDoc
	if err := c.readYAML(metaExportFile, &doc); err != nil {
		return err
	}
	ts, err := c.statMtime(metaExportFile)
	if err != nil {
		return err
	}
	c.ExportActions = doc.Actions
	c.Status.Export = model.Success(ts)
	return nil
}
