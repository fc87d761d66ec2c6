// Package model holds the value types shared across the enactment core:
// instances, staged-directory layout, marshalling status, and the
// workflow/input/output/container/export records produced by each
// component (spec §3).
package model

import (
	"os"
	"time"

	"github.com/google/uuid"
)

// Instance identifies one reproducible enactment of a workflow on one host.
type Instance struct {
	ID       string `yaml:"instance_id"`
	Nickname string `yaml:"nickname,omitempty"`
	RawDir   string `yaml:"-"`
}

// NewInstance generates a fresh opaque instance id, unique per host.
func NewInstance(rawDir, nickname string) *Instance {
	return &Instance{
		ID:       uuid.NewString(),
		Nickname: nickname,
		RawDir:   rawDir,
	}
}

// StagedSetup enumerates all instance-scoped paths and flags. It is
// immutable once Setup returns.
type StagedSetup struct {
	InstanceID string `yaml:"instance_id"`
	Nickname   string `yaml:"nickname,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`

	RawDir         string `yaml:"raw_dir"`
	WorkDir        string `yaml:"work_dir"`
	InputsDir      string `yaml:"inputs_dir"`
	OutputsDir     string `yaml:"outputs_dir"`
	IntermediateDir string `yaml:"intermediate_dir"`
	EngineTweaksDir string `yaml:"engine_tweaks_dir"`
	WorkflowDir    string `yaml:"workflow_dir"`
	ConsolidatedWorkflowDir string `yaml:"consolidated_workflow_dir"`
	ContainersDir  string `yaml:"containers_dir"`
	MetaDir        string `yaml:"meta_dir"`
	TempDir        string `yaml:"temp_dir"`

	SecureExec  bool `yaml:"secure_exec"`
	AllowOther  bool `yaml:"allow_other"`
	IsEncrypted bool `yaml:"is_encrypted"`
	IsDamaged   bool `yaml:"is_damaged"`
}

// MkdirAll creates every instance-scoped directory this StagedSetup
// names, with the .TEMP directory's world-writable sticky mode (spec §6:
// ".TEMP/ (mode 1777)").
func (s StagedSetup) MkdirAll() error {
	dirs := []string{
		s.InputsDir, s.OutputsDir, s.IntermediateDir, s.EngineTweaksDir,
		s.WorkflowDir, s.ConsolidatedWorkflowDir, s.ContainersDir, s.MetaDir,
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	if s.TempDir != "" {
		if err := os.MkdirAll(s.TempDir, 0o1777); err != nil {
			return err
		}
	}
	return nil
}

// MarshallingStatus tracks the four lifecycle stages. Each field is either
// nil (absent), Damaged() ("attempted and damaged"), or Success(t)
// carrying the UTC timestamp of successful marshalling.
type MarshallingStatus struct {
	Config    *StageStatus `yaml:"config,omitempty"`
	Stage     *StageStatus `yaml:"stage,omitempty"`
	Execution *StageStatus `yaml:"execution,omitempty"`
	Export    *StageStatus `yaml:"export,omitempty"`
}

// StageStatus is one field of MarshallingStatus: either a successful
// timestamp or a damaged marker.
type StageStatus struct {
	Timestamp time.Time `yaml:"timestamp,omitempty"`
	Damaged   bool      `yaml:"damaged,omitempty"`
}

func Success(t time.Time) *StageStatus { return &StageStatus{Timestamp: t} }
func Damaged() *StageStatus            { return &StageStatus{Damaged: true} }

func (s *StageStatus) OK() bool { return s != nil && !s.Damaged }

// Valid enforces the invariant: stage requires config; execution requires
// stage; export requires stage.
func (m MarshallingStatus) Valid() bool {
	if m.Stage.OK() && !m.Config.OK() {
		return false
	}
	if m.Execution.OK() && !m.Stage.OK() {
		return false
	}
	if m.Export.OK() && !m.Stage.OK() {
		return false
	}
	return true
}

// RemoteRepo names a git-addressable source location.
type RemoteRepo struct {
	RepoURL string `yaml:"repo_url"`
	Tag     string `yaml:"tag,omitempty"`
	RelPath string `yaml:"rel_path,omitempty"`
}

// IdentifiedWorkflow is produced by the Workflow Resolver (C4).
type IdentifiedWorkflow struct {
	WorkflowType string     `yaml:"workflow_type"`
	RemoteRepo   RemoteRepo `yaml:"remote_repo"`
}

// LocalWorkflow is the on-disk materialization of an IdentifiedWorkflow.
type LocalWorkflow struct {
	Dir               string `yaml:"dir"`
	RelPath           string `yaml:"rel_path,omitempty"`
	EffectiveCheckout string `yaml:"effective_checkout"`
	LangVersion       string `yaml:"lang_version,omitempty"`
}

// ParamValue is either a scalar or a MaterializedContent. Kind discriminates
// on marshal/unmarshal, per the "explicit kind discriminators" design note.
type ParamValue struct {
	Kind    string             `yaml:"kind"` // "scalar" | "content"
	Scalar  any                `yaml:"scalar,omitempty"`
	Content *MaterializedContent `yaml:"content,omitempty"`
}

// MaterializedInput is one resolved leaf of the recursive input-parameter
// tree, named by its dot-separated linear key.
type MaterializedInput struct {
	Name            string       `yaml:"name"`
	Values          []ParamValue `yaml:"values"`
	SecondaryInputs []ParamValue `yaml:"secondary_inputs,omitempty"`
}

// LicensedURI is a fetched URI plus its licence/attribution metadata.
type LicensedURI struct {
	URI            string   `yaml:"uri"`
	Licences       []string `yaml:"licences,omitempty"`
	Attributions   []string `yaml:"attributions,omitempty"`
	SecurityContext string  `yaml:"sec_context,omitempty"`
}

// ContentKind distinguishes File from Directory materializations.
type ContentKind string

const (
	KindFile      ContentKind = "File"
	KindDirectory ContentKind = "Directory"
	KindValue     ContentKind = "Value"
)

// MaterializedContent is a fetched or synthesized input/output artifact.
type MaterializedContent struct {
	LocalPath      string        `yaml:"local_path,omitempty"`
	LicensedURI    LicensedURI   `yaml:"licensed_uri"`
	PrettyFilename string        `yaml:"pretty_filename"`
	Kind           ContentKind   `yaml:"kind"`
	MetadataArray  []MetadataEntry `yaml:"metadata_array,omitempty"`
	Signature      string        `yaml:"signature,omitempty"`
	// Text holds the UTF-8 contents read from the backing file when Kind
	// is KindValue (spec §4.8: "for Value kinds, read the file as UTF-8
	// text and take its contents").
	Text string `yaml:"text,omitempty"`
}

// MetadataEntry records one dereference step in a cache metadata sidecar.
type MetadataEntry struct {
	URI      string   `yaml:"uri"`
	Response []string `yaml:"response_metadata,omitempty"`
	Licences []string `yaml:"licences,omitempty"`
}

// Cardinality is an (min,max) pair. Max < 0 means unbounded ("*"/"+").
type Cardinality struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func ParseCardinality(token string) Cardinality {
	switch token {
	case "1", "":
		return Cardinality{Min: 1, Max: 1}
	case "?":
		return Cardinality{Min: 0, Max: 1}
	case "*":
		return Cardinality{Min: 0, Max: -1}
	case "+":
		return Cardinality{Min: 1, Max: -1}
	default:
		return Cardinality{Min: 1, Max: 1}
	}
}

// MaterializedOutput is the resolved value (or empty set) of one declared
// workflow output.
type MaterializedOutput struct {
	Name                string        `yaml:"name"`
	Kind                ContentKind   `yaml:"kind"`
	ExpectedCardinality Cardinality   `yaml:"expected_cardinality"`
	Values              []MaterializedContent `yaml:"values"`
	Synthetic           bool          `yaml:"synthetic,omitempty"`
	FilledFrom          string        `yaml:"filled_from,omitempty"`
	Glob                string        `yaml:"glob,omitempty"`
}

// ContainerType enumerates the supported container runtimes.
type ContainerType string

const (
	ContainerDocker      ContainerType = "docker"
	ContainerSingularity ContainerType = "singularity"
)

// Container is one materialized container image.
type Container struct {
	Type            ContainerType `yaml:"type"`
	TaggedName      string        `yaml:"tagged_name"`
	Fingerprint     string        `yaml:"fingerprint"`
	LocalPath       string        `yaml:"local_path"`
	OperatingSystem string        `yaml:"operating_system"`
	Architecture    string        `yaml:"architecture"`
}

// MaterializedWorkflowEngine records the installed engine plus its
// consolidated workflow tree and the containers it needs.
type MaterializedWorkflowEngine struct {
	Instance             string        `yaml:"instance"`
	Version              string        `yaml:"version"`
	Fingerprint           string        `yaml:"fingerprint"`
	EnginePath            string        `yaml:"engine_path"`
	Workflow              LocalWorkflow `yaml:"workflow"`
	ContainersPath        string        `yaml:"containers_path,omitempty"`
	Containers            []Container   `yaml:"containers,omitempty"`
	OperationalContainers []Container   `yaml:"operational_containers,omitempty"`
}

// ExportItem names one thing an export action should push: a named
// parameter, a named output, or the whole working directory.
type ExportItem struct {
	Type ExportItemType `yaml:"type"`
	Name string         `yaml:"name,omitempty"`
}

type ExportItemType string

const (
	ExportParam          ExportItemType = "Param"
	ExportOutput         ExportItemType = "Output"
	ExportWorkingDirectory ExportItemType = "WorkingDirectory"
)

// ExportAction is a declared (not yet executed) export request.
type ExportAction struct {
	ActionID       string            `yaml:"action_id"`
	PluginID       string            `yaml:"plugin_id"`
	What           []ExportItem      `yaml:"what"`
	ContextName    string            `yaml:"context_name,omitempty"`
	Setup          map[string]string `yaml:"setup,omitempty"`
	PreferredScheme string           `yaml:"preferred_scheme,omitempty"`
	PreferredID    string            `yaml:"preferred_id,omitempty"`
}

// MaterializedExportAction is an ExportAction after execution.
type MaterializedExportAction struct {
	ExportAction `yaml:",inline"`
	Elems        []MaterializedContent `yaml:"elems"`
	PIDs         []string              `yaml:"pids"`
}
