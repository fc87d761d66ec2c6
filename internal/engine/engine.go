// Package engine declares the Engine Adapter Interface (C5): a capability
// set each concrete workflow-language adapter implements, plus a registry
// adapters join at startup so the resolver can match languages to
// engines without any inheritance hierarchy (spec's "Polymorphism without
// inheritance" design note).
package engine

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"

	"github.com/wfexsgo/core/internal/model"
)

// Adapter is implemented by each concrete workflow-language engine
// (CWL, Nextflow, ...). Non-goal: no adapter implements a real language
// interpreter; materialize/launch are thin and delegate to an external
// engine binary.
type Adapter interface {
	// Identify sniffs dir for workflow files of this engine's language,
	// optionally honoring a requested engine version. ok is false when
	// the directory does not look like this engine's language.
	Identify(ctx context.Context, local model.LocalWorkflow, desiredVersion string) (engineVersion string, refined model.LocalWorkflow, ok bool, err error)

	// MaterializeEngine installs (or locates, from cache) the engine
	// binary and fingerprints the installation.
	MaterializeEngine(ctx context.Context, local model.LocalWorkflow, engineVersion string) (model.MaterializedWorkflowEngine, error)

	// MaterializeWorkflow resolves language-level import/include
	// directives into consolidatedDir and reports the container
	// references the workflow body needs.
	MaterializeWorkflow(ctx context.Context, me model.MaterializedWorkflowEngine, consolidatedDir string, offline bool) (model.MaterializedWorkflowEngine, []string, error)

	// SideContainers lists containers the engine runtime itself needs,
	// distinct from containers the workflow body references.
	SideContainers() []string

	// Launch runs the consolidated workflow with the given inputs and
	// environment; it must not retry workflow-level (business logic)
	// failures — only the abortable-subprocess contract applies.
	Launch(ctx context.Context, me model.MaterializedWorkflowEngine, inputs []model.MaterializedInput, environment map[string]string, expectedOutputs []string) (StagedExecution, error)

	SupportedContainerTypes() []model.ContainerType
	SupportedSecureContainerTypes() []model.ContainerType
	HasExplicitOutputs() bool
}

// StagedExecution is the result of one engine launch.
type StagedExecution struct {
	ExitCode int
	StdoutLog string
	StderrLog string
	// ExplicitOutputs carries the engine's own per-output mapping, verbatim,
	// for adapters declaring HasExplicitOutputs() == true (spec §4.8 mode
	// 3: "consume the engine's per-output mapping verbatim"). CWL-flavored
	// adapters populate this from the CWL-style final-output JSON object a
	// conformant CWL runner prints to stdout on success.
	ExplicitOutputs map[string]json.RawMessage
	// The launch's wall-clock bounds are not carried here; the enactment
	// controller records them in the execution-state.yaml record.
}

// Descriptor is the self-description an adapter registers with (spec
// §4.4: "{short_name, uri_patterns, canonical_url, trs_descriptor,
// priority, enabled}").
type Descriptor struct {
	ShortName     string
	URIPatterns   []string
	CanonicalURL  string
	TRSDescriptor string
	Priority      int
	Enabled       bool
}

type registered struct {
	desc    Descriptor
	adapter Adapter
	patterns []*regexp.Regexp
}

// Registry holds all enabled engine adapters, ordered by descending
// priority for ambiguous-workflow matching.
type Registry struct {
	entries []registered
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// Register adds an adapter under desc. Patterns that fail to compile as
// regexes are skipped (uri_patterns are documented as plain regex
// strings by every built-in adapter in this package).
func (r *Registry) Register(desc Descriptor, adapter Adapter) {
	if !desc.Enabled {
		return
	}
	var patterns []*regexp.Regexp
	for _, p := range desc.URIPatterns {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	r.entries = append(r.entries, registered{desc: desc, adapter: adapter, patterns: patterns})
	sort.SliceStable(r.entries, func(i, j int) bool { return r.entries[i].desc.Priority > r.entries[j].desc.Priority })
}

// MatchLanguage matches a programmingLanguage @id/url pair against each
// registered engine's uri_patterns in priority order (spec §4.4 step 7).
func (r *Registry) MatchLanguage(id, url string) (Descriptor, Adapter, bool) {
	for _, e := range r.entries {
		for _, re := range e.patterns {
			if re.MatchString(id) || re.MatchString(url) {
				return e.desc, e.adapter, true
			}
		}
	}
	return Descriptor{}, nil, false
}

// ByTRSDescriptor finds the adapter declaring the given TRS descriptor
// type (e.g. "CWL", "NFL"), used when resolving workflow_type directly.
func (r *Registry) ByTRSDescriptor(descriptorType string) (Descriptor, Adapter, bool) {
	for _, e := range r.entries {
		if e.desc.TRSDescriptor == descriptorType {
			return e.desc, e.adapter, true
		}
	}
	return Descriptor{}, nil, false
}

// ByShortName looks an adapter up by its registered short name, used when
// workflow_type is already known from a marshalled record.
func (r *Registry) ByShortName(name string) (Descriptor, Adapter, bool) {
	for _, e := range r.entries {
		if e.desc.ShortName == name {
			return e.desc, e.adapter, true
		}
	}
	return Descriptor{}, nil, false
}

// All returns every registered (descriptor, adapter) pair in priority
// order, for callers that must try each engine in turn (e.g. Identify
// sniffing when workflow_type was not declared).
func (r *Registry) All() []struct {
	Descriptor Descriptor
	Adapter    Adapter
} {
	out := make([]struct {
		Descriptor Descriptor
		Adapter    Adapter
	}, len(r.entries))
	for i, e := range r.entries {
		out[i].Descriptor = e.desc
		out[i].Adapter = e.adapter
	}
	return out
}
