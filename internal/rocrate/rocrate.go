// Package rocrate implements the RO-Crate Emitter (C11): a generic
// arena-of-nodes JSON-LD builder plus the stage-crate and
// execution-crate serializers of spec §4.11. RO-Crate builders
// naturally form cycles (workflow -> formal-parameter -> workExample ->
// workflow); the arena keys every node by its "@id" so cross-references
// are plain id strings and each node is emitted exactly once.
package rocrate

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/output"
)

const contextURL = "https://w3id.org/ro-crate/1.1/context"

// Builder accumulates JSON-LD nodes keyed by "@id", preserving first-seen
// order so Graph() output is deterministic across runs.
type Builder struct {
	order []string
	nodes map[string]map[string]any
}

// NewBuilder returns an empty node arena.
func NewBuilder() *Builder {
	return &Builder{nodes: make(map[string]map[string]any)}
}

// node returns (creating if absent) the node for id.
func (b *Builder) node(id string) map[string]any {
	n, ok := b.nodes[id]
	if !ok {
		n = map[string]any{"@id": id}
		b.nodes[id] = n
		b.order = append(b.order, id)
	}
	return n
}

// Set assigns a property on the node named id, creating the node if
// this is its first reference.
func (b *Builder) Set(id, key string, value any) {
	b.node(id)[key] = value
}

// AddType appends one or more "@type" values to the node named id,
// de-duplicating against whatever is already recorded.
func (b *Builder) AddType(id string, types ...string) {
	n := b.node(id)
	existing, _ := n["@type"].([]string)
	seen := make(map[string]bool, len(existing))
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range types {
		if !seen[t] {
			existing = append(existing, t)
			seen[t] = true
		}
	}
	n["@type"] = existing
}

// AppendRef appends a {"@id": target} reference onto the node's key
// array, used for hasPart/object/result-style one-to-many links.
func (b *Builder) AppendRef(id, key, target string) {
	n := b.node(id)
	refs, _ := n[key].([]map[string]string)
	n[key] = append(refs, Ref(target))
}

// Ref builds a JSON-LD id reference.
func Ref(id string) map[string]string {
	return map[string]string{"@id": id}
}

// Graph returns every node in first-seen order.
func (b *Builder) Graph() []map[string]any {
	out := make([]map[string]any, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.nodes[id])
	}
	return out
}

// Crate is a complete RO-Crate JSON-LD document plus the file paths that
// must be packed alongside ro-crate-metadata.json when it is zipped.
type Crate struct {
	Graph []map[string]any
	Files map[string]string // archive path -> source path on disk
}

// Metadata marshals the crate's ro-crate-metadata.json document.
func (c *Crate) Metadata() ([]byte, error) {
	doc := map[string]any{
		"@context": contextURL,
		"@graph":   c.Graph,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// WriteZip packages ro-crate-metadata.json plus every registered file
// into a zip archive (spec §4.11: "Two outputs, both zipped crates").
func (c *Crate) WriteZip(w io.Writer) error {
	meta, err := c.Metadata()
	if err != nil {
		return err
	}
	zw := zip.NewWriter(w)
	mw, err := zw.Create("ro-crate-metadata.json")
	if err != nil {
		return err
	}
	if _, err := mw.Write(meta); err != nil {
		return err
	}

	archivePaths := make([]string, 0, len(c.Files))
	for arc := range c.Files {
		archivePaths = append(archivePaths, arc)
	}
	sort.Strings(archivePaths)
	for _, arc := range archivePaths {
		if err := addFile(zw, arc, c.Files[arc]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, archivePath, srcPath string) error {
	info, err := os.Stat(srcPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return filepath.WalkDir(srcPath, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, rerr := filepath.Rel(srcPath, p)
			if rerr != nil {
				return rerr
			}
			return addFile(zw, filepath.ToSlash(filepath.Join(archivePath, rel)), p)
		})
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := zw.Create(archivePath)
	if err != nil {
		return err
	}
	_, err = io.Copy(dst, src)
	return err
}

// rootDatasetID is the RO-Crate root dataset's canonical @id.
const rootDatasetID = "./"

// newRootBuilder seeds the arena with the required CreativeWork/root
// Dataset pair and returns it unattached to any workflow yet.
func newRootBuilder() *Builder {
	b := NewBuilder()
	b.AddType(rootDatasetID, "Dataset")
	b.Set(rootDatasetID, "conformsTo", Ref("https://w3id.org/ro-crate/1.1"))
	b.AddType("ro-crate-metadata.json", "CreativeWork")
	b.Set("ro-crate-metadata.json", "conformsTo", Ref("https://w3id.org/ro-crate/1.1"))
	b.Set("ro-crate-metadata.json", "about", Ref(rootDatasetID))
	return b
}

// workflowID is the stable @id of the consolidated workflow entry point.
func workflowID(local model.LocalWorkflow) string {
	if local.RelPath != "" {
		return "workflow/" + filepath.ToSlash(local.RelPath)
	}
	return "workflow/"
}

// addWorkflow registers the workflow entry point and its engine
// (programmingLanguage) node, and makes it the root dataset's mainEntity.
func addWorkflow(b *Builder, local model.LocalWorkflow, engineShortName string) string {
	wfID := workflowID(local)
	b.AddType(wfID, "File", "SoftwareSourceCode", "ComputationalWorkflow")
	b.Set(wfID, "name", filepath.Base(wfID))
	if engineShortName != "" {
		langID := "#language-" + engineShortName
		b.AddType(langID, "ComputerLanguage")
		b.Set(langID, "name", engineShortName)
		b.Set(wfID, "programmingLanguage", Ref(langID))
	}
	b.Set(rootDatasetID, "mainEntity", Ref(wfID))
	b.AppendRef(rootDatasetID, "hasPart", wfID)
	return wfID
}

// additionalTypeOf classifies a materialized input value's parameter
// type for a FormalParameter node (spec §4.11: "additionalType ∈ {File,
// Dataset, Integer, String, Boolean, Float}").
func additionalTypeOf(pv model.ParamValue) string {
	if pv.Content != nil {
		if pv.Content.Kind == model.KindDirectory {
			return "Dataset"
		}
		return "File"
	}
	switch pv.Scalar.(type) {
	case bool:
		return "Boolean"
	case int, int64:
		return "Integer"
	case float64:
		return "Float"
	default:
		return "String"
	}
}

// outputAdditionalType classifies a declared output kind.
func outputAdditionalType(kind model.ContentKind) string {
	switch kind {
	case model.KindDirectory:
		return "Dataset"
	case model.KindValue:
		return "String"
	default:
		return "File"
	}
}

// addFormalParameters emits one FormalParameter node per materialized
// input's linear key, plus one per declared output, and links them to
// the root dataset (spec §4.11: "formal parameters (one per linear
// key) ... expected-output formal parameters").
func addFormalParameters(b *Builder, wfID string, inputs []model.MaterializedInput, outputs map[string]*output.ExpectedOutput) {
	for _, in := range inputs {
		id := "#param-" + in.Name
		b.AddType(id, "FormalParameter")
		b.Set(id, "name", in.Name)
		if len(in.Values) > 0 {
			b.Set(id, "additionalType", additionalTypeOf(in.Values[0]))
		}
		b.AppendRef(rootDatasetID, "hasPart", id)
	}

	names := make([]string, 0, len(outputs))
	for n := range outputs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		eo := outputs[name]
		id := "#output-" + name
		b.AddType(id, "FormalParameter")
		b.Set(id, "name", name)
		b.Set(id, "additionalType", outputAdditionalType(eo.Class))
		b.Set(id, "workExample", Ref(wfID))
		b.AppendRef(rootDatasetID, "hasPart", id)
	}
}

// addContainers emits one SoftwareApplication node per materialized
// container, with softwareVersion set to its content fingerprint (spec
// §4.11: "software version = fingerprint").
func addContainers(b *Builder, containers []model.Container) {
	for _, c := range containers {
		id := "#container-" + c.TaggedName
		b.AddType(id, "SoftwareApplication")
		b.Set(id, "name", c.TaggedName)
		b.Set(id, "softwareVersion", c.Fingerprint)
		if c.OperatingSystem != "" {
			b.Set(id, "operatingSystem", c.OperatingSystem)
		}
		b.AppendRef(rootDatasetID, "hasPart", id)
	}
}

// addMaterializedContent registers mc as a File or Dataset node, walking
// generated directories so every contained file gets an isPartOf
// pointing back at the directory entry (spec §4.11: "attach every
// contained file with isPartOf pointing to the directory entry").
// Returns the node's @id.
func addMaterializedContent(b *Builder, mc model.MaterializedContent) string {
	if mc.Kind == model.KindDirectory {
		dirID := mc.Signature
		if dirID == "" {
			dirID = "dir:" + mc.PrettyFilename
		}
		b.AddType(dirID, "Dataset")
		b.Set(dirID, "name", mc.PrettyFilename)
		if mc.LocalPath != "" {
			_ = filepath.WalkDir(mc.LocalPath, func(p string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return err
				}
				rel, rerr := filepath.Rel(mc.LocalPath, p)
				if rerr != nil {
					return rerr
				}
				fileID := dirID + "/" + filepath.ToSlash(rel)
				b.AddType(fileID, "File")
				b.Set(fileID, "name", filepath.Base(p))
				if digest, derr := output.DigestFile(p); derr == nil {
					b.Set(fileID, "sha256", digest)
				}
				b.Set(fileID, "isPartOf", Ref(dirID))
				b.AppendRef(dirID, "hasPart", fileID)
				return nil
			})
		}
		return dirID
	}

	fileID := mc.LocalPath
	if fileID == "" {
		fileID = "value:" + mc.PrettyFilename
	}
	b.AddType(fileID, "File")
	b.Set(fileID, "name", mc.PrettyFilename)
	if mc.Signature != "" {
		b.Set(fileID, "sha256", mc.Signature)
	}
	if mc.Kind == model.KindValue {
		b.Set(fileID, "value", mc.Text)
	}
	return fileID
}

// BuildStageCrate assembles the stage crate: the workflow entry point,
// one formal parameter per linear key plus per declared output, and a
// software application entry per deployed container (spec §4.11).
func BuildStageCrate(me model.MaterializedWorkflowEngine, engineShortName string, inputs []model.MaterializedInput, outputs map[string]*output.ExpectedOutput, workflowDir string) *Crate {
	b := newRootBuilder()
	wfID := addWorkflow(b, me.Workflow, engineShortName)
	addFormalParameters(b, wfID, inputs, outputs)
	addContainers(b, me.Containers)

	files := make(map[string]string)
	if workflowDir != "" {
		files["workflow"] = workflowDir
	}
	return &Crate{Graph: b.Graph(), Files: files}
}

// BuildExecutionCrate extends a stage crate with a CreateAction whose
// startTime/endTime bracket the run, object=inputs, result=outputs,
// instrument=workflow (spec §4.11).
func BuildExecutionCrate(me model.MaterializedWorkflowEngine, engineShortName string, inputs []model.MaterializedInput, expected map[string]*output.ExpectedOutput, resolvedOutputs []model.MaterializedOutput, workflowDir, outputsDir string, startedAt, endedAt time.Time) *Crate {
	crate := BuildStageCrate(me, engineShortName, inputs, expected, workflowDir)
	b := &Builder{nodes: make(map[string]map[string]any)}
	for _, n := range crate.Graph {
		id, _ := n["@id"].(string)
		b.nodes[id] = n
		b.order = append(b.order, id)
	}

	actionID := "#execution"
	b.AddType(actionID, "CreateAction")
	b.Set(actionID, "startTime", startedAt.UTC().Format(time.RFC3339))
	b.Set(actionID, "endTime", endedAt.UTC().Format(time.RFC3339))
	b.Set(actionID, "instrument", Ref(workflowID(me.Workflow)))
	b.AppendRef(rootDatasetID, "hasPart", actionID)

	for _, in := range inputs {
		for _, v := range in.Values {
			if v.Content == nil {
				continue
			}
			id := addMaterializedContent(b, *v.Content)
			b.AppendRef(actionID, "object", id)
		}
	}
	for _, out := range resolvedOutputs {
		for _, v := range out.Values {
			id := addMaterializedContent(b, v)
			b.AppendRef(actionID, "result", id)
		}
	}

	if outputsDir != "" {
		crate.Files["outputs"] = outputsDir
	}
	return &Crate{Graph: b.Graph(), Files: crate.Files}
}
