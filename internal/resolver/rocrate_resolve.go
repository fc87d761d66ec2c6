package resolver

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// rocrateNode is one JSON-LD node of an RO-Crate @graph, addressed by
// @id — an arena-of-nodes representation (spec's "Cyclic references"
// design note: "represent as an arena of nodes keyed by @id").
type rocrateNode map[string]any

func (n rocrateNode) id() string     { return asString(n["@id"]) }
func (n rocrateNode) types() []string {
	switch v := n["@type"].(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, t := range v {
			out = append(out, asString(t))
		}
		return out
	}
	return nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func hasType(n rocrateNode, want string) bool {
	for _, t := range n.types() {
		if t == want {
			return true
		}
	}
	return false
}

// ref resolves a JSON-LD {"@id": "..."} reference value to the target
// node's @id string, or "" if v isn't a reference shape.
func ref(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	return asString(m["@id"])
}

// resolveViaROCrate fetches a tool version's RO-Crate zip export and
// walks its JSON-LD graph to identify the workflow's engine (spec §4.4
// steps 6-7).
func (r *Resolver) resolveViaROCrate(ctx context.Context, endpoint, toolID, versionID, descriptorType string) (model.IdentifiedWorkflow, error) {
	url := fmt.Sprintf("%s/tools/%s/versions/%s/%s/files?format=zip", strings.TrimRight(endpoint, "/"), toolID, versionID, descriptorType)
	dir, err := os.MkdirTemp("", "wfexs-rocrate-*")
	if err != nil {
		return model.IdentifiedWorkflow{}, err
	}
	archivePath := filepath.Join(dir, "crate.zip")
	if err := downloadFile(ctx, r.HTTP, url, archivePath); err != nil {
		return model.IdentifiedWorkflow{}, err
	}

	graph, err := loadCrateGraph(archivePath)
	if err != nil {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.Unresolvable, "failed to parse RO-Crate metadata", err)
	}

	return r.identifyFromGraph(graph)
}

// identifyFromGraph implements spec §4.4 step 7: find the CreativeWork
// root, follow about -> mainEntity, read programmingLanguage @id/url,
// match against each engine's uri_patterns.
func (r *Resolver) identifyFromGraph(graph map[string]rocrateNode) (model.IdentifiedWorkflow, error) {
	var root rocrateNode
	for _, n := range graph {
		if hasType(n, "CreativeWork") && n.id() == "ro-crate-metadata.json" {
			root = n
			break
		}
	}
	if root == nil {
		for _, n := range graph {
			if hasType(n, "CreativeWork") {
				root = n
				break
			}
		}
	}
	if root == nil {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.Unresolvable, "RO-Crate has no CreativeWork root", nil)
	}

	aboutID := ref(root["about"])
	about := graph[aboutID]
	mainEntityID := ref(about["mainEntity"])
	workflow := graph[mainEntityID]
	if workflow == nil {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.Unresolvable, "RO-Crate about.mainEntity not found", nil)
	}

	langRef, _ := workflow["programmingLanguage"].(map[string]any)
	var langID, langURL string
	if langRef != nil {
		langNodeID := asString(langRef["@id"])
		if langNode, ok := graph[langNodeID]; ok {
			langID = langNode.id()
			langURL = asString(langNode["url"])
		} else {
			langID = langNodeID
		}
	}

	if r.Engines == nil {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.UnknownLanguage, "no engine registry configured to match programmingLanguage", nil)
	}

	desc, _, ok := r.Engines.MatchLanguage(langID, langURL)
	if !ok {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.UnknownLanguage, fmt.Sprintf("no engine matches programmingLanguage %s", langID), nil)
	}

	return model.IdentifiedWorkflow{WorkflowType: desc.ShortName}, nil
}

// resolveViaRawFiles implements spec §4.4 step 6's non-WorkflowHub branch:
// fetch the raw file list, prefer a remote_workflow_entrypoint hint as the
// git origin, or synthesize a RemoteRepo rooted at the TRS files directory.
func (r *Resolver) resolveViaRawFiles(ctx context.Context, endpoint, toolID, versionID, descriptorType string) (model.IdentifiedWorkflow, error) {
	url := fmt.Sprintf("%s/tools/%s/versions/%s/%s/files", strings.TrimRight(endpoint, "/"), toolID, versionID, descriptorType)
	var listing []struct {
		Path     string `json:"file_path"`
		FileType string `json:"file_type"`
	}
	if err := r.getJSON(ctx, url, &listing); err != nil {
		return model.IdentifiedWorkflow{}, wferrors.NewFetchError(wferrors.HTTPStatus, url, err)
	}

	for _, f := range listing {
		if f.FileType == "remote_workflow_entrypoint" {
			if rr, ok := guessRepoParams(f.Path); ok {
				return model.IdentifiedWorkflow{RemoteRepo: rr, WorkflowType: descriptorType}, nil
			}
		}
	}

	var entrypoint string
	for _, f := range listing {
		if f.FileType == "PRIMARY_DESCRIPTOR" || f.FileType == "" {
			entrypoint = f.Path
			break
		}
	}
	if entrypoint == "" {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.Unresolvable, "TRS tool has neither remote_workflow_entrypoint nor workflow_entrypoint", nil)
	}

	return model.IdentifiedWorkflow{
		RemoteRepo: model.RemoteRepo{
			RepoURL: strings.TrimSuffix(url, "/files"),
			RelPath: entrypoint,
		},
		WorkflowType: descriptorType,
	}, nil
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d fetching %s", resp.StatusCode, url)
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

// loadCrateGraph unzips archivePath, reads ro-crate-metadata.json, and
// indexes its @graph by @id.
func loadCrateGraph(archivePath string) (map[string]rocrateNode, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var metaFile *zip.File
	for _, f := range zr.File {
		if filepath.Base(f.Name) == "ro-crate-metadata.json" {
			metaFile = f
			break
		}
	}
	if metaFile == nil {
		return nil, fmt.Errorf("ro-crate-metadata.json not found in archive")
	}

	rc, err := metaFile.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var doc struct {
		Graph []rocrateNode `json:"@graph"`
	}
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, err
	}

	graph := make(map[string]rocrateNode, len(doc.Graph))
	for _, n := range doc.Graph {
		graph[n.id()] = n
	}
	return graph, nil
}
