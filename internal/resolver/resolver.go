// Package resolver implements the Workflow Resolver (C4): it maps a
// {workflow-id, version, descriptor-type, trs-endpoint} tuple to an
// IdentifiedWorkflow plus the engine that should run it.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/wfexsgo/core/internal/engine"
	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// Request is the resolver's input (spec §4.4).
type Request struct {
	WorkflowID     string
	VersionID      string
	DescriptorType string
	TRSEndpoint    string
}

// Resolver resolves a Request into an IdentifiedWorkflow.
type Resolver struct {
	HTTP     *http.Client
	Engines  *engine.Registry
	Warn     func(format string, args ...any)
}

// New builds a Resolver. engines may be nil only if the caller never
// needs RO-Crate language matching (step 7).
func New(httpClient *http.Client, engines *engine.Registry) *Resolver {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Resolver{HTTP: httpClient, Engines: engines, Warn: func(string, ...any) {}}
}

// repoPatterns recognizes GitHub/GitLab/generic git URLs, capturing an
// optional tag suffix the way GitHub/GitLab "tree/<ref>" URLs embed it.
var repoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(https://github\.com/[^/]+/[^/]+?)(?:\.git)?(?:/tree/([^/]+))?/?$`),
	regexp.MustCompile(`^(https://gitlab\.com/[^/]+/[^/]+?)(?:\.git)?(?:/-/tree/([^/]+))?/?$`),
	regexp.MustCompile(`^(https?://[^\s]+\.git)$`),
}

// guessRepoParams is the pattern-based recognizer of spec §4.4 step 1.
func guessRepoParams(raw string) (model.RemoteRepo, bool) {
	for _, re := range repoPatterns {
		m := re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		repo := m[1]
		if !strings.HasSuffix(repo, ".git") && !strings.Contains(repo, ".git") {
			repo += ".git"
		}
		rr := model.RemoteRepo{RepoURL: repo}
		if len(m) > 2 {
			rr.Tag = m[2]
		}
		return rr, true
	}
	return model.RemoteRepo{}, false
}

// Resolve implements the full algorithm of spec §4.4.
func (r *Resolver) Resolve(ctx context.Context, req Request) (model.IdentifiedWorkflow, error) {
	if u, err := url.ParseRequestURI(req.WorkflowID); err == nil && u.IsAbs() {
		if rr, ok := guessRepoParams(req.WorkflowID); ok {
			if rr.Tag == "" {
				rr.Tag = req.VersionID
			}
			return model.IdentifiedWorkflow{RemoteRepo: rr, WorkflowType: req.DescriptorType}, nil
		}
	}

	if req.TRSEndpoint == "" {
		return model.IdentifiedWorkflow{}, wferrors.NewConfigError("workflow_id is not a recognized repository URL and no trs_endpoint is configured", nil)
	}

	version, err := r.probeServiceInfo(ctx, req.TRSEndpoint)
	if err != nil {
		return model.IdentifiedWorkflow{}, err
	}
	r.Warn("resolved TRS service-info version %s for endpoint %s", version, req.TRSEndpoint)

	tool, err := r.fetchTool(ctx, req.TRSEndpoint, req.WorkflowID)
	if err != nil {
		return model.IdentifiedWorkflow{}, err
	}
	if tool.ToolClass.Name != "Workflow" {
		return model.IdentifiedWorkflow{}, wferrors.NewResolverError(wferrors.Unresolvable, fmt.Sprintf("tool %s is not of class Workflow", req.WorkflowID), nil)
	}

	versionRec, err := selectVersion(tool.Versions, req.VersionID)
	if err != nil {
		return model.IdentifiedWorkflow{}, err
	}

	descType, err := selectDescriptorType(versionRec.DescriptorTypes, req.DescriptorType)
	if err != nil {
		return model.IdentifiedWorkflow{}, err
	}

	if isWorkflowHub(req.TRSEndpoint) {
		return r.resolveViaROCrate(ctx, req.TRSEndpoint, req.WorkflowID, versionRec.ID, descType)
	}
	return r.resolveViaRawFiles(ctx, req.TRSEndpoint, req.WorkflowID, versionRec.ID, descType)
}

// --- TRS wire types ---

type trsServiceInfo struct {
	Version string `json:"version"`
}

type trsToolClass struct {
	Name string `json:"name"`
}

type trsVersion struct {
	ID              string   `json:"id"`
	DescriptorTypes []string `json:"descriptor_type"`
}

type trsTool struct {
	ToolClass trsToolClass `json:"toolclass"`
	Versions  []trsVersion `json:"versions"`
}

func (r *Resolver) probeServiceInfo(ctx context.Context, endpoint string) (string, error) {
	for _, path := range []string{"/service-info", "/metadata"} {
		var info trsServiceInfo
		if err := r.getJSON(ctx, strings.TrimRight(endpoint, "/")+path, &info); err == nil && info.Version != "" {
			return info.Version, nil
		}
	}
	return "", wferrors.NewResolverError(wferrors.Unresolvable, "TRS service-info and legacy metadata endpoints both failed to return a version", nil)
}

func (r *Resolver) fetchTool(ctx context.Context, endpoint, toolID string) (trsTool, error) {
	var tool trsTool
	url := fmt.Sprintf("%s/tools/%s", strings.TrimRight(endpoint, "/"), toolID)
	if err := r.getJSON(ctx, url, &tool); err != nil {
		return trsTool{}, wferrors.NewFetchError(wferrors.HTTPStatus, url, err)
	}
	return tool, nil
}

func (r *Resolver) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func selectVersion(versions []trsVersion, wanted string) (trsVersion, error) {
	if wanted == "" {
		if len(versions) == 0 {
			return trsVersion{}, wferrors.NewResolverError(wferrors.VersionNotFound, "tool has no versions", nil)
		}
		sorted := append([]trsVersion(nil), versions...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID > sorted[j].ID })
		return sorted[0], nil
	}
	for _, v := range versions {
		if v.ID == wanted {
			return v, nil
		}
	}
	return trsVersion{}, wferrors.NewResolverError(wferrors.VersionNotFound, fmt.Sprintf("version %q not found", wanted), nil)
}

func selectDescriptorType(declared []string, wanted string) (string, error) {
	if wanted == "" {
		if len(declared) == 0 {
			return "", wferrors.NewResolverError(wferrors.DescriptorTypeNotAvailable, "version declares no descriptor types", nil)
		}
		return declared[0], nil
	}
	for _, d := range declared {
		if strings.EqualFold(d, wanted) {
			return d, nil
		}
	}
	return "", wferrors.NewResolverError(wferrors.DescriptorTypeNotAvailable, fmt.Sprintf("descriptor type %q not declared by this version", wanted), nil)
}

func isWorkflowHub(endpoint string) bool {
	return strings.Contains(strings.ToLower(endpoint), "workflowhub")
}
