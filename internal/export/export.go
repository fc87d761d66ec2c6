// Package export implements the Export Plugin Interface (C9): a registry
// of credentialed-upload plugins plus the driver that resolves an
// ExportAction's declared items (params, outputs, or the whole working
// directory) to concrete local content before invoking a plugin's push.
package export

import (
	"context"
	"fmt"
	"sort"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/wferrors"
)

// ExportedPID is one persistent identifier a plugin returned for a pushed
// item.
type ExportedPID = string

// Plugin is implemented by each concrete credentialed-upload backend
// (Dataverse, Zenodo, B2SHARE, ...).
type Plugin interface {
	ID() string
	Push(ctx context.Context, items []model.MaterializedContent, preferredScheme, preferredID string, credentials map[string]string) ([]ExportedPID, error)
}

// DraftEntry is an in-progress, not-yet-published upload a draft-capable
// plugin is tracking.
type DraftEntry struct {
	PluginID string
	DraftID  string
}

// DraftCapable is an optional capability a Plugin may additionally
// implement (spec §4.9: "book_pid / update_metadata / publish / discard").
type DraftCapable interface {
	BookPID(ctx context.Context, preferred string, credentials map[string]string) (DraftEntry, error)
	UpdateMetadata(ctx context.Context, draft DraftEntry, meta map[string]string) error
	Publish(ctx context.Context, draft DraftEntry) (ExportedPID, error)
	Discard(ctx context.Context, draftOrPID string) (bool, error)
}

// Registry holds enabled export plugins, keyed by plugin id.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry() *Registry { return &Registry{plugins: make(map[string]Plugin)} }

func (r *Registry) Register(p Plugin) { r.plugins[p.ID()] = p }

func (r *Registry) Get(id string) (Plugin, bool) {
	p, ok := r.plugins[id]
	return p, ok
}

// Driver resolves ExportActions against an instance's materialized
// params/outputs/working directory and invokes the matching plugin.
type Driver struct {
	Plugins *Registry
}

// ResolveItems translates action.What into concrete MaterializedContent,
// by linear-key lookup (Param), output-name lookup (Output), or the whole
// working directory (WorkingDirectory) — spec §4.9's core resolution
// rule.
func ResolveItems(action model.ExportAction, workDir string, inputs []model.MaterializedInput, outputs []model.MaterializedOutput) ([]model.MaterializedContent, error) {
	var elems []model.MaterializedContent
	for _, item := range action.What {
		switch item.Type {
		case model.ExportParam:
			found := false
			for _, in := range inputs {
				if in.Name != item.Name {
					continue
				}
				found = true
				for _, v := range in.Values {
					if v.Content != nil {
						elems = append(elems, *v.Content)
					}
				}
			}
			if !found {
				return nil, wferrors.NewExportError(action.ActionID, fmt.Sprintf("param %q not found among materialized inputs", item.Name), nil)
			}
		case model.ExportOutput:
			found := false
			for _, out := range outputs {
				if out.Name != item.Name {
					continue
				}
				found = true
				elems = append(elems, out.Values...)
			}
			if !found {
				return nil, wferrors.NewExportError(action.ActionID, fmt.Sprintf("output %q not found among materialized outputs", item.Name), nil)
			}
		case model.ExportWorkingDirectory:
			elems = append(elems, model.MaterializedContent{
				LocalPath: workDir,
				Kind:      model.KindDirectory,
			})
		default:
			return nil, wferrors.NewExportError(action.ActionID, fmt.Sprintf("unrecognized export item type %q", item.Type), nil)
		}
	}
	return elems, nil
}

// ResolveCredentials combines action.Setup (action-specific overrides)
// with credentials[action.ContextName] (shared), the action-level entries
// winning key-by-key (spec §4.9).
func ResolveCredentials(action model.ExportAction, credentials map[string]map[string]string) map[string]string {
	merged := map[string]string{}
	if action.ContextName != "" {
		for k, v := range credentials[action.ContextName] {
			merged[k] = v
		}
	}
	for k, v := range action.Setup {
		merged[k] = v
	}
	return merged
}

// Execute resolves action's items and credentials, then invokes the
// registered plugin's Push, returning the fully populated
// MaterializedExportAction.
func (d *Driver) Execute(ctx context.Context, action model.ExportAction, workDir string, inputs []model.MaterializedInput, outputs []model.MaterializedOutput, credentials map[string]map[string]string) (model.MaterializedExportAction, error) {
	plugin, ok := d.Plugins.Get(action.PluginID)
	if !ok {
		return model.MaterializedExportAction{}, wferrors.NewExportError(action.ActionID, fmt.Sprintf("no export plugin registered for %q", action.PluginID), nil)
	}

	elems, err := ResolveItems(action, workDir, inputs, outputs)
	if err != nil {
		return model.MaterializedExportAction{}, err
	}

	creds := ResolveCredentials(action, credentials)
	if action.ContextName != "" {
		if _, ok := credentials[action.ContextName]; !ok {
			return model.MaterializedExportAction{}, wferrors.NewExportError(action.ActionID, fmt.Sprintf("credential context %q missing at export time", action.ContextName), nil)
		}
	}

	pids, err := plugin.Push(ctx, elems, action.PreferredScheme, action.PreferredID, creds)
	if err != nil {
		return model.MaterializedExportAction{}, wferrors.NewExportError(action.ActionID, "plugin rejected push", err)
	}

	return model.MaterializedExportAction{
		ExportAction: action,
		Elems:        elems,
		PIDs:         pids,
	}, nil
}

// sortedActionIDs is a small helper SortActions uses to iterate
// default_actions deterministically when persisting export-state.yaml.
func sortedActionIDs(actions []model.ExportAction) []string {
	ids := make([]string, len(actions))
	for i, a := range actions {
		ids[i] = a.ActionID
	}
	sort.Strings(ids)
	return ids
}

// SortActions returns actions reordered by ascending ActionID, so the
// enactment controller executes (and persists) them in a deterministic
// order regardless of the order the caller assembled them in.
func SortActions(actions []model.ExportAction) []model.ExportAction {
	byID := make(map[string][]model.ExportAction, len(actions))
	for _, a := range actions {
		byID[a.ActionID] = append(byID[a.ActionID], a)
	}
	out := make([]model.ExportAction, 0, len(actions))
	for _, id := range sortedActionIDs(actions) {
		group := byID[id]
		out = append(out, group[0])
		byID[id] = group[1:]
	}
	return out
}
