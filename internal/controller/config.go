package controller

import (
	"fmt"
	"strings"

	"github.com/wfexsgo/core/internal/model"
)

// ConfigDoc is the decoded shape of workflow_meta.yaml (spec §6).
type ConfigDoc struct {
	WorkflowID     string            `yaml:"workflow_id"`
	Version        string            `yaml:"version,omitempty"`
	WorkflowType   string            `yaml:"workflow_type,omitempty"`
	TRSEndpoint    string            `yaml:"trs_endpoint,omitempty"`
	Nickname       string            `yaml:"nickname,omitempty"`
	ParanoidMode   bool              `yaml:"paranoid_mode,omitempty"`
	WorkflowConfig map[string]any    `yaml:"workflow_config,omitempty"`
	Params         map[string]any    `yaml:"params,omitempty"`
	Placeholders   map[string]string `yaml:"placeholders,omitempty"`
	Outputs        map[string]any    `yaml:"outputs,omitempty"`
	DefaultActions []ActionDoc       `yaml:"default_actions,omitempty"`
}

// ActionDoc is one entry of workflow_meta.yaml's default_actions (spec
// §6 "Export action spec").
type ActionDoc struct {
	ID              string            `yaml:"id"`
	Plugin          string            `yaml:"plugin"`
	What            []string          `yaml:"what"`
	SecurityContext string            `yaml:"security-context,omitempty"`
	Setup           map[string]string `yaml:"setup,omitempty"`
	PreferredScheme string            `yaml:"preferred-scheme,omitempty"`
	PreferredPID    string            `yaml:"preferred-pid,omitempty"`
}

// toMap round-trips a ConfigDoc through a generic map[string]any for
// schema validation, the shape jsonschema.v6 expects (spec §6: "Must
// validate against the published stage-definition JSON Schema before any
// staging begins").
func (c ConfigDoc) toMap() map[string]any {
	m := map[string]any{"workflow_id": c.WorkflowID}
	if c.Version != "" {
		m["version"] = c.Version
	}
	if c.WorkflowType != "" {
		m["workflow_type"] = c.WorkflowType
	}
	if c.TRSEndpoint != "" {
		m["trs_endpoint"] = c.TRSEndpoint
	}
	if c.Nickname != "" {
		m["nickname"] = c.Nickname
	}
	m["paranoid_mode"] = c.ParanoidMode
	if c.WorkflowConfig != nil {
		m["workflow_config"] = c.WorkflowConfig
	}
	if c.Params != nil {
		m["params"] = c.Params
	}
	if c.Placeholders != nil {
		placeholders := make(map[string]any, len(c.Placeholders))
		for k, v := range c.Placeholders {
			placeholders[k] = v
		}
		m["placeholders"] = placeholders
	}
	if c.Outputs != nil {
		m["outputs"] = c.Outputs
	}
	if len(c.DefaultActions) > 0 {
		actions := make([]any, len(c.DefaultActions))
		for i, a := range c.DefaultActions {
			am := map[string]any{"id": a.ID, "plugin": a.Plugin}
			what := make([]any, len(a.What))
			for j, w := range a.What {
				what[j] = w
			}
			am["what"] = what
			if a.SecurityContext != "" {
				am["security-context"] = a.SecurityContext
			}
			if a.Setup != nil {
				setup := make(map[string]any, len(a.Setup))
				for k, v := range a.Setup {
					setup[k] = v
				}
				am["setup"] = setup
			}
			if a.PreferredScheme != "" {
				am["preferred-scheme"] = a.PreferredScheme
			}
			if a.PreferredPID != "" {
				am["preferred-pid"] = a.PreferredPID
			}
			actions[i] = am
		}
		m["default_actions"] = actions
	}
	return m
}

// toExportAction converts one ActionDoc into a model.ExportAction,
// parsing each "what" token ("input:name"|"output:name"|"working-directory:")
// per spec §6.
func (a ActionDoc) toExportAction() (model.ExportAction, error) {
	ea := model.ExportAction{
		ActionID:        a.ID,
		PluginID:        a.Plugin,
		ContextName:     a.SecurityContext,
		Setup:           a.Setup,
		PreferredScheme: a.PreferredScheme,
		PreferredID:     a.PreferredPID,
	}
	for _, token := range a.What {
		item, err := parseExportItemToken(token)
		if err != nil {
			return model.ExportAction{}, fmt.Errorf("action %s: %w", a.ID, err)
		}
		ea.What = append(ea.What, item)
	}
	return ea, nil
}

func parseExportItemToken(token string) (model.ExportItem, error) {
	prefix, name, found := strings.Cut(token, ":")
	if !found {
		return model.ExportItem{}, fmt.Errorf("malformed export item %q", token)
	}
	switch prefix {
	case "input":
		return model.ExportItem{Type: model.ExportParam, Name: name}, nil
	case "output":
		return model.ExportItem{Type: model.ExportOutput, Name: name}, nil
	case "working-directory":
		return model.ExportItem{Type: model.ExportWorkingDirectory}, nil
	default:
		return model.ExportItem{}, fmt.Errorf("unrecognized export item prefix %q", prefix)
	}
}
