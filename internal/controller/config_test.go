package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/model"
)

func TestConfigDocToMapOmitsEmptyOptionalFields(t *testing.T) {
	doc := ConfigDoc{WorkflowID: "wf-1"}
	m := doc.toMap()
	assert.Equal(t, "wf-1", m["workflow_id"])
	assert.NotContains(t, m, "version")
	assert.NotContains(t, m, "nickname")
	assert.Equal(t, false, m["paranoid_mode"])
}

func TestConfigDocToMapIncludesDefaultActions(t *testing.T) {
	doc := ConfigDoc{
		WorkflowID: "wf-1",
		DefaultActions: []ActionDoc{
			{ID: "a1", Plugin: "zenodo", What: []string{"output:result"}, PreferredScheme: "doi"},
		},
	}
	m := doc.toMap()
	actions, ok := m["default_actions"].([]any)
	require.True(t, ok)
	require.Len(t, actions, 1)
	am := actions[0].(map[string]any)
	assert.Equal(t, "a1", am["id"])
	assert.Equal(t, "zenodo", am["plugin"])
	assert.Equal(t, "doi", am["preferred-scheme"])
}

func TestActionDocToExportActionParsesWhatTokens(t *testing.T) {
	a := ActionDoc{
		ID:     "a1",
		Plugin: "zenodo",
		What:   []string{"input:reads", "output:bam", "working-directory:"},
	}
	ea, err := a.toExportAction()
	require.NoError(t, err)
	require.Len(t, ea.What, 3)
	assert.Equal(t, model.ExportItem{Type: model.ExportParam, Name: "reads"}, ea.What[0])
	assert.Equal(t, model.ExportItem{Type: model.ExportOutput, Name: "bam"}, ea.What[1])
	assert.Equal(t, model.ExportItem{Type: model.ExportWorkingDirectory}, ea.What[2])
}

func TestActionDocToExportActionRejectsMalformedToken(t *testing.T) {
	a := ActionDoc{ID: "a1", Plugin: "zenodo", What: []string{"no-colon-here"}}
	_, err := a.toExportAction()
	assert.Error(t, err)
}

func TestActionDocToExportActionRejectsUnknownPrefix(t *testing.T) {
	a := ActionDoc{ID: "a1", Plugin: "zenodo", What: []string{"bogus:thing"}}
	_, err := a.toExportAction()
	assert.Error(t, err)
}
