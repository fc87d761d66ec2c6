package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/model"
)

type fakePlugin struct {
	id   string
	pids []string
	err  error
	got  []model.MaterializedContent
}

func (p *fakePlugin) ID() string { return p.id }

func (p *fakePlugin) Push(ctx context.Context, items []model.MaterializedContent, preferredScheme, preferredID string, credentials map[string]string) ([]ExportedPID, error) {
	p.got = items
	if p.err != nil {
		return nil, p.err
	}
	return p.pids, nil
}

func TestResolveItemsParamOutputAndWorkingDirectory(t *testing.T) {
	inputs := []model.MaterializedInput{
		{Name: "in.bam", Values: []model.ParamValue{
			{Kind: "content", Content: &model.MaterializedContent{LocalPath: "/tmp/a.bam", Kind: model.KindFile}},
		}},
	}
	outputs := []model.MaterializedOutput{
		{Name: "result", Values: []model.MaterializedContent{
			{LocalPath: "/tmp/out.vcf", Kind: model.KindFile},
		}},
	}

	action := model.ExportAction{
		ActionID: "a1",
		What: []model.ExportItem{
			{Type: model.ExportParam, Name: "in.bam"},
			{Type: model.ExportOutput, Name: "result"},
			{Type: model.ExportWorkingDirectory},
		},
	}

	elems, err := ResolveItems(action, "/work", inputs, outputs)
	require.NoError(t, err)
	require.Len(t, elems, 3)
	assert.Equal(t, "/tmp/a.bam", elems[0].LocalPath)
	assert.Equal(t, "/tmp/out.vcf", elems[1].LocalPath)
	assert.Equal(t, "/work", elems[2].LocalPath)
	assert.Equal(t, model.KindDirectory, elems[2].Kind)
}

func TestResolveItemsUnknownParamErrors(t *testing.T) {
	action := model.ExportAction{
		ActionID: "a1",
		What:     []model.ExportItem{{Type: model.ExportParam, Name: "missing"}},
	}
	_, err := ResolveItems(action, "/work", nil, nil)
	assert.Error(t, err)
}

func TestResolveCredentialsActionLevelWins(t *testing.T) {
	action := model.ExportAction{
		ContextName: "zenodo",
		Setup:       map[string]string{"token": "from-action"},
	}
	shared := map[string]map[string]string{
		"zenodo": {"token": "from-shared", "other": "kept"},
	}
	merged := ResolveCredentials(action, shared)
	assert.Equal(t, "from-action", merged["token"])
	assert.Equal(t, "kept", merged["other"])
}

func TestDriverExecuteInvokesRegisteredPlugin(t *testing.T) {
	plugin := &fakePlugin{id: "zenodo", pids: []string{"doi:123"}}
	reg := NewRegistry()
	reg.Register(plugin)

	action := model.ExportAction{
		ActionID: "a1",
		PluginID: "zenodo",
		What:     []model.ExportItem{{Type: model.ExportWorkingDirectory}},
	}

	d := &Driver{Plugins: reg}
	result, err := d.Execute(context.Background(), action, "/work", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"doi:123"}, result.PIDs)
	require.Len(t, plugin.got, 1)
	assert.Equal(t, "/work", plugin.got[0].LocalPath)
}

func TestDriverExecuteUnknownPluginErrors(t *testing.T) {
	d := &Driver{Plugins: NewRegistry()}
	action := model.ExportAction{ActionID: "a1", PluginID: "missing"}
	_, err := d.Execute(context.Background(), action, "/work", nil, nil, nil)
	assert.Error(t, err)
}

func TestSortActionsOrdersByActionID(t *testing.T) {
	actions := []model.ExportAction{
		{ActionID: "b"},
		{ActionID: "a"},
		{ActionID: "c"},
	}
	sorted := SortActions(actions)
	ids := make([]string, len(sorted))
	for i, a := range sorted {
		ids[i] = a.ActionID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}
