package controller

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wfexsgo/core/internal/model"
)

func newTestOptions(t *testing.T) Options {
	t.Helper()
	return Options{Log: zaptest.NewLogger(t)}
}

func TestNewProvisionsInstanceAtInit(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "my-run", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "my-run", c.Instance.Nickname)
	assert.False(t, c.Status.Config.OK())
	assert.NotEmpty(t, c.Instance.ID)
}

func TestMarshallConfigRejectsMissingWorkflowID(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	err = c.MarshallConfig(ConfigDoc{})
	assert.Error(t, err)
	assert.False(t, c.Status.Config.OK())
}

func TestMarshallConfigSucceedsAndPersists(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.MarshallConfig(ConfigDoc{WorkflowID: "wf-1"}))
	assert.True(t, c.Status.Config.OK())

	require.NoError(t, c.Close())

	reopened, err := Open(rawDir, newTestOptions(t))
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.Status.Config.OK())
	assert.Equal(t, "wf-1", reopened.Meta.WorkflowID)
}

func TestFetchWorkflowRequiresMarshalledConfig(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	err = c.FetchWorkflow(nil)
	require.Error(t, err)
}

func TestMarshallStageRequiresMarshalledConfig(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	err = c.MarshallStage()
	require.Error(t, err)
}

func TestExecuteWorkflowRequiresMarshalledStage(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.ExecuteWorkflow(nil, nil)
	require.Error(t, err)
}

func TestEmitStageCrateRequiresMarshalledStage(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	err = c.EmitStageCrate()
	require.Error(t, err)
}

func TestOpenOnFreshRawDirReturnsInitController(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := Open(rawDir, newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.Status.Config.OK())
	assert.False(t, c.Setup.IsDamaged)
}

func TestSecondOpenFailsWhileFirstHoldsTheLock(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c1, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c1.Close()

	_, err = New(rawDir, "", newTestOptions(t))
	assert.Error(t, err)
}

func TestMarshallConfigIsIdempotentWithoutOverwrite(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.MarshallConfig(ConfigDoc{WorkflowID: "wf-1"}))
	require.NoError(t, c.MarshallConfig(ConfigDoc{WorkflowID: "wf-2"}))
	assert.Equal(t, "wf-1", c.Meta.WorkflowID)
}

func TestMarshallConfigOverwritesWhenRequested(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	opts := newTestOptions(t)
	opts.Overwrite = true
	c, err := New(rawDir, "", opts)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.MarshallConfig(ConfigDoc{WorkflowID: "wf-1"}))
	require.NoError(t, c.MarshallConfig(ConfigDoc{WorkflowID: "wf-2"}))
	assert.Equal(t, "wf-2", c.Meta.WorkflowID)
}

func TestSoftOrFatalDamagesUnderFailOk(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	opts := newTestOptions(t)
	opts.FailOk = true
	c, err := New(rawDir, "", opts)
	require.NoError(t, err)
	defer c.Close()

	err = c.softOrFatal(assert.AnError, &c.Status.Config)
	require.NoError(t, err)
	assert.True(t, c.Setup.IsDamaged)
	assert.NotNil(t, c.Status.Config)
	assert.False(t, c.Status.Config.OK())
}

func TestSoftOrFatalSurfacesErrorWithoutFailOk(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	err = c.softOrFatal(assert.AnError, &c.Status.Config)
	assert.Error(t, err)
	assert.False(t, c.Setup.IsDamaged)
}

func TestExpectedOutputsParsesMetaOutputs(t *testing.T) {
	rawDir := filepath.Join(t.TempDir(), "instance")
	c, err := New(rawDir, "", newTestOptions(t))
	require.NoError(t, err)
	defer c.Close()

	c.Meta = ConfigDoc{
		Outputs: map[string]any{
			"bam": map[string]any{"c-l-a-s-s": "File", "glob": "*.bam"},
		},
	}
	expected, err := c.expectedOutputs()
	require.NoError(t, err)
	require.Contains(t, expected, "bam")
	assert.Equal(t, model.KindFile, expected["bam"].Class)
	assert.Equal(t, "*.bam", expected["bam"].Glob)
}
