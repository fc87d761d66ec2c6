package rocrate

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfexsgo/core/internal/model"
	"github.com/wfexsgo/core/internal/output"
)

func TestBuilderDedupsAndPreservesFirstSeenOrder(t *testing.T) {
	b := NewBuilder()
	b.Set("x", "name", "first")
	b.Set("y", "name", "second")
	b.Set("x", "other", "again")
	b.AddType("x", "File")
	b.AddType("x", "File")

	graph := b.Graph()
	require.Len(t, graph, 2)
	assert.Equal(t, "x", graph[0]["@id"])
	assert.Equal(t, "y", graph[1]["@id"])
	assert.Equal(t, []string{"File"}, graph[0]["@type"])
	assert.Equal(t, "again", graph[0]["other"])
}

func TestBuildStageCrateIncludesWorkflowAndFormalParameters(t *testing.T) {
	me := model.MaterializedWorkflowEngine{
		Workflow: model.LocalWorkflow{RelPath: "main.cwl"},
	}
	inputs := []model.MaterializedInput{
		{Name: "reads", Values: []model.ParamValue{
			{Kind: "content", Content: &model.MaterializedContent{Kind: model.KindFile}},
		}},
	}
	outputs := map[string]*output.ExpectedOutput{
		"bam": {Class: model.KindFile},
	}

	crate := BuildStageCrate(me, "cwltool", inputs, outputs, "")

	var wfNode, paramNode, outputParamNode, rootNode map[string]any
	for _, n := range crate.Graph {
		switch n["@id"] {
		case "workflow/main.cwl":
			wfNode = n
		case "#param-reads":
			paramNode = n
		case "#output-bam":
			outputParamNode = n
		case rootDatasetID:
			rootNode = n
		}
	}

	require.NotNil(t, wfNode)
	require.NotNil(t, paramNode)
	require.NotNil(t, outputParamNode)
	require.NotNil(t, rootNode)
	assert.Equal(t, "File", paramNode["additionalType"])
	assert.Equal(t, "File", outputParamNode["additionalType"])
	assert.Equal(t, Ref("workflow/main.cwl"), rootNode["mainEntity"])
}

func TestBuildExecutionCrateAddsCreateAction(t *testing.T) {
	me := model.MaterializedWorkflowEngine{
		Workflow: model.LocalWorkflow{RelPath: "main.cwl"},
	}
	outputs := []model.MaterializedOutput{
		{Name: "bam", Values: []model.MaterializedContent{
			{LocalPath: "/out/result.bam", Kind: model.KindFile, PrettyFilename: "result.bam", Signature: "sha256:deadbeef"},
		}},
	}
	started := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ended := started.Add(time.Minute)

	crate := BuildExecutionCrate(me, "cwltool", nil, nil, outputs, "", "", started, ended)

	var actionNode map[string]any
	for _, n := range crate.Graph {
		if n["@id"] == "#execution" {
			actionNode = n
		}
	}
	require.NotNil(t, actionNode)
	assert.Equal(t, "2026-01-01T00:00:00Z", actionNode["startTime"])
	assert.Equal(t, []map[string]string{{"@id": "/out/result.bam"}}, actionNode["result"])
}

func TestCrateWriteZipProducesMetadataAndFiles(t *testing.T) {
	dir := t.TempDir()
	workflowFile := filepath.Join(dir, "main.cwl")
	require.NoError(t, os.WriteFile(workflowFile, []byte("cwlVersion: v1.2"), 0o644))

	crate := &Crate{
		Graph: []map[string]any{{"@id": "./", "@type": []string{"Dataset"}}},
		Files: map[string]string{"workflow": workflowFile},
	}

	var buf bytes.Buffer
	require.NoError(t, crate.WriteZip(&buf))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "ro-crate-metadata.json")
	assert.Contains(t, names, "workflow")

	for _, f := range zr.File {
		if f.Name != "ro-crate-metadata.json" {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		var doc map[string]any
		require.NoError(t, json.NewDecoder(rc).Decode(&doc))
		rc.Close()
		assert.Equal(t, contextURL, doc["@context"])
	}
}
