// Package schema embeds the published stage-definition JSON Schema for
// workflow_meta.yaml (spec §6) and compiles it once, the way
// githubnext-gh-aw's pkg/parser compiles its embedded frontmatter schemas.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed workflow_meta.schema.json
var workflowMetaSchemaJSON string

const workflowMetaSchemaURL = "https://wfexsgo.example/schema/workflow_meta.json"

var (
	compiledOnce   sync.Once
	compiled       *jsonschema.Schema
	compileErr     error
)

func compiledWorkflowMetaSchema() (*jsonschema.Schema, error) {
	compiledOnce.Do(func() {
		var doc any
		if err := json.Unmarshal([]byte(workflowMetaSchemaJSON), &doc); err != nil {
			compileErr = fmt.Errorf("parse embedded workflow_meta schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(workflowMetaSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add workflow_meta schema resource: %w", err)
			return
		}
		sch, err := compiler.Compile(workflowMetaSchemaURL)
		if err != nil {
			compileErr = fmt.Errorf("compile workflow_meta schema: %w", err)
			return
		}
		compiled = sch
	})
	return compiled, compileErr
}

// ValidateWorkflowMeta validates a decoded workflow_meta.yaml document
// (already unmarshalled into a generic map, as yaml.v3 + json round-trips
// produce) against the embedded schema. Called before marshallConfig
// commits, per spec §6.
func ValidateWorkflowMeta(doc map[string]any) error {
	sch, err := compiledWorkflowMetaSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("workflow_meta.yaml failed schema validation: %w", err)
	}
	return nil
}
