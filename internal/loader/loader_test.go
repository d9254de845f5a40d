package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowforge/internal/pipeline"
	"github.com/sourceplane/flowforge/internal/reference"
)

func writePipeline(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

const trainingPipeline = `
metadata:
  name: training
  description: train, evaluate, maybe deploy
root: gs://bucket/pipeline-root
entries:
  - step:
      name: train
      kind: function
      command: ["python", "train.py"]
      inputs:
        epochs: "{{params.epochs}}"
  - step:
      name: eval
      kind: function
      command: ["python", "eval.py"]
      inputs:
        model: "{{tasks.train.outputs.model_uri}}"
  - condition:
      name: deploy-gate
      left: "{{tasks.eval.outputs.accuracy}}"
      operator: ">"
      right: 0.9
      steps:
        - name: deploy
          kind: function
          command: ["python", "deploy.py"]
          after: [train]
exitNotification:
  recipients: [oncall@example.com]
`

func TestLoadPipeline(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, trainingPipeline))
	require.NoError(t, err)

	assert.Equal(t, "flowforge.io/v1", doc.APIVersion)
	assert.Equal(t, "Pipeline", doc.Kind)
	assert.Equal(t, "training", doc.Metadata.Name)
	assert.Equal(t, "gs://bucket/pipeline-root", doc.Root)
	require.Len(t, doc.Entries, 3)
	require.NotNil(t, doc.ExitNotification)
}

func TestLoadPipelineMissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "failed to read pipeline file")
}

func TestLoadPipelineSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing root", `
metadata:
  name: p
entries: []
`},
		{"bad step kind", `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: x
      kind: teleport
`},
		{"bad operator", `
metadata:
  name: p
root: gs://root
entries:
  - condition:
      left: a
      operator: "~="
      right: b
      steps: []
`},
		{"step and condition in one entry", `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: x
      kind: function
      command: [true]
    condition:
      left: a
      operator: "=="
      right: b
      steps: []
`},
		{"empty recipients", `
metadata:
  name: p
root: gs://root
entries: []
exitNotification:
  recipients: []
`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadPipeline(writePipeline(t, tc.yaml))
			require.Error(t, err)
		})
	}
}

func TestBuildPipelineReplaysDocument(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, trainingPipeline))
	require.NoError(t, err)

	b, err := BuildPipeline(doc)
	require.NoError(t, err)

	assert.Equal(t, "training", b.Name())
	assert.Equal(t, "gs://bucket/pipeline-root", b.Root())
	require.NoError(t, b.Sealed())

	entries := b.Entries()
	require.Len(t, entries, 3)

	// Placeholder strings come back as typed references.
	train := entries[0].Step
	assert.Equal(t, reference.Param("epochs"), train.Inputs["epochs"])

	eval := entries[1].Step
	assert.Equal(t, reference.Output("train", "model_uri"), eval.Inputs["model"])

	gate := entries[2].Condition
	require.NotNil(t, gate)
	assert.Equal(t, "deploy-gate", gate.Name)
	assert.Equal(t, reference.Output("eval", "accuracy"), gate.Left)
	assert.Equal(t, pipeline.OpGreater, gate.Operator)
	require.Len(t, gate.Steps, 1)

	// The after edge resolved to the handle of the declared step.
	require.Len(t, gate.Steps[0].After, 1)
	assert.Equal(t, "train", gate.Steps[0].After[0].Name())

	require.NotNil(t, b.ExitNotification())
	assert.Equal(t, []string{"oncall@example.com"}, b.ExitNotification().Recipients)
}

func TestBuildPipelineSurfacesBuilderErrors(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: dup
      kind: function
      command: [run]
  - step:
      name: dup
      kind: function
      command: [run]
`))
	require.NoError(t, err)

	_, err = BuildPipeline(doc)
	require.ErrorIs(t, err, pipeline.ErrDuplicateStepName)
}

func TestBuildPipelineRejectsForwardAfterReference(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: early
      kind: function
      command: [run]
      after: [late]
  - step:
      name: late
      kind: function
      command: [run]
`))
	require.NoError(t, err)

	_, err = BuildPipeline(doc)
	require.ErrorContains(t, err, "step not declared yet")
}

func TestBuildPipelineRejectsForwardOutputReference(t *testing.T) {
	// The document order puts the consumer before its producer; the builder
	// rejects this during replay, so validate fails instead of compile.
	doc, err := LoadPipeline(writePipeline(t, `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: first
      kind: function
      command: [run]
      inputs:
        data: "{{tasks.second.outputs.x}}"
  - step:
      name: second
      kind: function
      command: [run]
`))
	require.NoError(t, err)

	_, err = BuildPipeline(doc)
	require.ErrorIs(t, err, pipeline.ErrForwardReference)
}

func TestBuildPipelineRejectsForwardConditionOperand(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, `
metadata:
  name: p
root: gs://root
entries:
  - condition:
      left: "{{tasks.later.outputs.flag}}"
      operator: "=="
      right: "yes"
      steps: []
  - step:
      name: later
      kind: function
      command: [run]
`))
	require.NoError(t, err)

	_, err = BuildPipeline(doc)
	require.ErrorIs(t, err, pipeline.ErrForwardReference)
}

func TestBuildPipelineRejectsPlaceholderRightOperand(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: eval
      kind: function
      command: [run]
  - condition:
      left: "{{tasks.eval.outputs.accuracy}}"
      operator: ">"
      right: "{{params.threshold}}"
      steps: []
`))
	require.NoError(t, err)

	_, err = BuildPipeline(doc)
	require.ErrorContains(t, err, "right operand must be a literal")
}

func TestBuildPipelineRejectsMalformedPlaceholder(t *testing.T) {
	doc, err := LoadPipeline(writePipeline(t, `
metadata:
  name: p
root: gs://root
entries:
  - step:
      name: x
      kind: function
      command: [run]
      inputs:
        bad: "{{tasks.train.model_uri}}"
`))
	require.NoError(t, err)

	_, err = BuildPipeline(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "x"`)
}
