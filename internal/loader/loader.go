package loader

import (
	"fmt"
	"os"

	"github.com/sourceplane/flowforge/internal/model"
	"github.com/sourceplane/flowforge/internal/normalize"
	"github.com/sourceplane/flowforge/internal/pipeline"
	"github.com/sourceplane/flowforge/internal/reference"
	"github.com/sourceplane/flowforge/internal/schema"
	"gopkg.in/yaml.v3"
)

// LoadPipeline loads, schema-validates, and normalizes a pipeline YAML file.
func LoadPipeline(path string) (*model.PipelineFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline file: %w", err)
	}

	// Validate the raw document first so schema errors point at the file,
	// not at whatever the typed decode made of it.
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}

	validator, err := schema.NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidatePipeline(raw); err != nil {
		return nil, err
	}

	var doc model.PipelineFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline YAML: %w", err)
	}

	if err := normalize.NormalizePipeline(&doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// BuildPipeline replays a normalized pipeline document through the builder
// API, so every construction invariant is enforced by the builder itself.
func BuildPipeline(doc *model.PipelineFile) (*pipeline.Builder, error) {
	b := pipeline.New(doc.Metadata.Name, doc.Root, doc.Metadata.Description)
	tasks := make(map[string]pipeline.Task)

	addStep := func(step *model.StepDoc) error {
		inputs, err := decodeInputs(step.Inputs)
		if err != nil {
			return fmt.Errorf("step %q: %w", step.Name, err)
		}

		after := make([]pipeline.Task, 0, len(step.After))
		for _, name := range step.After {
			task, exists := tasks[name]
			if !exists {
				return fmt.Errorf("step %q: after %q: step not declared yet", step.Name, name)
			}
			after = append(after, task)
		}

		task, err := b.AddStep(step.Name, pipeline.StepKind(step.Kind), inputs, after, stepOptions(step))
		if err != nil {
			return err
		}
		tasks[step.Name] = task
		return nil
	}

	for _, entry := range doc.Entries {
		if entry.Step != nil {
			if err := addStep(entry.Step); err != nil {
				return nil, err
			}
			continue
		}

		cond := entry.Condition
		left, err := decodeValue(cond.Left)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", cond.Name, err)
		}
		// Decode the right operand too, so a placeholder written there is
		// rejected by the builder instead of comparing as a literal string.
		right, err := decodeValue(cond.Right)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", cond.Name, err)
		}

		err = b.Condition(left, pipeline.Operator(cond.Operator), right, cond.Name, func() error {
			for i := range cond.Steps {
				if err := addStep(&cond.Steps[i]); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if doc.ExitNotification != nil {
		if err := b.AddExitNotification(doc.ExitNotification.Recipients); err != nil {
			return nil, err
		}
	}

	return b, nil
}

// decodeInputs turns placeholder strings into typed references; everything
// else stays a literal.
func decodeInputs(inputs map[string]any) (map[string]any, error) {
	decoded := make(map[string]any, len(inputs))
	for key, value := range inputs {
		v, err := decodeValue(value)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", key, err)
		}
		decoded[key] = v
	}
	return decoded, nil
}

func decodeValue(value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return value, nil
	}
	ref, isRef, err := reference.Parse(s)
	if err != nil {
		return nil, err
	}
	if isRef {
		return ref, nil
	}
	return s, nil
}

func stepOptions(step *model.StepDoc) pipeline.Options {
	opts := pipeline.Options{
		BaseImage: step.BaseImage,
		Packages:  step.Packages,
		Command:   step.Command,
	}
	if step.Resources != nil {
		opts.Resources = &pipeline.ResourceSpec{
			MachineType: step.Resources.MachineType,
			Replicas:    step.Resources.Replicas,
		}
	}
	if step.Metric != nil {
		opts.Metric = &pipeline.MetricSpec{
			MetricType: step.Metric.MetricType,
			Metadata:   step.Metric.Metadata,
		}
	}
	if step.Model != nil {
		opts.Model = &pipeline.ModelUploadSpec{
			DisplayName:  step.Model.DisplayName,
			ArtifactURI:  step.Model.ArtifactURI,
			ServingImage: step.Model.ServingImage,
			ParentModel:  step.Model.ParentModel,
		}
	}
	if step.BatchPredict != nil {
		opts.BatchPredict = &pipeline.BatchPredictSpec{
			JobDisplayName:    step.BatchPredict.JobDisplayName,
			Model:             step.BatchPredict.Model,
			InstancesFormat:   step.BatchPredict.InstancesFormat,
			SourceURIs:        step.BatchPredict.SourceURIs,
			DestinationPrefix: step.BatchPredict.DestinationPrefix,
		}
	}
	return opts
}
