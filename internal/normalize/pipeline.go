package normalize

import (
	"fmt"

	"github.com/sourceplane/flowforge/internal/model"
)

// NormalizePipeline brings a raw pipeline document into canonical form:
// required identity fields checked, defaults applied, entry shape verified.
// Graph-level invariants (unique names, kind options, nesting) are enforced
// later by the builder, not here.
func NormalizePipeline(doc *model.PipelineFile) error {
	if doc == nil {
		return fmt.Errorf("pipeline document cannot be nil")
	}

	if doc.APIVersion == "" {
		doc.APIVersion = "flowforge.io/v1"
	}
	if doc.Kind != "" && doc.Kind != "Pipeline" {
		return fmt.Errorf("unsupported document kind %q", doc.Kind)
	}
	doc.Kind = "Pipeline"

	if doc.Metadata.Name == "" {
		return fmt.Errorf("pipeline must have a name")
	}
	if doc.Root == "" {
		return fmt.Errorf("pipeline %s must have a storage root", doc.Metadata.Name)
	}

	for i := range doc.Entries {
		entry := &doc.Entries[i]
		switch {
		case entry.Step != nil && entry.Condition != nil:
			return fmt.Errorf("entry %d: step and condition are mutually exclusive", i)
		case entry.Step == nil && entry.Condition == nil:
			return fmt.Errorf("entry %d: must declare a step or a condition", i)
		case entry.Step != nil:
			normalizeStep(entry.Step)
		case entry.Condition != nil:
			for j := range entry.Condition.Steps {
				normalizeStep(&entry.Condition.Steps[j])
			}
		}
	}

	return nil
}

func normalizeStep(step *model.StepDoc) {
	if step.Inputs == nil {
		step.Inputs = make(map[string]any)
	}
	if step.After == nil {
		step.After = []string{}
	}
}
