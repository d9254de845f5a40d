package model

// PipelineFile is the declarative YAML front-end for a pipeline definition.
// It is validated against the embedded schema and then replayed through the
// builder API, so every construction invariant is enforced in one place.
type PipelineFile struct {
	APIVersion       string        `yaml:"apiVersion" json:"apiVersion"`
	Kind             string        `yaml:"kind" json:"kind"`
	Metadata         Metadata      `yaml:"metadata" json:"metadata"`
	Root             string        `yaml:"root" json:"root"`
	Entries          []EntryDoc    `yaml:"entries" json:"entries"`
	ExitNotification *Notification `yaml:"exitNotification,omitempty" json:"exitNotification,omitempty"`
}

// EntryDoc is one top-level pipeline entry: exactly one of Step or Condition
// is set.
type EntryDoc struct {
	Step      *StepDoc      `yaml:"step,omitempty" json:"step,omitempty"`
	Condition *ConditionDoc `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// StepDoc declares a single step. Input values written as
// "{{tasks.N.outputs.F}}" or "{{params.K}}" are decoded into references.
type StepDoc struct {
	Name         string           `yaml:"name" json:"name"`
	Kind         string           `yaml:"kind" json:"kind"`
	Inputs       map[string]any   `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	After        []string         `yaml:"after,omitempty" json:"after,omitempty"`
	BaseImage    string           `yaml:"baseImage,omitempty" json:"baseImage,omitempty"`
	Packages     []string         `yaml:"packages,omitempty" json:"packages,omitempty"`
	Command      []string         `yaml:"command,omitempty" json:"command,omitempty"`
	Resources    *Resources       `yaml:"resources,omitempty" json:"resources,omitempty"`
	Metric       *MetricDoc       `yaml:"metric,omitempty" json:"metric,omitempty"`
	Model        *ModelUploadDoc  `yaml:"model,omitempty" json:"model,omitempty"`
	BatchPredict *BatchPredictDoc `yaml:"batchPredict,omitempty" json:"batchPredict,omitempty"`
}

// ConditionDoc declares a conditional branch and its child steps.
type ConditionDoc struct {
	Name     string    `yaml:"name,omitempty" json:"name,omitempty"`
	Left     any       `yaml:"left" json:"left"`
	Operator string    `yaml:"operator" json:"operator"`
	Right    any       `yaml:"right" json:"right"`
	Steps    []StepDoc `yaml:"steps" json:"steps"`
}

// MetricDoc mirrors pipeline.MetricSpec in document form.
type MetricDoc struct {
	MetricType string            `yaml:"metricType" json:"metricType"`
	Metadata   map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ModelUploadDoc mirrors pipeline.ModelUploadSpec in document form.
type ModelUploadDoc struct {
	DisplayName  string `yaml:"displayName" json:"displayName"`
	ArtifactURI  any    `yaml:"artifactUri" json:"artifactUri"`
	ServingImage string `yaml:"servingImage" json:"servingImage"`
	ParentModel  any    `yaml:"parentModel,omitempty" json:"parentModel,omitempty"`
}

// BatchPredictDoc mirrors pipeline.BatchPredictSpec in document form.
type BatchPredictDoc struct {
	JobDisplayName    string `yaml:"jobDisplayName" json:"jobDisplayName"`
	Model             any    `yaml:"model" json:"model"`
	InstancesFormat   string `yaml:"instancesFormat" json:"instancesFormat"`
	SourceURIs        []any  `yaml:"sourceUris" json:"sourceUris"`
	DestinationPrefix string `yaml:"destinationPrefix" json:"destinationPrefix"`
}
