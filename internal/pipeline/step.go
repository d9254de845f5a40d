package pipeline

// StepKind tags the closed set of step types a pipeline may contain.
type StepKind string

const (
	KindFunction      StepKind = "function"
	KindModelUpload   StepKind = "model-upload"
	KindBatchPredict  StepKind = "batch-predict"
	KindMetricMonitor StepKind = "metric-monitor"
)

// KnownKind reports whether k is one of the supported step kinds.
func KnownKind(k StepKind) bool {
	switch k {
	case KindFunction, KindModelUpload, KindBatchPredict, KindMetricMonitor:
		return true
	}
	return false
}

// ResourceSpec carries the machine shape a step runs on.
type ResourceSpec struct {
	MachineType string `yaml:"machineType" json:"machineType"`
	Replicas    int    `yaml:"replicas,omitempty" json:"replicas,omitempty"`
}

// MetricSpec is the mandatory metadata for metric-monitor steps.
type MetricSpec struct {
	MetricType string            `yaml:"metricType" json:"metricType"`
	Metadata   map[string]string `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ModelUploadSpec is the mandatory configuration for model-upload steps.
type ModelUploadSpec struct {
	DisplayName  string `yaml:"displayName" json:"displayName"`
	ArtifactURI  any    `yaml:"artifactUri" json:"artifactUri"`
	ServingImage string `yaml:"servingImage" json:"servingImage"`
	ParentModel  any    `yaml:"parentModel,omitempty" json:"parentModel,omitempty"`
}

// BatchPredictSpec is the mandatory configuration for batch-predict steps.
type BatchPredictSpec struct {
	JobDisplayName    string `yaml:"jobDisplayName" json:"jobDisplayName"`
	Model             any    `yaml:"model" json:"model"`
	InstancesFormat   string `yaml:"instancesFormat" json:"instancesFormat"`
	SourceURIs        []any  `yaml:"sourceUris" json:"sourceUris"`
	DestinationPrefix string `yaml:"destinationPrefix" json:"destinationPrefix"`
}

// Options is the bag of kind-specific step settings. BaseImage, when set,
// overrides any shared base image supplied at compile time.
type Options struct {
	BaseImage    string
	Packages     []string
	Command      []string
	Resources    *ResourceSpec
	Metric       *MetricSpec
	Model        *ModelUploadSpec
	BatchPredict *BatchPredictSpec
}

// Step is a single declared unit of work. Steps are owned by the builder that
// created them; callers hold only Task handles.
type Step struct {
	Name    string
	Kind    StepKind
	Inputs  map[string]any
	After   []Task
	Options Options
}

// Operator is a condition comparison operator.
type Operator string

const (
	OpEqual          Operator = "=="
	OpNotEqual       Operator = "!="
	OpGreater        Operator = ">"
	OpLess           Operator = "<"
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
)

// KnownOperator reports whether op is one of the supported comparisons.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpGreaterOrEqual, OpLessOrEqual:
		return true
	}
	return false
}

// ConditionGroup is a conditional branch: a runtime-evaluated comparison
// gating an ordered list of child steps. Groups never nest.
type ConditionGroup struct {
	Name     string
	Left     any // literal or reference.Ref
	Operator Operator
	Right    any // literal only
	Steps    []*Step
	sealed   bool
}

// Entry is one top-level item of a pipeline: exactly one of Step or Condition
// is non-nil.
type Entry struct {
	Step      *Step
	Condition *ConditionGroup
}

// ExitNotification is the single pipeline-level completion notification.
type ExitNotification struct {
	Recipients []string
}
