package model

// Plan is the final execution-ready lowering of a pipeline graph: every
// reference resolved, every edge materialized, condition predicates embedded
// for runtime evaluation.
type Plan struct {
	APIVersion       string        `json:"apiVersion" yaml:"apiVersion"`
	Kind             string        `json:"kind" yaml:"kind"`
	Metadata         Metadata      `json:"metadata" yaml:"metadata"`
	Root             string        `json:"root" yaml:"root"`
	Tasks            []PlanTask    `json:"tasks" yaml:"tasks"`
	Conditions       []Condition   `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	ExitNotification *Notification `json:"exitNotification,omitempty" yaml:"exitNotification,omitempty"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Value is a resolved input value: either a literal or a deferred task
// output, never both. Parameter references are resolved to literals at
// compile time.
type Value struct {
	Literal  any    `json:"literal,omitempty" yaml:"literal,omitempty"`
	FromTask string `json:"fromTask,omitempty" yaml:"fromTask,omitempty"`
	Output   string `json:"output,omitempty" yaml:"output,omitempty"`
}

// IsDeferred reports whether the value is produced by another task at run time.
func (v Value) IsDeferred() bool { return v.FromTask != "" }

// LiteralValue wraps a concrete value.
func LiteralValue(v any) Value { return Value{Literal: v} }

// TaskOutput wraps a deferred reference to a task's named output.
func TaskOutput(task, output string) Value {
	return Value{FromTask: task, Output: output}
}

// PlanTask is the execution unit in the final plan.
type PlanTask struct {
	Name        string           `json:"name" yaml:"name"`
	Kind        string           `json:"kind" yaml:"kind"`
	DisplayName string           `json:"displayName" yaml:"displayName"`
	Branch      string           `json:"branch,omitempty" yaml:"branch,omitempty"`
	Inputs      map[string]Value `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	DependsOn   []string         `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
	BaseImage   string           `json:"baseImage,omitempty" yaml:"baseImage,omitempty"`
	Packages    []string         `json:"packages,omitempty" yaml:"packages,omitempty"`
	Command     []string         `json:"command,omitempty" yaml:"command,omitempty"`
	Resources   *Resources       `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// Resources is the machine shape a task runs on.
type Resources struct {
	MachineType string `json:"machineType" yaml:"machineType"`
	Replicas    int    `json:"replicas,omitempty" yaml:"replicas,omitempty"`
}

// Condition is a runtime-evaluated branch predicate. Tasks whose Branch field
// names this condition run only when the comparison holds.
type Condition struct {
	ID          string `json:"id" yaml:"id"`
	DisplayName string `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Left        Value  `json:"left" yaml:"left"`
	Operator    string `json:"operator" yaml:"operator"`
	Right       any    `json:"right" yaml:"right"`
}

// Notification is the pipeline-level completion notification.
type Notification struct {
	Recipients []string `json:"recipients" yaml:"recipients"`
}
