package compile

// TaskRef is an engine-issued handle to an instantiated task. Its Output
// method yields whatever the engine uses to represent a deferred output value,
// which is what producer references resolve to.
type TaskRef interface {
	Output(field string) any
}

// Predicate is a deferred comparison embedded in the compiled plan. Left is a
// resolved value (literal or deferred output representation); Right is always
// a literal. The engine evaluates the comparison at execution time.
type Predicate struct {
	Left     any
	Operator string
	Right    any
}

// TaskSpec is the engine-facing description of a single task.
type TaskSpec struct {
	Name      string
	Kind      string
	Inputs    map[string]any
	BaseImage string
	Packages  []string
	Command   []string
	Resources *ResourceSpec
}

// ResourceSpec mirrors the step resource options at the engine boundary.
type ResourceSpec struct {
	MachineType string
	Replicas    int
}

// NotificationSpec describes the pipeline-level completion notification.
type NotificationSpec struct {
	Recipients []string
}

// Engine is the execution-engine boundary consumed by the compiler. The
// compiler never touches engine internals beyond this surface.
type Engine interface {
	// CreateTask instantiates a task from fully resolved inputs.
	CreateTask(spec TaskSpec) (TaskRef, error)

	// SetDisplayName registers display metadata for a task.
	SetDisplayName(task TaskRef, name string)

	// AddOrderingEdge enforces that from completes before to starts, for
	// pairs with no data dependency.
	AddOrderingEdge(from, to TaskRef) error

	// OpenConditionalScope starts a branch gated on pred; tasks created until
	// the matching close belong to the branch.
	OpenConditionalScope(pred Predicate, name string) error

	// CloseConditionalScope seals the innermost open branch.
	CloseConditionalScope()

	// WrapWithCompletionHandler runs body inside a scope whose notification
	// fires exactly once when the wrapped work finishes, on success or
	// failure.
	WrapWithCompletionHandler(spec NotificationSpec, body func() error) error
}
