// Package pipeline is the user-facing graph model: a builder that assembles an
// ordered forest of steps and conditional groups, enforcing every construction
// invariant at the call that violates it. Compilation never re-checks what the
// builder already guaranteed.
package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sourceplane/flowforge/internal/reference"
)

// Construction errors. Each is raised synchronously by the violating call.
var (
	ErrDuplicateStepName     = errors.New("step name already used")
	ErrInvalidStepName       = errors.New("invalid step name")
	ErrUnknownStepKind       = errors.New("unknown step kind")
	ErrMissingRequiredOption = errors.New("missing required option")
	ErrNestedCondition       = errors.New("nested conditions are not supported")
	ErrNoOpenCondition       = errors.New("no condition scope is open")
	ErrConditionOpen         = errors.New("condition scope still open")
	ErrInvalidOperator       = errors.New("invalid condition operator")
	ErrDuplicateExitHandler  = errors.New("exit notification already registered")
	ErrEmptyRecipients       = errors.New("exit notification requires at least one recipient")
	ErrForwardReference      = errors.New("reference to a step not yet declared")
)

// Task is a lightweight, copyable handle to a declared step. It references the
// step by name only and owns nothing.
type Task struct {
	name string
}

// Name returns the step name the handle refers to.
func (t Task) Name() string { return t.name }

// Output returns a placeholder for one of this step's outputs, usable as an
// input to any later step.
func (t Task) Output(field string) reference.Ref {
	return reference.Output(t.name, field)
}

var pipelineNameRe = regexp.MustCompile(`[^a-z0-9-]`)

// Builder incrementally assembles a pipeline graph. It is not safe for
// concurrent use: one caller builds one graph per invocation.
type Builder struct {
	name        string
	root        string
	description string

	entries []Entry
	// scopes is an explicit condition scope stack. Policy caps the depth at
	// one, so BeginCondition on a non-empty stack is a checked precondition
	// failure rather than a deeper nesting.
	scopes []*ConditionGroup
	names  map[string]bool
	exit   *ExitNotification
}

// New creates a builder. The pipeline name is normalized to the constrained
// identifier alphabet [a-z0-9-].
func New(name, root, description string) *Builder {
	return &Builder{
		name:        pipelineNameRe.ReplaceAllString(strings.ToLower(name), "-"),
		root:        root,
		description: description,
		names:       make(map[string]bool),
	}
}

// Name returns the normalized pipeline name.
func (b *Builder) Name() string { return b.name }

// Root returns the storage root location for pipeline artifacts.
func (b *Builder) Root() string { return b.root }

// Description returns the optional pipeline description.
func (b *Builder) Description() string { return b.description }

// Parameter returns a placeholder for a runtime parameter supplied at
// compile/submission time.
func (b *Builder) Parameter(name string) reference.Ref {
	return reference.Param(name)
}

// AddStep declares a new step in the currently active scope (top level, or the
// open condition group) and returns a handle for wiring later steps to it.
// Output references in inputs must name an already-declared step.
func (b *Builder) AddStep(name string, kind StepKind, inputs map[string]any, after []Task, opts Options) (Task, error) {
	if !reference.ValidName(name) {
		return Task{}, fmt.Errorf("step %q: %w", name, ErrInvalidStepName)
	}
	if b.names[name] {
		return Task{}, fmt.Errorf("step %q: %w", name, ErrDuplicateStepName)
	}
	if !KnownKind(kind) {
		return Task{}, fmt.Errorf("step %q: %w: %q", name, ErrUnknownStepKind, kind)
	}
	if err := checkRequiredOptions(kind, opts); err != nil {
		return Task{}, fmt.Errorf("step %q: %w", name, err)
	}
	for key, value := range inputs {
		if ref, ok := value.(reference.Ref); ok && ref.Kind == reference.ProducerOutput && !b.names[ref.Producer] {
			return Task{}, fmt.Errorf("step %q input %q: %s: %w", name, key, ref, ErrForwardReference)
		}
	}

	step := &Step{
		Name:    name,
		Kind:    kind,
		Inputs:  copyInputs(inputs),
		After:   append([]Task(nil), after...),
		Options: opts,
	}
	b.names[name] = true

	if group := b.activeCondition(); group != nil {
		group.Steps = append(group.Steps, step)
	} else {
		b.entries = append(b.entries, Entry{Step: step})
	}

	return Task{name: name}, nil
}

// BeginCondition opens a conditional scope gated on a runtime comparison.
// Left may be a literal or a reference; right must be a literal. Steps added
// until EndCondition belong to the branch.
func (b *Builder) BeginCondition(left any, op Operator, right any, name string) error {
	if len(b.scopes) > 0 {
		return fmt.Errorf("condition %q: %w", name, ErrNestedCondition)
	}
	if !KnownOperator(op) {
		return fmt.Errorf("condition %q: %w: %q", name, ErrInvalidOperator, op)
	}
	if ref, ok := left.(reference.Ref); ok && ref.Kind == reference.ProducerOutput && !b.names[ref.Producer] {
		return fmt.Errorf("condition %q: %s: %w", name, ref, ErrForwardReference)
	}
	if _, ok := right.(reference.Ref); ok {
		return fmt.Errorf("condition %q: right operand must be a literal", name)
	}

	b.scopes = append(b.scopes, &ConditionGroup{
		Name:     name,
		Left:     left,
		Operator: op,
		Right:    right,
	})
	return nil
}

// EndCondition seals the open conditional scope and appends it to the scope
// that was active before it opened.
func (b *Builder) EndCondition() error {
	if len(b.scopes) == 0 {
		return ErrNoOpenCondition
	}
	group := b.scopes[len(b.scopes)-1]
	b.scopes = b.scopes[:len(b.scopes)-1]
	group.sealed = true
	b.entries = append(b.entries, Entry{Condition: group})
	return nil
}

// Condition runs body inside a conditional scope, sealing the scope on every
// return path. Errors from body propagate after the scope is closed.
func (b *Builder) Condition(left any, op Operator, right any, name string, body func() error) error {
	if err := b.BeginCondition(left, op, right, name); err != nil {
		return err
	}
	bodyErr := body()
	if err := b.EndCondition(); err != nil {
		return err
	}
	return bodyErr
}

// AddExitNotification registers the single pipeline-level completion
// notification. It fires exactly once regardless of which branch executed or
// whether the pipeline failed.
func (b *Builder) AddExitNotification(recipients []string) error {
	if b.exit != nil {
		return ErrDuplicateExitHandler
	}
	if len(recipients) == 0 {
		return ErrEmptyRecipients
	}
	b.exit = &ExitNotification{Recipients: append([]string(nil), recipients...)}
	return nil
}

// Entries returns the ordered top-level entry list. The caller must not
// mutate it; the builder retains ownership.
func (b *Builder) Entries() []Entry { return b.entries }

// ExitNotification returns the registered notification, or nil.
func (b *Builder) ExitNotification() *ExitNotification { return b.exit }

// Sealed verifies the builder is in a compilable state: no condition scope
// left open.
func (b *Builder) Sealed() error {
	if group := b.activeCondition(); group != nil {
		return fmt.Errorf("condition %q: %w", group.Name, ErrConditionOpen)
	}
	return nil
}

func (b *Builder) activeCondition() *ConditionGroup {
	if len(b.scopes) == 0 {
		return nil
	}
	return b.scopes[len(b.scopes)-1]
}

func checkRequiredOptions(kind StepKind, opts Options) error {
	switch kind {
	case KindFunction:
		if len(opts.Command) == 0 {
			return fmt.Errorf("%w: function steps require a command", ErrMissingRequiredOption)
		}
	case KindMetricMonitor:
		if opts.Metric == nil {
			return fmt.Errorf("%w: metric-monitor steps require metric metadata", ErrMissingRequiredOption)
		}
	case KindModelUpload:
		if opts.Model == nil {
			return fmt.Errorf("%w: model-upload steps require a model spec", ErrMissingRequiredOption)
		}
	case KindBatchPredict:
		if opts.BatchPredict == nil {
			return fmt.Errorf("%w: batch-predict steps require a batch prediction spec", ErrMissingRequiredOption)
		}
	}
	return nil
}

func copyInputs(inputs map[string]any) map[string]any {
	copied := make(map[string]any, len(inputs))
	for k, v := range inputs {
		copied[k] = v
	}
	return copied
}
