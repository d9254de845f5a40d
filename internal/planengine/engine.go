// Package planengine is an execution-engine implementation that records
// compiler output as a serializable model.Plan instead of submitting work
// anywhere. The resulting document is what the run and submit commands
// consume.
package planengine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/sourceplane/flowforge/internal/compile"
	"github.com/sourceplane/flowforge/internal/model"
)

// APIVersion stamped on every generated plan.
const APIVersion = "flowforge.io/v1"

// ErrScopeOpen is returned when a second conditional scope is opened before
// the first one closes. The compiler never does this; the check guards against
// misuse by other callers.
var ErrScopeOpen = errors.New("conditional scope already open")

// Engine lowers compiler calls into a model.Plan.
type Engine struct {
	plan   *model.Plan
	index  map[string]int // task name -> position in plan.Tasks
	branch string         // open condition ID, "" at top level
}

// New creates an engine that produces a plan with the given identity.
func New(name, description, root string) *Engine {
	return &Engine{
		plan: &model.Plan{
			APIVersion: APIVersion,
			Kind:       "Plan",
			Metadata:   model.Metadata{Name: name, Description: description},
			Root:       root,
			Tasks:      make([]model.PlanTask, 0),
		},
		index: make(map[string]int),
	}
}

// Plan returns the recorded plan.
func (e *Engine) Plan() *model.Plan { return e.plan }

type taskRef struct {
	name string
}

// Output returns the deferred representation of a task output: a model.Value
// naming the producing task. The comparison and data edges stay symbolic
// until execution.
func (t *taskRef) Output(field string) any {
	return model.TaskOutput(t.name, field)
}

// CreateTask appends a task to the plan under the currently open branch.
func (e *Engine) CreateTask(spec compile.TaskSpec) (compile.TaskRef, error) {
	if _, exists := e.index[spec.Name]; exists {
		return nil, fmt.Errorf("task %q already in plan", spec.Name)
	}

	task := model.PlanTask{
		Name:      spec.Name,
		Kind:      spec.Kind,
		Branch:    e.branch,
		Inputs:    toValues(spec.Inputs),
		BaseImage: spec.BaseImage,
		Packages:  spec.Packages,
		Command:   spec.Command,
	}
	if spec.Resources != nil {
		task.Resources = &model.Resources{
			MachineType: spec.Resources.MachineType,
			Replicas:    spec.Resources.Replicas,
		}
	}

	e.index[spec.Name] = len(e.plan.Tasks)
	e.plan.Tasks = append(e.plan.Tasks, task)
	return &taskRef{name: spec.Name}, nil
}

// SetDisplayName records display metadata for the named task. A handle this
// engine did not issue, or one naming a task missing from the plan, is
// reported rather than silently dropped.
func (e *Engine) SetDisplayName(task compile.TaskRef, name string) {
	ref, ok := task.(*taskRef)
	if !ok {
		slog.Warn("display name for foreign task handle ignored", "displayName", name)
		return
	}
	i, ok := e.index[ref.name]
	if !ok {
		slog.Warn("display name for unknown task ignored", "task", ref.name)
		return
	}
	e.plan.Tasks[i].DisplayName = name
}

// AddOrderingEdge records an explicit from-before-to edge.
func (e *Engine) AddOrderingEdge(from, to compile.TaskRef) error {
	toName := to.(*taskRef).name
	i, ok := e.index[toName]
	if !ok {
		return fmt.Errorf("task %q not in plan", toName)
	}
	e.plan.Tasks[i].DependsOn = append(e.plan.Tasks[i].DependsOn, from.(*taskRef).name)
	return nil
}

// OpenConditionalScope starts a branch gated on pred. Tasks created before
// the matching close are tagged with the branch ID.
func (e *Engine) OpenConditionalScope(pred compile.Predicate, name string) error {
	if e.branch != "" {
		return fmt.Errorf("%w: %s", ErrScopeOpen, e.branch)
	}

	id := fmt.Sprintf("cond-%d", len(e.plan.Conditions)+1)
	e.plan.Conditions = append(e.plan.Conditions, model.Condition{
		ID:          id,
		DisplayName: name,
		Left:        toValue(pred.Left),
		Operator:    pred.Operator,
		Right:       pred.Right,
	})
	e.branch = id
	return nil
}

// CloseConditionalScope seals the open branch.
func (e *Engine) CloseConditionalScope() {
	e.branch = ""
}

// WrapWithCompletionHandler records the notification and runs body. The plan
// carries the notification whether or not body fails, matching the runtime
// guarantee that it fires on every path.
func (e *Engine) WrapWithCompletionHandler(spec compile.NotificationSpec, body func() error) error {
	e.plan.ExitNotification = &model.Notification{Recipients: spec.Recipients}
	return body()
}

func toValues(inputs map[string]any) map[string]model.Value {
	if len(inputs) == 0 {
		return nil
	}
	values := make(map[string]model.Value, len(inputs))
	for k, v := range inputs {
		values[k] = toValue(v)
	}
	return values
}

func toValue(v any) model.Value {
	if value, ok := v.(model.Value); ok {
		return value
	}
	return model.LiteralValue(v)
}
