// Package compile lowers a sealed pipeline graph into concrete engine calls:
// task instances, data edges, explicit ordering edges, and conditional
// wrapping. Compilation is a single synchronous depth-first pass; any failure
// aborts the whole compile and no partial plan reaches the engine.
package compile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sourceplane/flowforge/internal/pipeline"
	"github.com/sourceplane/flowforge/internal/reference"
)

var (
	// ErrDanglingDependency means an `after` edge names a step that has not
	// been instantiated yet. The builder rejects forward references, so this
	// indicates out-of-order traversal rather than user error.
	ErrDanglingDependency = errors.New("ordering dependency on uninstantiated step")

	// ErrBranchScoped means a step outside a conditional branch references a
	// producer inside one. Enclosing-scope producers are visible to branch
	// children, never the other way around.
	ErrBranchScoped = errors.New("cannot reference a step inside a conditional branch from outside it")
)

// Options carries the per-compile inputs fixed for the whole pass.
type Options struct {
	// Parameters is the runtime parameter table that {{params.*}} references
	// resolve against.
	Parameters map[string]any

	// BaseImage, when non-empty, is injected into every step that does not
	// set its own base image override.
	BaseImage string
}

// Compile walks the builder's entry list in declaration order and emits the
// execution plan through eng.
func Compile(b *pipeline.Builder, opts Options, eng Engine) error {
	if err := b.Sealed(); err != nil {
		return err
	}

	c := &compiler{
		eng:       eng,
		params:    opts.Parameters,
		baseImage: opts.BaseImage,
		tasks:     make(map[string]TaskRef),
		producers: make(map[string]reference.Producer),
		sealed:    make(map[string]bool),
	}
	if c.params == nil {
		c.params = map[string]any{}
	}

	run := func() error { return c.compileEntries(b.Entries()) }

	if exit := b.ExitNotification(); exit != nil {
		return eng.WrapWithCompletionHandler(NotificationSpec{Recipients: exit.Recipients}, run)
	}
	return run()
}

type compiler struct {
	eng       Engine
	params    map[string]any
	baseImage string

	condSeq int

	// tasks and producers grow as steps are instantiated, in declaration
	// order. sealed marks steps that belong to an already-closed branch and
	// are therefore out of scope for later references.
	tasks     map[string]TaskRef
	producers map[string]reference.Producer
	sealed    map[string]bool
}

func (c *compiler) compileEntries(entries []pipeline.Entry) error {
	for _, entry := range entries {
		switch {
		case entry.Step != nil:
			if _, err := c.compileStep(entry.Step); err != nil {
				return err
			}
		case entry.Condition != nil:
			if err := c.compileCondition(entry.Condition); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) compileStep(step *pipeline.Step) (TaskRef, error) {
	resolved, err := c.resolveInputs(step)
	if err != nil {
		return nil, err
	}

	baseImage := step.Options.BaseImage
	if baseImage == "" {
		baseImage = c.baseImage
	}

	spec := TaskSpec{
		Name:      step.Name,
		Kind:      string(step.Kind),
		Inputs:    resolved,
		BaseImage: baseImage,
		Packages:  step.Options.Packages,
		Command:   step.Options.Command,
	}
	if res := step.Options.Resources; res != nil {
		spec.Resources = &ResourceSpec{MachineType: res.MachineType, Replicas: res.Replicas}
	}

	task, err := c.eng.CreateTask(spec)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}
	c.eng.SetDisplayName(task, step.Name)

	for _, dep := range step.After {
		prev, exists := c.tasks[dep.Name()]
		if !exists {
			return nil, fmt.Errorf("step %q after %q: %w", step.Name, dep.Name(), ErrDanglingDependency)
		}
		if c.sealed[dep.Name()] {
			return nil, fmt.Errorf("step %q after %q: %w", step.Name, dep.Name(), ErrBranchScoped)
		}
		if err := c.eng.AddOrderingEdge(prev, task); err != nil {
			return nil, fmt.Errorf("step %q after %q: %w", step.Name, dep.Name(), err)
		}
	}

	c.tasks[step.Name] = task
	c.producers[step.Name] = task
	return task, nil
}

func (c *compiler) compileCondition(group *pipeline.ConditionGroup) error {
	left, err := c.resolveValue(group.Left, fmt.Sprintf("condition %q", group.Name))
	if err != nil {
		return err
	}

	c.condSeq++
	name := group.Name
	if name == "" {
		name = fmt.Sprintf("condition-%d", c.condSeq)
	}

	pred := Predicate{Left: left, Operator: string(group.Operator), Right: group.Right}
	if err := c.eng.OpenConditionalScope(pred, name); err != nil {
		return fmt.Errorf("condition %q: %w", name, err)
	}

	// The scope is closed on the error path too, so the engine never ends a
	// failed compile with a branch still open.
	var branchSteps []string
	branchErr := func() error {
		for _, step := range group.Steps {
			if _, err := c.compileStep(step); err != nil {
				return err
			}
			branchSteps = append(branchSteps, step.Name)
		}
		return nil
	}()
	c.eng.CloseConditionalScope()
	if branchErr != nil {
		return branchErr
	}

	// Producers declared inside the branch go out of scope once it closes.
	for _, name := range branchSteps {
		c.sealed[name] = true
	}
	return nil
}

// resolveInputs resolves every input of a step in stable key order.
func (c *compiler) resolveInputs(step *pipeline.Step) (map[string]any, error) {
	keys := make([]string, 0, len(step.Inputs))
	for k := range step.Inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make(map[string]any, len(step.Inputs))
	for _, k := range keys {
		value, err := c.resolveValue(step.Inputs[k], fmt.Sprintf("step %q input %q", step.Name, k))
		if err != nil {
			return nil, err
		}
		resolved[k] = value
	}
	return resolved, nil
}

func (c *compiler) resolveValue(value any, context string) (any, error) {
	if ref, ok := value.(reference.Ref); ok && ref.Kind == reference.ProducerOutput && c.sealed[ref.Producer] {
		return nil, fmt.Errorf("%s: %s: %w", context, ref, ErrBranchScoped)
	}
	resolved, err := reference.Resolve(value, c.producers, c.params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", context, err)
	}
	return resolved, nil
}
