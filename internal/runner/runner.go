// Package runner executes a compiled plan locally in dependency order. It is
// a development-time convenience: function steps run as subprocesses, remote
// service shims are announced and skipped, condition predicates are evaluated
// from recorded task outputs the same way the remote engine would.
package runner

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/sourceplane/flowforge/internal/model"
)

// OutputsEnv is the environment variable naming the file a function step
// writes key=value output lines to.
const OutputsEnv = "FLOWFORGE_OUTPUTS"

// Notifier delivers the exit notification. err is nil on success.
type Notifier func(recipients []string, err error)

// Runner executes a compiled plan in dependency order.
type Runner struct {
	WorkDir string
	Stdout  io.Writer
	Stderr  io.Writer
	DryRun  bool

	// Notify handles the exit notification; when nil it is printed to
	// Stdout.
	Notify Notifier
}

func NewRunner(workDir string, stdout, stderr io.Writer, dryRun bool) *Runner {
	return &Runner{
		WorkDir: workDir,
		Stdout:  stdout,
		Stderr:  stderr,
		DryRun:  dryRun,
	}
}

// Run executes every task of the plan that its branch predicate admits. The
// exit notification, when present, fires exactly once on every path.
func (r *Runner) Run(plan *model.Plan) (err error) {
	if plan == nil {
		return fmt.Errorf("plan cannot be nil")
	}

	if plan.ExitNotification != nil {
		defer func() { r.notify(plan.ExitNotification.Recipients, err) }()
	}

	conditions := make(map[string]model.Condition, len(plan.Conditions))
	for _, cond := range plan.Conditions {
		conditions[cond.ID] = cond
	}

	ordered, err := topologicalOrder(plan.Tasks, conditions)
	if err != nil {
		return err
	}

	outputs := make(map[string]map[string]string)
	verdicts := make(map[string]bool)

	for _, task := range ordered {
		if task.Branch != "" {
			taken, err := r.branchTaken(task.Branch, conditions, outputs, verdicts)
			if err != nil {
				return err
			}
			if !taken {
				fmt.Fprintf(r.Stdout, "○ Task %s skipped (branch %s not taken)\n", task.Name, task.Branch)
				continue
			}
		}

		if err := r.runTask(task, outputs); err != nil {
			return err
		}
	}

	return nil
}

func (r *Runner) runTask(task model.PlanTask, outputs map[string]map[string]string) error {
	fmt.Fprintf(r.Stdout, "→ Task %s (%s)\n", task.Name, task.Kind)

	if r.DryRun {
		if len(task.Command) > 0 {
			fmt.Fprintf(r.Stdout, "    %s\n", strings.Join(task.Command, " "))
		}
		return nil
	}

	if task.Kind != "function" {
		fmt.Fprintf(r.Stdout, "    remote service step, skipped in local execution\n")
		return nil
	}
	if len(task.Command) == 0 {
		return fmt.Errorf("task %s has no command", task.Name)
	}

	env := os.Environ()
	for key, value := range task.Inputs {
		concrete, err := concreteValue(value, outputs)
		if err != nil {
			return fmt.Errorf("task %s input %s: %w", task.Name, key, err)
		}
		env = append(env, fmt.Sprintf("FF_INPUT_%s=%s", strings.ToUpper(key), concrete))
	}

	outFile, err := os.CreateTemp("", "flowforge-outputs-")
	if err != nil {
		return fmt.Errorf("task %s: creating outputs file: %w", task.Name, err)
	}
	outPath := outFile.Name()
	outFile.Close()
	defer os.Remove(outPath)
	env = append(env, OutputsEnv+"="+outPath)

	cmd := exec.Command(task.Command[0], task.Command[1:]...)
	cmd.Dir = r.WorkDir
	cmd.Env = env
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("task %s failed: %w", task.Name, err)
	}

	collected, err := readOutputs(outPath)
	if err != nil {
		return fmt.Errorf("task %s: %w", task.Name, err)
	}
	outputs[task.Name] = collected
	return nil
}

// branchTaken evaluates a condition predicate at most once per run, using the
// actual runtime value of the left operand.
func (r *Runner) branchTaken(id string, conditions map[string]model.Condition, outputs map[string]map[string]string, verdicts map[string]bool) (bool, error) {
	if taken, done := verdicts[id]; done {
		return taken, nil
	}

	cond, exists := conditions[id]
	if !exists {
		return false, fmt.Errorf("plan references unknown condition %s", id)
	}

	// Dry runs have no recorded outputs; walk every branch.
	if r.DryRun {
		verdicts[id] = true
		return true, nil
	}

	left, err := concreteValue(cond.Left, outputs)
	if err != nil {
		return false, fmt.Errorf("condition %s: %w", id, err)
	}

	taken, err := compare(left, cond.Operator, cond.Right)
	if err != nil {
		return false, fmt.Errorf("condition %s: %w", id, err)
	}
	verdicts[id] = taken
	return taken, nil
}

func (r *Runner) notify(recipients []string, err error) {
	if r.Notify != nil {
		r.Notify(recipients, err)
		return
	}
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	fmt.Fprintf(r.Stdout, "✉ Pipeline %s, notifying: %s\n", status, strings.Join(recipients, ", "))
}

// concreteValue materializes a plan value: literals as-is, deferred values
// from the recorded outputs of the producing task.
func concreteValue(value model.Value, outputs map[string]map[string]string) (string, error) {
	if !value.IsDeferred() {
		return fmt.Sprint(value.Literal), nil
	}
	produced, exists := outputs[value.FromTask]
	if !exists {
		return "", fmt.Errorf("task %s produced no outputs", value.FromTask)
	}
	out, exists := produced[value.Output]
	if !exists {
		return "", fmt.Errorf("task %s has no output %q", value.FromTask, value.Output)
	}
	return out, nil
}

// readOutputs parses key=value lines written by a function step.
func readOutputs(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading outputs: %w", err)
	}

	outputs := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("malformed output line %q", line)
		}
		outputs[key] = value
	}
	return outputs, nil
}

// topologicalOrder sorts tasks over the union of explicit ordering edges,
// data edges derived from deferred inputs, and the edge from a branch task to
// the producer of its condition's left operand. Ties break by name so
// identical plans always execute in the same order.
func topologicalOrder(tasks []model.PlanTask, conditions map[string]model.Condition) ([]model.PlanTask, error) {
	tasksByName := make(map[string]model.PlanTask, len(tasks))
	inDegree := make(map[string]int, len(tasks))
	dependents := make(map[string][]string, len(tasks))

	for _, task := range tasks {
		tasksByName[task.Name] = task
		inDegree[task.Name] = 0
		dependents[task.Name] = []string{}
	}

	for _, task := range tasks {
		for _, dep := range taskDependencies(task, conditions) {
			if _, exists := tasksByName[dep]; !exists {
				return nil, fmt.Errorf("task %s depends on unknown task %s", task.Name, dep)
			}
			inDegree[task.Name]++
			dependents[dep] = append(dependents[dep], task.Name)
		}
	}

	queue := make([]string, 0)
	for name, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	ordered := make([]model.PlanTask, 0, len(tasks))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, tasksByName[current])

		for _, dep := range dependents[current] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Strings(queue)
	}

	if len(ordered) != len(tasks) {
		return nil, fmt.Errorf("cycle detected in plan tasks")
	}

	return ordered, nil
}

// taskDependencies returns the deduplicated upstream task names of a task:
// explicit DependsOn edges, the producers of deferred inputs, and the
// producer of its branch predicate's left operand.
func taskDependencies(task model.PlanTask, conditions map[string]model.Condition) []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}

	for _, dep := range task.DependsOn {
		add(dep)
	}
	for _, value := range task.Inputs {
		if value.IsDeferred() {
			add(value.FromTask)
		}
	}
	if task.Branch != "" {
		if cond, exists := conditions[task.Branch]; exists && cond.Left.IsDeferred() {
			add(cond.Left.FromTask)
		}
	}
	sort.Strings(deps)
	return deps
}
