package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sourceplane/flowforge/internal/model"
)

// PlanViewer provides a human-readable visualization of a plan DAG.
type PlanViewer struct {
	plan *model.Plan
}

// NewPlanViewer creates a new plan viewer.
func NewPlanViewer(plan *model.Plan) *PlanViewer {
	return &PlanViewer{plan: plan}
}

var (
	taskColor   = color.New(color.FgCyan)
	branchColor = color.New(color.FgYellow)
	edgeColor   = color.New(color.FgHiBlack)
)

// ViewDAG returns a tree view of the plan: top-level tasks in declaration
// order, branch tasks grouped under their condition.
func (pv *PlanViewer) ViewDAG() string {
	if len(pv.plan.Tasks) == 0 {
		return "No tasks in plan"
	}

	conditions := make(map[string]model.Condition, len(pv.plan.Conditions))
	for _, cond := range pv.plan.Conditions {
		conditions[cond.ID] = cond
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pipeline: %s\n", pv.plan.Metadata.Name)

	printed := make(map[string]bool)
	for _, task := range pv.plan.Tasks {
		if printed[task.Name] {
			continue
		}

		if task.Branch == "" {
			pv.printTask(&sb, task, "  ")
			printed[task.Name] = true
			continue
		}

		cond := conditions[task.Branch]
		fmt.Fprintf(&sb, "  %s %s\n", branchColor.Sprintf("? %s", displayCondition(cond)), edgeColor.Sprint(task.Branch))
		for _, branchTask := range pv.plan.Tasks {
			if branchTask.Branch == task.Branch {
				pv.printTask(&sb, branchTask, "    ")
				printed[branchTask.Name] = true
			}
		}
	}

	return sb.String()
}

// ViewDependencies returns every task with its upstream edges.
func (pv *PlanViewer) ViewDependencies() string {
	var sb strings.Builder
	for _, task := range pv.plan.Tasks {
		deps := upstream(task)
		if len(deps) == 0 {
			fmt.Fprintf(&sb, "%s (no dependencies)\n", taskColor.Sprint(task.Name))
			continue
		}
		fmt.Fprintf(&sb, "%s %s %s\n", taskColor.Sprint(task.Name), edgeColor.Sprint("<-"), strings.Join(deps, ", "))
	}
	return sb.String()
}

func (pv *PlanViewer) printTask(sb *strings.Builder, task model.PlanTask, indent string) {
	line := taskColor.Sprint(task.Name)
	if deps := upstream(task); len(deps) > 0 {
		line += edgeColor.Sprintf(" <- %s", strings.Join(deps, ", "))
	}
	fmt.Fprintf(sb, "%s%s (%s)\n", indent, line, task.Kind)
}

func displayCondition(cond model.Condition) string {
	left := "?"
	if cond.Left.IsDeferred() {
		left = fmt.Sprintf("%s.%s", cond.Left.FromTask, cond.Left.Output)
	} else if cond.Left.Literal != nil {
		left = fmt.Sprint(cond.Left.Literal)
	}
	name := cond.DisplayName
	if name == "" {
		name = cond.ID
	}
	return fmt.Sprintf("%s: %s %s %v", name, left, cond.Operator, cond.Right)
}

func upstream(task model.PlanTask) []string {
	seen := make(map[string]bool)
	var deps []string
	for _, dep := range task.DependsOn {
		if !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}
	for _, value := range task.Inputs {
		if value.IsDeferred() && !seen[value.FromTask] {
			seen[value.FromTask] = true
			deps = append(deps, value.FromTask)
		}
	}
	sort.Strings(deps)
	return deps
}
