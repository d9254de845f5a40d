package main

import (
	"fmt"
	"os"

	"github.com/sourceplane/flowforge/internal/render"
	"github.com/sourceplane/flowforge/internal/runner"
	"github.com/spf13/cobra"
)

var (
	runPlanFile string
	runExecute  bool
	runWorkDir  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute a compiled plan locally",
	Long:  "Execute the tasks of a compiled plan in dependency order, evaluating condition branches from recorded task outputs.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPlan()
	},
}

func registerRunCommand(root *cobra.Command) {
	root.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runPlanFile, "plan", "p", "plan.json", "Path to plan file (json or yaml)")
	runCmd.Flags().BoolVarP(&runExecute, "execute", "x", false, "Actually execute commands (default is dry-run)")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", ".", "Base working directory for task commands")
}

func runPlan() error {
	plan, err := render.ReadPlan(runPlanFile)
	if err != nil {
		return err
	}

	dryRun := !runExecute
	if dryRun {
		fmt.Println("□ Dry-run mode enabled. Use --execute to run commands.")
	}

	r := runner.NewRunner(runWorkDir, os.Stdout, os.Stderr, dryRun)
	if err := r.Run(plan); err != nil {
		return err
	}

	if dryRun {
		fmt.Println("✓ Dry-run complete")
	} else {
		fmt.Println("✓ Run complete")
	}

	return nil
}
