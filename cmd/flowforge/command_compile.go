package main

import (
	"fmt"

	"github.com/sourceplane/flowforge/internal/compile"
	"github.com/sourceplane/flowforge/internal/loader"
	"github.com/sourceplane/flowforge/internal/planengine"
	"github.com/sourceplane/flowforge/internal/render"
	"github.com/spf13/cobra"
)

var (
	compilePipelineFile string
	compileOutputFile   string
	compileParams       []string
	compileBaseImage    string
	compileView         bool
)

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile a pipeline definition into an execution plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return compilePipeline()
	},
}

func registerCompileCommand(root *cobra.Command) {
	root.AddCommand(compileCmd)

	compileCmd.Flags().StringVarP(&compilePipelineFile, "pipeline", "p", "pipeline.yaml", "Pipeline definition file")
	compileCmd.Flags().StringVarP(&compileOutputFile, "output", "o", "plan.json", "Output plan file path (json or yaml)")
	compileCmd.Flags().StringArrayVar(&compileParams, "param", nil, "Runtime parameter (key=value, repeatable)")
	compileCmd.Flags().StringVar(&compileBaseImage, "base-image", "", "Shared base image injected into steps without an override")
	compileCmd.Flags().BoolVar(&compileView, "view", false, "Print the task DAG after compiling")
}

func compilePipeline() error {
	fmt.Println("□ Loading pipeline...")
	doc, err := loader.LoadPipeline(compilePipelineFile)
	if err != nil {
		return fmt.Errorf("failed to load pipeline: %w", err)
	}

	fmt.Println("□ Building graph...")
	builder, err := loader.BuildPipeline(doc)
	if err != nil {
		return fmt.Errorf("failed to build pipeline graph: %w", err)
	}

	params, err := parseParams(compileParams)
	if err != nil {
		return err
	}

	fmt.Println("□ Compiling...")
	engine := planengine.New(builder.Name(), builder.Description(), builder.Root())
	opts := compile.Options{Parameters: params, BaseImage: compileBaseImage}
	if err := compile.Compile(builder, opts, engine); err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}

	plan := engine.Plan()
	if err := render.WritePlan(plan, compileOutputFile); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}

	fmt.Printf("✓ Plan compiled with %d tasks\n", len(plan.Tasks))
	fmt.Printf("✓ Saved to: %s\n", compileOutputFile)

	if compileView {
		fmt.Println("\n" + render.NewPlanViewer(plan).ViewDAG())
	}

	return nil
}
