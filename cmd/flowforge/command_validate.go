package main

import (
	"fmt"

	"github.com/sourceplane/flowforge/internal/loader"
	"github.com/spf13/cobra"
)

var validatePipelineFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a pipeline definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePipeline()
	},
}

func registerValidateCommand(root *cobra.Command) {
	root.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validatePipelineFile, "pipeline", "p", "pipeline.yaml", "Pipeline definition file")
}

func validatePipeline() error {
	fmt.Println("□ Validating pipeline...")
	doc, err := loader.LoadPipeline(validatePipelineFile)
	if err != nil {
		return err
	}

	// Replaying through the builder catches graph invariants the schema
	// cannot express (duplicate names, forward references, kind options).
	if _, err := loader.BuildPipeline(doc); err != nil {
		return err
	}

	fmt.Println("✓ Pipeline is valid")
	return nil
}
