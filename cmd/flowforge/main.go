package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flowforge",
	Short: "Pipeline toolkit: graph definition → execution plan",
	Long:  "flowforge compiles declaratively defined task graphs into deterministic execution plans, with a content-addressed cache for step base images",
}

func init() {
	registerValidateCommand(rootCmd)
	registerCompileCommand(rootCmd)
	registerRunCommand(rootCmd)
	registerImageCommand(rootCmd)
	registerSubmitCommand(rootCmd)
}

// parseParams turns repeated k=v flags into a runtime parameter table.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
