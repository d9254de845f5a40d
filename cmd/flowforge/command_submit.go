package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sourceplane/flowforge/internal/remote"
	"github.com/sourceplane/flowforge/internal/render"
	"github.com/spf13/cobra"
)

var (
	submitPlanFile       string
	submitServiceURL     string
	submitParams         []string
	submitServiceAccount string
	submitTokenEnv       string
	submitWait           bool
	submitMaxWait        time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a compiled plan to the pipeline service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return submitPlan(cmd.Context())
	},
}

func registerSubmitCommand(root *cobra.Command) {
	root.AddCommand(submitCmd)

	submitCmd.Flags().StringVarP(&submitPlanFile, "plan", "p", "plan.json", "Path to plan file (json or yaml)")
	submitCmd.Flags().StringVar(&submitServiceURL, "service-url", "", "Pipeline service base URL")
	submitCmd.Flags().StringArrayVar(&submitParams, "param", nil, "Runtime parameter forwarded to the service (key=value, repeatable)")
	submitCmd.Flags().StringVar(&submitServiceAccount, "service-account", "", "Service account for the submitted job")
	submitCmd.Flags().StringVar(&submitTokenEnv, "token-env", "", "Environment variable holding the bearer credential")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", true, "Block until the job reaches a terminal state")
	submitCmd.Flags().DurationVar(&submitMaxWait, "max-wait", 0, "Give up waiting after this duration (0 = no limit)")

	submitCmd.MarkFlagRequired("service-url")
}

// envTokenSource reads an opaque credential from the environment on every
// request.
type envTokenSource struct {
	variable string
}

func (s envTokenSource) Token(ctx context.Context) (string, error) {
	token := os.Getenv(s.variable)
	if token == "" {
		return "", fmt.Errorf("environment variable %s is empty", s.variable)
	}
	return token, nil
}

func submitPlan(ctx context.Context) error {
	plan, err := render.ReadPlan(submitPlanFile)
	if err != nil {
		return err
	}

	params, err := parseParams(submitParams)
	if err != nil {
		return err
	}

	client := &remote.Client{
		BaseURL: submitServiceURL,
		Log:     slog.New(slog.NewTextHandler(os.Stderr, nil)),
		MaxWait: submitMaxWait,
	}
	if submitTokenEnv != "" {
		client.Tokens = envTokenSource{variable: submitTokenEnv}
	}

	fmt.Println("□ Submitting plan...")
	job, err := client.Submit(ctx, plan, params, submitServiceAccount)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Job submitted: %s\n", job.ID)

	if !submitWait {
		return nil
	}

	fmt.Println("□ Waiting for completion...")
	job, err = client.Wait(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Job %s finished: %s\n", job.ID, job.State)
	return nil
}
