// Package remote submits compiled plans to the hosted pipeline service and
// tracks the resulting job until it reaches a terminal state.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sourceplane/flowforge/internal/model"
)

// JobState is the remote job lifecycle state.
type JobState string

const (
	StatePending   JobState = "PENDING"
	StateRunning   JobState = "RUNNING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Job is the service's view of a submitted pipeline run.
type Job struct {
	ID    string   `json:"id"`
	State JobState `json:"state"`
	Error string   `json:"error,omitempty"`
}

// ErrJobFailed is returned by Wait when the job reaches FAILED.
var ErrJobFailed = errors.New("pipeline job failed")

// TokenSource supplies an opaque bearer credential per request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the pipeline service's job API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenSource
	Log     *slog.Logger

	// MaxWait bounds how long Wait polls before giving up; 0 means poll
	// until the context is done.
	MaxWait time.Duration
}

func (c *Client) http() *http.Client {
	if c.HTTP == nil {
		return http.DefaultClient
	}
	return c.HTTP
}

func (c *Client) log() *slog.Logger {
	if c.Log == nil {
		return slog.Default()
	}
	return c.Log
}

type submitRequest struct {
	Plan           *model.Plan    `json:"plan"`
	Parameters     map[string]any `json:"parameters,omitempty"`
	ServiceAccount string         `json:"serviceAccount,omitempty"`
}

// Submit posts a compiled plan and returns the created job.
func (c *Client) Submit(ctx context.Context, plan *model.Plan, params map[string]any, serviceAccount string) (Job, error) {
	body, err := json.Marshal(submitRequest{Plan: plan, Parameters: params, ServiceAccount: serviceAccount})
	if err != nil {
		return Job{}, fmt.Errorf("encoding plan: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/pipelineJobs", bytes.NewReader(body))
	if err != nil {
		return Job{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req); err != nil {
		return Job{}, err
	}

	var job Job
	if err := c.do(req, &job); err != nil {
		return Job{}, fmt.Errorf("submitting plan %s: %w", plan.Metadata.Name, err)
	}

	c.log().Info("pipeline job submitted", "job", job.ID, "pipeline", plan.Metadata.Name)
	return job, nil
}

// Get fetches the current state of a job.
func (c *Client) Get(ctx context.Context, id string) (Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/pipelineJobs/"+id, nil)
	if err != nil {
		return Job{}, err
	}
	if err := c.authorize(ctx, req); err != nil {
		return Job{}, err
	}

	var job Job
	if err := c.do(req, &job); err != nil {
		return Job{}, fmt.Errorf("fetching job %s: %w", id, err)
	}
	return job, nil
}

// Wait polls the job with exponential backoff until it reaches a terminal
// state. A FAILED terminal state returns ErrJobFailed with the service's
// diagnostic attached.
func (c *Client) Wait(ctx context.Context, id string) (Job, error) {
	var job Job
	operation := func() error {
		var err error
		job, err = c.Get(ctx, id)
		if err != nil {
			return err
		}
		if !job.State.Terminal() {
			return fmt.Errorf("job %s still %s", id, job.State)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = c.MaxWait
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return job, err
	}

	if job.State == StateFailed {
		return job, fmt.Errorf("%w: %s", ErrJobFailed, job.Error)
	}
	c.log().Info("pipeline job finished", "job", job.ID, "state", job.State)
	return job, nil
}

func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	if c.Tokens == nil {
		return nil
	}
	token, err := c.Tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("fetching credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("service returned %s: %s", resp.Status, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
