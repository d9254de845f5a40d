package remote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/flowforge/internal/model"
)

type staticTokens string

func (s staticTokens) Token(context.Context) (string, error) { return string(s), nil }

func testPlan() *model.Plan {
	return &model.Plan{
		APIVersion: "flowforge.io/v1",
		Kind:       "Plan",
		Metadata:   model.Metadata{Name: "training"},
		Root:       "gs://bucket/root",
		Tasks:      []model.PlanTask{{Name: "train", Kind: "function"}},
	}
}

func newTestClient(url string) *Client {
	return &Client{
		BaseURL: url,
		Tokens:  staticTokens("secret-token"),
		Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxWait: 5 * time.Second,
	}
}

func TestSubmit(t *testing.T) {
	var gotAuth string
	var gotBody submitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/pipelineJobs", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(Job{ID: "job-123", State: StatePending})
	}))
	defer srv.Close()

	job, err := newTestClient(srv.URL).Submit(context.Background(), testPlan(), map[string]any{"epochs": 10}, "runner@proj.iam")
	require.NoError(t, err)

	assert.Equal(t, "job-123", job.ID)
	assert.Equal(t, StatePending, job.State)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, "training", gotBody.Plan.Metadata.Name)
	assert.Equal(t, "runner@proj.iam", gotBody.ServiceAccount)
}

func TestSubmitServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), testPlan(), nil, "")
	require.ErrorContains(t, err, "quota exceeded")
}

func TestWaitPollsUntilSucceeded(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/pipelineJobs/job-123", r.URL.Path)

		state := StateRunning
		if polls.Add(1) >= 3 {
			state = StateSucceeded
		}
		json.NewEncoder(w).Encode(Job{ID: "job-123", State: state})
	}))
	defer srv.Close()

	job, err := newTestClient(srv.URL).Wait(context.Background(), "job-123")
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, job.State)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestWaitReportsFailedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Job{ID: "job-123", State: StateFailed, Error: "step train exited 1"})
	}))
	defer srv.Close()

	job, err := newTestClient(srv.URL).Wait(context.Background(), "job-123")
	require.ErrorIs(t, err, ErrJobFailed)
	assert.ErrorContains(t, err, "step train exited 1")
	assert.Equal(t, StateFailed, job.State)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Job{ID: "job-123", State: StateRunning})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	c := newTestClient(srv.URL)
	c.MaxWait = 0 // poll until the context is done
	_, err := c.Wait(ctx, "job-123")
	require.Error(t, err)
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.True(t, StateSucceeded.Terminal())
	assert.True(t, StateFailed.Terminal())
}
