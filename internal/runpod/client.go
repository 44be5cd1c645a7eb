// Package runpod implements the serverless worker side of the RunPod
// job-dispatch protocol: taking jobs, streaming progress updates, and
// posting each job's terminal output.
package runpod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Job is a unit of work handed to this worker by the platform.
type Job struct {
	ID    string          `json:"id"`
	Input json.RawMessage `json:"input"`
}

// Input carries the optional job parameters PersonaPlex understands.
type Input struct {
	SessionID string `json:"session_id"`
}

// SessionID returns the client-provided session id, falling back to the
// platform job id.
func (j *Job) SessionID() string {
	if len(j.Input) > 0 {
		var in Input
		if err := json.Unmarshal(j.Input, &in); err == nil && in.SessionID != "" {
			return in.SessionID
		}
	}
	return j.ID
}

// ClientConfig holds the webhook endpoints and credentials the platform
// injects into the worker environment.
type ClientConfig struct {
	APIKey       string
	PodID        string
	JobTakeURL   string
	JobDoneURL   string
	JobStreamURL string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Client posts to the RunPod serverless webhooks.
type Client struct {
	cfg    ClientConfig
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a RunPod webhook client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
	}
}

// expandURL fills the $ID and $RUNPOD_POD_ID placeholders the platform
// templates into its webhook URLs.
func (c *Client) expandURL(raw, jobID string) string {
	u := strings.ReplaceAll(raw, "$ID", jobID)
	return strings.ReplaceAll(u, "$RUNPOD_POD_ID", c.cfg.PodID)
}

// TakeJob asks the platform for work. It returns (nil, nil) when no job
// is available.
func (c *Client) TakeJob(ctx context.Context) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.expandURL(c.cfg.JobTakeURL, ""), nil)
	if err != nil {
		return nil, err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent:
		return nil, nil
	default:
		return nil, fmt.Errorf("job take: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("job take: decode: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

// SendProgress streams an intermediate payload for a running job. This
// is how connection info reaches the client before the job completes.
func (c *Client) SendProgress(ctx context.Context, jobID string, payload any) error {
	body := map[string]any{"status": "IN_PROGRESS", "output": payload}
	return c.post(ctx, c.expandURL(c.cfg.JobStreamURL, jobID), body)
}

// SendOutput posts the job's terminal result.
func (c *Client) SendOutput(ctx context.Context, jobID string, output any) error {
	body := map[string]any{"output": output}
	return c.post(ctx, c.expandURL(c.cfg.JobDoneURL, jobID), body)
}

func (c *Client) post(ctx context.Context, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: status %d", url, resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}
