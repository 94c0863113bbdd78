package scrapequeue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// JobStatus is one status report from the worker for a specific job.
type JobStatus struct {
	State    string       `json:"state"`              // raw lifecycle state string
	Progress int          `json:"progress"`           // 0-100, only meaningful for PROGRESS
	Product  *ProductInfo `json:"product,omitempty"`  // optional display metadata
	Error    string       `json:"error,omitempty"`    // human-readable failure text
	Result   []byte       `json:"result,omitempty"`   // raw result payload on SUCCESS
}

// WorkerClient represents the interface to the remote scrape worker.
// Implementations must be safe for concurrent use.
type WorkerClient interface {
	// StartJob asks the worker to start scraping the URL. Returns the
	// worker-assigned job ID, or an error wrapping ErrConflict when the
	// single job slot is already occupied.
	StartJob(ctx context.Context, url string) (string, error)

	// GetStatus returns the current status of a job
	GetStatus(ctx context.Context, jobID string) (*JobStatus, error)

	// CancelJob requests cancellation of a job. Returns an error wrapping
	// ErrNotFound when the job no longer exists. Cancellation is
	// acknowledged, not synchronous: the job reaches REVOKED later.
	CancelJob(ctx context.Context, jobID string) error

	// LockState reports whether the worker's job slot is occupied
	LockState(ctx context.Context) (locked bool, err error)
}

// HTTPWorkerClient implements WorkerClient against the worker's JSON API:
//
//	POST /scrape            {"url": ...}        -> {"job_id": ...} | 409
//	GET  /scrape/status/:id                     -> JobStatus       | 404
//	POST /scrape/cancel/:id                     -> {}              | 404
//	GET  /scrape/lock                           -> {"locked": bool}
type HTTPWorkerClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPWorkerClient creates a client for the worker API at baseURL.
// httpClient may be nil; a client with a 30s timeout is used then.
func NewHTTPWorkerClient(baseURL string, httpClient *http.Client) *HTTPWorkerClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPWorkerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// StartJob asks the worker to start scraping the URL.
func (c *HTTPWorkerClient) StartJob(ctx context.Context, url string) (string, error) {
	body, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return "", fmt.Errorf("failed to marshal start request: %w", err)
	}

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/scrape", body, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("worker returned empty job ID")
	}
	return resp.JobID, nil
}

// GetStatus returns the current status of a job.
func (c *HTTPWorkerClient) GetStatus(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.doJSON(ctx, http.MethodGet, "/scrape/status/"+jobID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CancelJob requests cancellation of a job.
func (c *HTTPWorkerClient) CancelJob(ctx context.Context, jobID string) error {
	return c.doJSON(ctx, http.MethodPost, "/scrape/cancel/"+jobID, nil, nil)
}

// LockState reports whether the worker's job slot is occupied.
func (c *HTTPWorkerClient) LockState(ctx context.Context) (bool, error) {
	var resp struct {
		Locked bool `json:"locked"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/scrape/lock", nil, &resp); err != nil {
		return false, err
	}
	return resp.Locked, nil
}

// doJSON performs one request and decodes the JSON response into out (when
// non-nil). 409 and 404 map onto the sentinel errors; other non-2xx statuses
// become plain errors carrying the response body.
func (c *HTTPWorkerClient) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s %s: %w", method, path, ErrConflict)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("worker returned %d for %s %s: %s", resp.StatusCode, method, path, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode worker response: %w", err)
	}
	return nil
}
