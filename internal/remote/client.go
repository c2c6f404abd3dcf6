package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "scorebatch/1.0"
)

// Config controls the engine client.
type Config struct {
	BaseURL string
	// RequestsPerSecond caps the combined rate of uploads and polls so a
	// large batch does not hammer the engine. Values < 1 disable pacing.
	RequestsPerSecond int
	Timeout           time.Duration
}

// Client talks to the remote scoring engine over its HTTP contract:
// submission, job status, historical listing, and deletion.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond >= 1 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
	}
}

// Submit uploads a payload together with the free-text reference and engine
// mode. The engine acknowledges with a job identifier well before scoring
// finishes; callers poll Status for the outcome.
func (c *Client) Submit(ctx context.Context, payload io.Reader, filename, reference, mode string) (SubmitResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, payload); err != nil {
		return SubmitResult{}, fmt.Errorf("copy payload: %w", err)
	}
	if err := mw.WriteField("text", reference); err != nil {
		return SubmitResult{}, fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.WriteField("mode", mode); err != nil {
		return SubmitResult{}, fmt.Errorf("build multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return SubmitResult{}, fmt.Errorf("build multipart: %w", err)
	}

	var result SubmitResult
	if err := c.do(ctx, http.MethodPost, "/api/upload", &body, mw.FormDataContentType(), &result); err != nil {
		return SubmitResult{}, err
	}
	return result, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var status JobStatus
	if err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(jobID), nil, "", &status); err != nil {
		return JobStatus{}, err
	}
	return status, nil
}

// ListReports returns previously completed records, newest first.
func (c *Client) ListReports(ctx context.Context) ([]Report, error) {
	var reports []Report
	if err := c.do(ctx, http.MethodGet, "/api/reports", nil, "", &reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Delete removes a single record on the engine. Best-effort for callers.
func (c *Client) Delete(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/api/reports/"+url.PathEscape(jobID), nil, "", nil)
}

// BatchDelete removes several records in one request. Best-effort for callers.
func (c *Client) BatchDelete(ctx context.Context, jobIDs []string) error {
	payload, err := json.Marshal(struct {
		IDs []string `json:"ids"`
	}{IDs: jobIDs})
	if err != nil {
		return fmt.Errorf("marshal batch delete: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/reports/batch-delete", bytes.NewReader(payload), "application/json", nil)
}

// do runs one paced request and decodes a JSON response into out (when non-nil).
// Connection-level failures become TransportError, non-2xx responses become
// SubmissionError with the engine's reason when one is present.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &SubmissionError{StatusCode: resp.StatusCode, Reason: decodeReason(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: method + " " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// decodeReason extracts the engine's failure reason from an error body.
func decodeReason(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var structured struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(data, &structured); err == nil {
		if structured.Detail != "" {
			return structured.Detail
		}
		if structured.Error != "" {
			return structured.Error
		}
	}
	return string(data)
}
