// Package client is a small HTTP client for the mybook API, including the
// bounded polling loop a caller uses to wait for a job. Giving up on polling
// never cancels the job server-side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"
)

// ErrPollTimeout is returned when a job has not reached a terminal state
// within the configured number of polling attempts.
var ErrPollTimeout = errors.New("gave up waiting for job completion")

var ErrNotFound = errors.New("job not found")

type Client struct {
	httpClient *http.Client
	baseURL    string
}

func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type File struct {
	Name        string
	ContentType string
	Content     io.Reader
}

type Timeline struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type Status struct {
	JobID    string `json:"jobId"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Result   string `json:"result"`
	Error    string `json:"error"`
}

func (s Status) Terminal() bool {
	return s.Status == "COMPLETED" || s.Status == "FAILED"
}

// Submit uploads the files and generation parameters and returns the job id.
func (c *Client) Submit(ctx context.Context, files []File, timeline Timeline, prompt string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for _, f := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.Name))
		if f.ContentType != "" {
			header.Set("Content-Type", f.ContentType)
		}

		part, err := mw.CreatePart(header)
		if err != nil {
			return "", fmt.Errorf("create multipart part: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return "", fmt.Errorf("write file %q: %w", f.Name, err)
		}
	}

	tl, err := json.Marshal(timeline)
	if err != nil {
		return "", fmt.Errorf("marshal timeline: %w", err)
	}
	if err := mw.WriteField("timeline", string(tl)); err != nil {
		return "", fmt.Errorf("write timeline field: %w", err)
	}
	if err := mw.WriteField("prompt", prompt); err != nil {
		return "", fmt.Errorf("write prompt field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate-book", &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", apiError(resp)
	}

	var parsed struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.JobID == "" {
		return "", fmt.Errorf("submission accepted without a job id")
	}

	return parsed.JobID, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (Status, error) {
	u := c.baseURL + "/api/status?jobId=" + url.QueryEscape(jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Status{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Status{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return Status{}, apiError(resp)
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("decode response: %w", err)
	}

	return st, nil
}

// Download fetches the generated book for a completed job.
func (c *Client) Download(ctx context.Context, jobID string) ([]byte, error) {
	u := c.baseURL + "/api/download?jobId=" + url.QueryEscape(jobID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}

	return data, nil
}

// WaitForCompletion polls the job status every interval until it turns
// terminal, up to maxAttempts polls. On exhaustion it returns ErrPollTimeout
// with the last observed status; the job keeps running server-side.
func (c *Client) WaitForCompletion(ctx context.Context, jobID string, interval time.Duration, maxAttempts int) (Status, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 30
	}

	var last Status
	for attempt := 0; attempt < maxAttempts; attempt++ {
		st, err := c.Status(ctx, jobID)
		if err != nil {
			return last, err
		}
		last = st

		if st.Terminal() {
			return st, nil
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}

	return last, fmt.Errorf("%w: job %s after %d attempts", ErrPollTimeout, jobID, maxAttempts)
}

func apiError(resp *http.Response) error {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Message != "" {
		return fmt.Errorf("api status %d: %s", resp.StatusCode, parsed.Message)
	}
	return fmt.Errorf("api status %d", resp.StatusCode)
}
