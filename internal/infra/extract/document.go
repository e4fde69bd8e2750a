package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/you-humble/mybook/internal/infra/config"
)

const errorSnippetLimit = 400

// documentClient calls an external document-to-text service (Tika style:
// document bytes in, plain text out). Its parsing internals are a black box.
type documentClient struct {
	httpClient *http.Client
	baseURL    string
}

func NewDocumentClient(cfg config.Service) *documentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &documentClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (c *documentClient) ExtractDocument(ctx context.Context, data []byte, contentType string) (string, error) {
	u, err := url.JoinPath(c.baseURL, "extract")
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("extract request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
		return "", fmt.Errorf("extract status %d: %s", resp.StatusCode, string(snippet))
	}

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read extracted text: %w", err)
	}

	return string(text), nil
}
