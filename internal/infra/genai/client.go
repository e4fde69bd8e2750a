package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/you-humble/mybook/internal/infra/config"
)

const (
	endpointChatCompletions = "v1/chat/completions"

	errorSnippetLimit = 400

	transcribeSystemPrompt = "You are an OCR assistant. Transcribe the provided image into plain readable text. Output only the transcription, no commentary."
	transcribeUserPrompt   = "Please transcribe the content of this image."
)

// Client talks to an OpenAI-compatible completions service. It backs both
// the book generation call and the image transcription extractor.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
}

func NewClient(cfg config.GenAI) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
	}
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate runs one completion over the assembled prompt. Any failure here is
// fatal for the job; the caller never retries inside a single work item.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, []chatMessage{
		{Role: "user", Content: prompt},
	})
}

// TranscribeImage asks the model to transcribe the image, passed inline as a
// data URL.
func (c *Client) TranscribeImage(ctx context.Context, data []byte, mime string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("image is empty")
	}
	if mime == "" {
		mime = "application/octet-stream"
	}

	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	return c.complete(ctx, []chatMessage{
		{Role: "system", Content: transcribeSystemPrompt},
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: transcribeUserPrompt},
			{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		}},
	})
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	u, err := url.JoinPath(c.baseURL, endpointChatCompletions)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completions request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetLimit))
		return "", fmt.Errorf("completions status %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completions returned no choices")
	}

	content := parsed.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("completions returned empty content")
	}

	return content, nil
}
