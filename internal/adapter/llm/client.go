// Package llm is a client for OpenAI-compatible chat completion endpoints.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Mathew005/aura-agent/internal/resilience"
)

// ErrEmptyResponse is returned when the model answers with no content.
var ErrEmptyResponse = errors.New("llm response empty")

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	Temperature    float32         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
}

// Client talks to a single chat completions endpoint. It satisfies the
// text and JSON model contracts of the extract, scout, verify and correlate
// packages. Retries are the caller's job; Client classifies throttling
// failures as resilience.RateLimitError so they can be waited out.
type Client struct {
	endpoint string
	model    string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a client for baseURL (for example
// "https://api.openai.com/v1" or "localhost:1234").
func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: normalizeBaseURL(baseURL) + "/chat/completions",
		model:    model,
		apiKey:   apiKey,
		logger:   logger,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:   true,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

// Complete sends prompt as a single user message and returns the answer text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, nil)
}

// CompleteJSON asks for a JSON object and decodes it into out. Markdown code
// fences around the object are tolerated.
func (c *Client) CompleteJSON(ctx context.Context, prompt string, out any) error {
	content, err := c.chat(ctx, prompt, &responseFormat{Type: "json_object"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFences(content)), out); err != nil {
		return fmt.Errorf("decode model json: %w", err)
	}
	return nil
}

func (c *Client) chat(ctx context.Context, prompt string, format *responseFormat) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []message{{Role: "user", Content: prompt}},
		Temperature:    0.2,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("llm status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if rl := resilience.FromResponse(resp, time.Now(), apiErr); rl != nil {
			return "", rl
		}
		return "", resilience.FromMessage(apiErr)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("llm response missing choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	c.logger.Debug("llm completion",
		"model", c.model,
		"duration", time.Since(start),
		"finish_reason", decoded.Choices[0].FinishReason,
	)
	return content, nil
}

func normalizeBaseURL(baseURL string) string {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return trimmed
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

// stripFences removes a surrounding ```json ... ``` block if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
