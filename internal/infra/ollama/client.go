// Package ollama rewrites transcripts with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

const (
	Name           = "ollama"
	DefaultModel   = "llama3.2"
	DefaultBaseURL = "http://localhost:11434"
	DefaultTimeout = 120 * time.Second
)

type Client struct {
	baseURL string
	model   string
	caller  *infra.Caller
}

func NewClient(model string, opts ...infra.Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: DefaultBaseURL, Timeout: DefaultTimeout}, opts)
	return &Client{
		baseURL: o.BaseURL,
		model:   model,
		caller:  infra.NewCaller(domain.StageLLM, Name, o.Timeout, o.Observer),
	}
}

func (c *Client) Name() string           { return Name }
func (c *Client) Model() string          { return c.model }
func (c *Client) StructuredOutput() bool { return false }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message message `json:"message"`
	Done    bool    `json:"done"`
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.caller.Do(ctx, req, json.RawMessage(bodyBytes))
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := c.caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Message.Content), nil
}

type Model struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

// ListModels returns the models installed on the server.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	respBody, err := c.caller.Do(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	var result tagsResponse
	if err := c.caller.DecodeJSON(respBody, &result); err != nil {
		return nil, err
	}
	return result.Models, nil
}

// Ping checks that the server is reachable. Unreachable servers report
// ProviderNotAvailable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.ListModels(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.ProviderError{
			Stage:    domain.StageLLM,
			Kind:     domain.KindProviderUnavailable,
			Provider: Name,
			Message:  fmt.Sprintf("ollama at %s is not reachable", c.baseURL),
			Err:      err,
		}
	}
	return nil
}

// HasModel reports whether name is installed, ignoring a ":latest" tag.
func HasModel(models []Model, name string) bool {
	want := strings.TrimSuffix(name, ":latest")
	for _, m := range models {
		if strings.TrimSuffix(m.Name, ":latest") == want {
			return true
		}
	}
	return false
}
