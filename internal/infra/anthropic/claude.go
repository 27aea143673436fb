// Package anthropic rewrites transcripts with the Claude Messages API.
package anthropic

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
	Name         = "anthropic"
	DefaultModel = "claude-3-5-haiku-latest"

	defaultBaseURL = "https://api.anthropic.com/v1"
	apiVersion     = "2023-06-01"
	maxTokens      = 4096
)

type ClaudeClient struct {
	apiKey  string
	baseURL string
	model   string
	caller  *infra.Caller
}

func NewClaudeClient(apiKey, model string, opts ...infra.Option) *ClaudeClient {
	if model == "" {
		model = DefaultModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: 60 * time.Second}, opts)
	return &ClaudeClient{
		apiKey:  apiKey,
		baseURL: o.BaseURL,
		model:   model,
		caller:  infra.NewCaller(domain.StageLLM, Name, o.Timeout, o.Observer),
	}
}

// NewClaudeClientWithURL points the client at a different API root.
func NewClaudeClientWithURL(apiKey, model, baseURL string, opts ...infra.Option) *ClaudeClient {
	return NewClaudeClient(apiKey, model, append(opts, infra.WithBaseURL(baseURL))...)
}

func (c *ClaudeClient) Name() string           { return Name }
func (c *ClaudeClient) Model() string          { return c.model }
func (c *ClaudeClient) StructuredOutput() bool { return false }

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type request struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type response struct {
	Content []contentBlock `json:"content"`
}

func (c *ClaudeClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody := request{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    systemPrompt,
		Messages: []message{
			{Role: "user", Content: []contentBlock{{Type: "text", Text: userMessage}}},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	respBody, err := c.caller.Do(ctx, req, json.RawMessage(bodyBytes))
	if err != nil {
		return "", err
	}

	var result response
	if err := c.caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	for _, block := range result.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", c.caller.Errorf(domain.KindInvalidResponse, "empty response from claude")
}
