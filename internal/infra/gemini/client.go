// Package gemini rewrites transcripts with Gemini generateContent using
// structured JSON output and optional thinking controls.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"voxflow/internal/application"
	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

const (
	Name         = "gemini"
	DefaultModel = "gemini-2.5-flash"

	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

type Client struct {
	apiKey   string
	baseURL  string
	model    string
	thinking *ThinkingConfig
	caller   *infra.Caller
}

// Thinking is the requested reasoning control. Budget applies to 2.5
// models, Level to 3 models; unsupported values are dropped with a
// warning.
type Thinking struct {
	Budget *int
	Level  string
}

// NewClient fails with NoAPIKey when apiKey is empty.
func NewClient(apiKey, model string, thinking Thinking, logger *slog.Logger, opts ...infra.Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &domain.ProviderError{Stage: domain.StageLLM, Kind: domain.KindNoAPIKey, Provider: Name}
	}
	if model == "" {
		model = DefaultModel
	}
	tc, err := ResolveThinking(model, thinking)
	if err != nil {
		logger.Warn("ignoring gemini thinking setting", "model", model, "reason", err)
	}

	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: 60 * time.Second}, opts)
	return &Client{
		apiKey:   apiKey,
		baseURL:  o.BaseURL,
		model:    model,
		thinking: tc,
		caller:   infra.NewCaller(domain.StageLLM, Name, o.Timeout, o.Observer),
	}, nil
}

func (c *Client) Name() string           { return Name }
func (c *Client) Model() string          { return c.model }
func (c *Client) StructuredOutput() bool { return true }

type content struct {
	Parts []part `json:"parts"`
	Role  string `json:"role,omitempty"`
}

type part struct {
	Text string `json:"text"`
}

type request struct {
	Contents         []content        `json:"contents"`
	SystemInstruct   *content         `json:"systemInstruction,omitempty"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64         `json:"temperature"`
	ResponseMimeType string          `json:"responseMimeType"`
	ResponseSchema   map[string]any  `json:"responseSchema"`
	ThinkingConfig   *ThinkingConfig `json:"thinkingConfig,omitempty"`
}

// ThinkingConfig is the generationConfig.thinkingConfig wire object.
type ThinkingConfig struct {
	ThinkingBudget *int   `json:"thinkingBudget,omitempty"`
	ThinkingLevel  string `json:"thinkingLevel,omitempty"`
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text    string `json:"text"`
				Thought bool   `json:"thought"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

func (c *Client) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody := request{
		SystemInstruct: &content{
			Parts: []part{{Text: systemPrompt}},
		},
		Contents: []content{
			{
				Role:  "user",
				Parts: []part{{Text: userMessage}},
			},
		},
		GenerationConfig: generationConfig{
			Temperature:      0,
			ResponseMimeType: "application/json",
			ResponseSchema:   responseSchema(),
			ThinkingConfig:   c.thinking,
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	respBody, err := c.caller.Do(ctx, req, json.RawMessage(bodyBytes))
	if err != nil {
		return "", err
	}

	var result response
	if err := c.caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 {
		return "", c.caller.Errorf(domain.KindInvalidResponse, "empty response from gemini")
	}

	var b strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		if !p.Thought {
			b.WriteString(p.Text)
		}
	}
	if b.Len() == 0 {
		return "", c.caller.Errorf(domain.KindInvalidResponse, "no text in gemini response (finish reason %q)", result.Candidates[0].FinishReason)
	}
	return strings.TrimSpace(b.String()), nil
}

// responseSchema mirrors the rewritten_text schema in Gemini's OpenAPI
// subset.
func responseSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			application.RewrittenTextField: map[string]any{"type": "STRING"},
		},
		"required": []string{application.RewrittenTextField},
	}
}
