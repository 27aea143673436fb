package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"voxflow/internal/application"
	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

// Wire types for POST /responses.

type responsesRequest struct {
	Model        string        `json:"model"`
	Instructions string        `json:"instructions,omitempty"`
	Input        any           `json:"input"`
	Temperature  *float64      `json:"temperature,omitempty"`
	Text         *textSettings `json:"text,omitempty"`
}

type textSettings struct {
	Format textFormat `json:"format"`
}

type textFormat struct {
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
	Strict bool           `json:"strict,omitempty"`
}

type inputMessage struct {
	Role    string         `json:"role"`
	Content []inputContent `json:"content"`
}

type inputContent struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	InputAudio *inputAudio `json:"input_audio,omitempty"`
}

type inputAudio struct {
	Data   any    `json:"data"`
	Format string `json:"format"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text"`
			Refusal string `json:"refusal"`
		} `json:"content"`
	} `json:"output"`
}

// outputText concatenates every output_text part. A refusal wins over any
// text.
func (r responsesResponse) outputText() (string, string) {
	var b strings.Builder
	for _, item := range r.Output {
		for _, c := range item.Content {
			switch c.Type {
			case "output_text":
				b.WriteString(c.Text)
			case "refusal":
				return "", c.Refusal
			}
		}
	}
	return b.String(), ""
}

func postResponses(ctx context.Context, caller *infra.Caller, baseURL, apiKey string, body responsesRequest, summary any) (string, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	if summary == nil {
		summary = json.RawMessage(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/responses", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := caller.Do(ctx, req, summary)
	if err != nil {
		return "", err
	}

	var result responsesResponse
	if err := caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	text, refusal := result.outputText()
	if refusal != "" {
		return "", &domain.ProviderError{
			Stage:    caller.Stage,
			Kind:     domain.KindAPI,
			Provider: caller.Provider,
			Message:  "refused: " + refusal,
		}
	}
	return strings.TrimSpace(text), nil
}

// ResponsesClient rewrites text with the Responses API.
type ResponsesClient struct {
	apiKey  string
	model   string
	baseURL string
	caller  *infra.Caller
}

func NewResponsesClient(apiKey, model string, opts ...infra.Option) *ResponsesClient {
	if model == "" {
		model = DefaultLLMModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: defaultTimeout}, opts)
	return &ResponsesClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: o.BaseURL,
		caller:  infra.NewCaller(domain.StageLLM, Name, o.Timeout, o.Observer),
	}
}

func (c *ResponsesClient) Name() string  { return Name }
func (c *ResponsesClient) Model() string { return c.model }

func (c *ResponsesClient) StructuredOutput() bool {
	return SupportsStructuredOutput(c.model)
}

func (c *ResponsesClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	body := responsesRequest{
		Model:        c.model,
		Instructions: systemPrompt,
		Input:        userMessage,
	}
	if !isReasoningModel(c.model) {
		zero := 0.0
		body.Temperature = &zero
	}
	if c.StructuredOutput() {
		body.Text = &textSettings{Format: textFormat{
			Type:   "json_schema",
			Name:   "rewrite",
			Schema: application.RewriteSchema(),
			Strict: true,
		}}
	}
	return postResponses(ctx, c.caller, c.baseURL, c.apiKey, body, nil)
}

// SupportsStructuredOutput reports whether model accepts a json_schema
// text format: the gpt-4o and gpt-4.1 families, gpt-5 and the o-series.
func SupportsStructuredOutput(model string) bool {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-4o") || strings.HasPrefix(m, "gpt-4.1") || strings.HasPrefix(m, "gpt-5") {
		return true
	}
	return isReasoningModel(m)
}

// Reasoning models reject a temperature parameter.
func isReasoningModel(model string) bool {
	m := strings.ToLower(model)
	if strings.HasPrefix(m, "gpt-5") {
		return true
	}
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '1' && m[1] <= '9'
}
