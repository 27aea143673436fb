// Package groq talks to Groq's OpenAI-compatible API for both Whisper
// transcription and chat completions.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

const (
	Name            = "groq"
	DefaultSTTModel = "whisper-large-v3-turbo"
	DefaultLLMModel = "llama-3.3-70b-versatile"

	defaultBaseURL = "https://api.groq.com/openai/v1"
	maxPromptChars = 224
	temperature    = 0.3
)

type Transcriber struct {
	apiKey  string
	model   string
	prompt  string
	baseURL string
	caller  *infra.Caller
}

// NewTranscriber returns a Whisper client. prompt is an optional
// vocabulary hint; it is cut to 224 characters.
func NewTranscriber(apiKey, model, prompt string, opts ...infra.Option) *Transcriber {
	if model == "" {
		model = DefaultSTTModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: 60 * time.Second}, opts)
	return &Transcriber{
		apiKey:  apiKey,
		model:   model,
		prompt:  TruncatePrompt(prompt),
		baseURL: o.BaseURL,
		caller:  infra.NewCaller(domain.StageSTT, Name, o.Timeout, o.Observer),
	}
}

func (t *Transcriber) Name() string  { return Name }
func (t *Transcriber) Model() string { return t.model }

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, _ domain.AudioFormat) (string, error) {
	fields := []infra.Field{
		{Name: "model", Value: t.model},
		{Name: "prompt", Value: t.prompt},
		{Name: "response_format", Value: "json"},
	}
	body, contentType, err := infra.AudioForm(audio, fields...)
	if err != nil {
		return "", t.caller.Errorf(domain.KindAudio, "%v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", contentType)

	respBody, err := t.caller.Do(ctx, req, infra.FormSummary(len(audio), fields...))
	if err != nil {
		return "", err
	}

	var result transcriptionResponse
	if err := t.caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Text), nil
}

// TruncatePrompt cuts s to the Whisper prompt limit on a rune boundary.
func TruncatePrompt(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxPromptChars {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxPromptChars])
}

type ChatClient struct {
	apiKey  string
	model   string
	baseURL string
	caller  *infra.Caller
}

func NewChatClient(apiKey, model string, opts ...infra.Option) *ChatClient {
	if model == "" {
		model = DefaultLLMModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: 60 * time.Second}, opts)
	return &ChatClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: o.BaseURL,
		caller:  infra.NewCaller(domain.StageLLM, Name, o.Timeout, o.Observer),
	}
}

func (c *ChatClient) Name() string           { return Name }
func (c *ChatClient) Model() string          { return c.model }
func (c *ChatClient) StructuredOutput() bool { return false }

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		Temperature: temperature,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.caller.Do(ctx, req, json.RawMessage(bodyBytes))
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := c.caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", c.caller.Errorf(domain.KindInvalidResponse, "no choices in response")
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}
