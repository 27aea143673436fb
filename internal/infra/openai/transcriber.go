// Package openai implements OpenAI speech-to-text (the transcription
// endpoint and audio input through the Responses API) and text rewriting
// through the Responses API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

const (
	Name          = "openai"
	AudioChatName = "openai-audio"

	DefaultSTTModel       = "gpt-4o-mini-transcribe"
	DefaultAudioChatModel = "gpt-4o-audio-preview"
	DefaultLLMModel       = "gpt-4.1-mini"

	defaultBaseURL = "https://api.openai.com/v1"
	defaultTimeout = 60 * time.Second
)

// Transcriber uses POST /audio/transcriptions.
type Transcriber struct {
	apiKey  string
	model   string
	baseURL string
	caller  *infra.Caller
}

func NewTranscriber(apiKey, model string, opts ...infra.Option) *Transcriber {
	if model == "" {
		model = DefaultSTTModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: defaultTimeout}, opts)
	return &Transcriber{
		apiKey:  apiKey,
		model:   model,
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
	fields := []infra.Field{{Name: "model", Value: t.model}}
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
