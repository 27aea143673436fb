package openai

import (
	"context"
	"encoding/base64"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

const audioChatInstruction = "Transcribe this audio verbatim. Reply with the transcript only, without commentary or quotation marks."

// AudioChatTranscriber sends the recording as input_audio to the
// Responses API and reads the transcript from the text output.
type AudioChatTranscriber struct {
	apiKey      string
	model       string
	instruction string
	baseURL     string
	caller      *infra.Caller
}

// NewAudioChatTranscriber returns the audio-input transcriber. A non-empty
// hint is appended to the instruction as vocabulary context.
func NewAudioChatTranscriber(apiKey, model, hint string, opts ...infra.Option) *AudioChatTranscriber {
	if model == "" {
		model = DefaultAudioChatModel
	}
	instruction := audioChatInstruction
	if hint != "" {
		instruction += "\nVocabulary: " + hint
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: defaultTimeout}, opts)
	return &AudioChatTranscriber{
		apiKey:      apiKey,
		model:       model,
		instruction: instruction,
		baseURL:     o.BaseURL,
		caller:      infra.NewCaller(domain.StageSTT, AudioChatName, o.Timeout, o.Observer),
	}
}

func (t *AudioChatTranscriber) Name() string  { return AudioChatName }
func (t *AudioChatTranscriber) Model() string { return t.model }

func (t *AudioChatTranscriber) Transcribe(ctx context.Context, audio []byte, _ domain.AudioFormat) (string, error) {
	body := t.request(base64.StdEncoding.EncodeToString(audio))
	summary := t.request(infra.BinarySummary(len(audio)))
	return postResponses(ctx, t.caller, t.baseURL, t.apiKey, body, summary)
}

func (t *AudioChatTranscriber) request(data any) responsesRequest {
	return responsesRequest{
		Model: t.model,
		Input: []inputMessage{{
			Role: "user",
			Content: []inputContent{
				{Type: "input_text", Text: t.instruction},
				{Type: "input_audio", InputAudio: &inputAudio{Data: data, Format: "wav"}},
			},
		}},
	}
}
