// Package providers maps configured provider ids onto concrete STT and
// LLM adapters.
package providers

import (
	"log/slog"
	"sort"
	"strings"

	"voxflow/config"
	"voxflow/internal/application"
	"voxflow/internal/domain"
	"voxflow/internal/infra"
	"voxflow/internal/infra/anthropic"
	"voxflow/internal/infra/deepgram"
	"voxflow/internal/infra/gemini"
	"voxflow/internal/infra/groq"
	"voxflow/internal/infra/ollama"
	"voxflow/internal/infra/openai"
)

// Factory implements application.ProviderFactory. Every adapter it builds
// reports its HTTP exchanges to observer.
type Factory struct {
	logger   *slog.Logger
	observer infra.ObserverFunc
	// baseURLs overrides API roots per provider id, for tests and proxies.
	baseURLs map[string]string
}

func NewFactory(logger *slog.Logger, observer infra.ObserverFunc) *Factory {
	return &Factory{logger: logger, observer: observer, baseURLs: map[string]string{}}
}

// WithBaseURL returns a copy of f that sends provider's requests to url.
func (f *Factory) WithBaseURL(provider, url string) *Factory {
	out := *f
	out.baseURLs = make(map[string]string, len(f.baseURLs)+1)
	for k, v := range f.baseURLs {
		out.baseURLs[k] = v
	}
	out.baseURLs[provider] = url
	return &out
}

var sttProviders = map[string]bool{
	groq.Name:            true,
	openai.Name:          true,
	openai.AudioChatName: true,
	deepgram.Name:        true,
}

var llmProviders = map[string]bool{
	openai.Name:    true,
	anthropic.Name: true,
	groq.Name:      true,
	ollama.Name:    true,
	gemini.Name:    true,
}

// STTProviders lists the accepted stt.provider ids.
func STTProviders() []string { return sortedIDs(sttProviders) }

// LLMProviders lists the accepted llm.provider ids.
func LLMProviders() []string { return sortedIDs(llmProviders) }

func (f *Factory) NewTranscriber(keys config.APIKeys, spec application.STTSpec) (application.Transcriber, error) {
	id := strings.ToLower(strings.TrimSpace(spec.Provider))
	if !sttProviders[id] {
		return nil, unavailable(domain.StageSTT, spec.Provider)
	}
	key, err := apiKey(domain.StageSTT, id, keys)
	if err != nil {
		return nil, err
	}
	opts := f.options(id)

	switch id {
	case groq.Name:
		return groq.NewTranscriber(key, spec.Model, spec.Prompt, opts...), nil
	case openai.Name:
		return openai.NewTranscriber(key, spec.Model, opts...), nil
	case openai.AudioChatName:
		return openai.NewAudioChatTranscriber(key, spec.Model, spec.Prompt, opts...), nil
	default:
		return deepgram.NewClient(key, spec.Model, opts...), nil
	}
}

func (f *Factory) NewRewriter(keys config.APIKeys, spec application.LLMSpec) (application.Rewriter, error) {
	id := strings.ToLower(strings.TrimSpace(spec.Provider))
	if !llmProviders[id] {
		return nil, unavailable(domain.StageLLM, spec.Provider)
	}
	key, err := apiKey(domain.StageLLM, id, keys)
	if err != nil {
		return nil, err
	}
	opts := f.options(id)

	switch id {
	case openai.Name:
		return openai.NewResponsesClient(key, spec.Model, opts...), nil
	case anthropic.Name:
		return anthropic.NewClaudeClient(key, spec.Model, opts...), nil
	case groq.Name:
		return groq.NewChatClient(key, spec.Model, opts...), nil
	case gemini.Name:
		thinking := gemini.Thinking{Budget: spec.ThinkingBudget, Level: spec.ThinkingLevel}
		client, err := gemini.NewClient(key, spec.Model, thinking, f.logger, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		opts = append(opts, infra.WithTimeout(max(spec.Timeout, ollama.DefaultTimeout)))
		if spec.BaseURL != "" {
			opts = append(opts, infra.WithBaseURL(spec.BaseURL))
		}
		return ollama.NewClient(spec.Model, opts...), nil
	}
}

func (f *Factory) options(id string) []infra.Option {
	opts := []infra.Option{infra.WithExchangeObserver(f.observer)}
	if url, ok := f.baseURLs[id]; ok {
		opts = append(opts, infra.WithBaseURL(url))
	}
	return opts
}

// apiKey looks up the key for id. Ollama needs none.
func apiKey(stage domain.Stage, id string, keys config.APIKeys) (string, error) {
	var key string
	switch id {
	case groq.Name:
		key = keys.Groq
	case openai.Name, openai.AudioChatName:
		key = keys.OpenAI
	case anthropic.Name:
		key = keys.Anthropic
	case deepgram.Name:
		key = keys.Deepgram
	case gemini.Name:
		key = keys.Gemini
	case ollama.Name:
		return "", nil
	}
	if strings.TrimSpace(key) == "" {
		return "", &domain.ProviderError{
			Stage:    stage,
			Kind:     domain.KindNoAPIKey,
			Provider: id,
			Message:  "no API key configured for " + id,
		}
	}
	return key, nil
}

func unavailable(stage domain.Stage, id string) error {
	return &domain.ProviderError{
		Stage:    stage,
		Kind:     domain.KindProviderUnavailable,
		Provider: id,
		Message:  "unknown provider " + id,
	}
}

func sortedIDs(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
