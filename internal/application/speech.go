package application

import (
	"context"
	"time"

	"voxflow/config"
	"voxflow/internal/domain"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format domain.AudioFormat) (string, error)
	Name() string
	Model() string
}

type Rewriter interface {
	Complete(ctx context.Context, systemPrompt, userMessage string) (string, error)
	Name() string
	Model() string
	// StructuredOutput reports whether replies are constrained to the
	// rewritten_text JSON schema.
	StructuredOutput() bool
}

type STTSpec struct {
	Provider string
	Model    string
	Prompt   string
}

type LLMSpec struct {
	Provider       string
	Model          string
	Timeout        time.Duration
	BaseURL        string
	ThinkingBudget *int
	ThinkingLevel  string
}

// ProviderFactory builds adapters. Construction performs no I/O so it can
// run under the engine lock.
type ProviderFactory interface {
	NewTranscriber(keys config.APIKeys, spec STTSpec) (Transcriber, error)
	NewRewriter(keys config.APIKeys, spec LLMSpec) (Rewriter, error)
}
