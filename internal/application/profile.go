package application

import (
	"strings"
	"time"

	"voxflow/config"
)

// ForegroundProvider reports the executable of the focused window.
type ForegroundProvider interface {
	ForegroundExecutablePath() (string, bool)
}

type noForeground struct{}

func (noForeground) ForegroundExecutablePath() (string, bool) { return "", false }

// NormalizePath case-folds p and uses backslash separators.
func NormalizePath(p string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(p), "/", `\`))
}

// MatchProfile returns the first profile listing exePath.
func MatchProfile(profiles []config.Profile, exePath string) (config.Profile, bool) {
	target := NormalizePath(exePath)
	if target == "" {
		return config.Profile{}, false
	}
	for _, p := range profiles {
		for _, candidate := range p.ProgramPaths {
			if NormalizePath(candidate) == target {
				return p, true
			}
		}
	}
	return config.Profile{}, false
}

// Effective is the configuration resolved once per request.
type Effective struct {
	ProfileID  string
	Prompts    config.PromptSections
	STT        STTSpec
	STTTimeout time.Duration
	LLMEnabled bool
	LLM        LLMSpec

	// Global specs are the fallback when a profile override cannot be built.
	GlobalSTT STTSpec
	GlobalLLM LLMSpec
}

// Resolve applies profile overrides (when profile is non-nil) on top of
// the global config: each field is the first non-nil of profile, global.
func Resolve(cfg *config.Config, profile *config.Profile) Effective {
	prompts := cfg.Prompts
	if profile != nil {
		prompts = profile.Prompts
	}

	globalSTT := STTSpec{
		Provider: cfg.STT.Provider,
		Model:    cfg.STT.Model,
		Prompt:   STTPromptHint(cfg.STT.Prompt, prompts),
	}
	globalLLM := LLMSpec{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		Timeout:        time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		BaseURL:        cfg.LLM.BaseURL,
		ThinkingBudget: cfg.LLM.ThinkingBudget,
		ThinkingLevel:  cfg.LLM.ThinkingLevel,
	}

	eff := Effective{
		Prompts:    prompts,
		STT:        globalSTT,
		STTTimeout: time.Duration(cfg.STT.TimeoutSeconds) * time.Second,
		LLMEnabled: cfg.LLM.Enabled,
		LLM:        globalLLM,
		GlobalSTT:  globalSTT,
		GlobalLLM:  globalLLM,
	}
	if profile == nil {
		return eff
	}

	eff.ProfileID = profile.ID
	// A different provider starts from its own default model rather than
	// the global provider's.
	if profile.STTProvider != nil && !sameProvider(*profile.STTProvider, eff.STT.Provider) {
		eff.STT.Provider = *profile.STTProvider
		eff.STT.Model = ""
	}
	if profile.STTModel != nil {
		eff.STT.Model = *profile.STTModel
	}
	if profile.STTTimeoutSeconds != nil {
		eff.STTTimeout = time.Duration(*profile.STTTimeoutSeconds) * time.Second
	}
	if profile.RewriteLLMEnabled != nil {
		eff.LLMEnabled = *profile.RewriteLLMEnabled
	}
	if profile.LLMProvider != nil && !sameProvider(*profile.LLMProvider, eff.LLM.Provider) {
		eff.LLM = LLMSpec{Provider: *profile.LLMProvider, Timeout: eff.LLM.Timeout}
	}
	if profile.LLMModel != nil {
		eff.LLM.Model = *profile.LLMModel
	}
	return eff
}

func sameProvider(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
