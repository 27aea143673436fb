package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxRecordingBytes = 50 << 20
	DefaultHistoryLimit      = 5000
	RequestLogHardCap        = 1000
)

type Config struct {
	Log        LogConfig        `yaml:"log" json:"log"`
	DataDir    string           `yaml:"data_dir" json:"data_dir" env:"VOXFLOW_DATA_DIR"`
	HTTP       HTTPConfig       `yaml:"http" json:"http"`
	Audio      AudioConfig      `yaml:"audio" json:"audio"`
	VAD        VADConfig        `yaml:"vad" json:"vad"`
	Retry      RetryConfig      `yaml:"retry" json:"retry"`
	STT        STTConfig        `yaml:"stt" json:"stt"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Prompts    PromptSections   `yaml:"prompts" json:"prompts"`
	Profiles   []Profile        `yaml:"profiles" json:"profiles"`
	APIKeys    APIKeys          `yaml:"api_keys" json:"api_keys"`
	RequestLog RequestLogConfig `yaml:"request_log" json:"request_log"`
	History    HistoryConfig    `yaml:"history" json:"history"`
	Recordings RecordingsConfig `yaml:"recordings" json:"recordings"`
	Notify     NotifyConfig     `yaml:"notify" json:"notify"`
	Clipboard  ClipboardConfig  `yaml:"clipboard" json:"clipboard"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type HTTPConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	AuthToken string `yaml:"auth_token" json:"-" env:"VOXFLOW_AUTH_TOKEN"`
	// RateLimit is the number of command requests allowed per minute per client.
	RateLimit int `yaml:"rate_limit" json:"rate_limit"`
}

type AudioConfig struct {
	MaxDurationSeconds float64 `yaml:"max_duration_seconds" json:"max_duration_seconds"`
	NoiseGateStrength  int     `yaml:"noise_gate_strength" json:"noise_gate_strength"`
	MaxRecordingBytes  int     `yaml:"max_recording_bytes" json:"max_recording_bytes"`
}

func (a AudioConfig) MaxDuration() time.Duration {
	return time.Duration(a.MaxDurationSeconds * float64(time.Second))
}

type VADConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Mode        string `yaml:"mode" json:"mode"`
	StartFrames int    `yaml:"start_frames" json:"start_frames"`
	HangoverMS  int    `yaml:"hangover_ms" json:"hangover_ms"`
	PreRollMS   int    `yaml:"pre_roll_ms" json:"pre_roll_ms"`
}

type RetryConfig struct {
	MaxRetries       int     `yaml:"max_retries" json:"max_retries"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms" json:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms" json:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" json:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" json:"jitter_fraction"`
}

type STTConfig struct {
	Provider       string `yaml:"provider" json:"provider"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	// Prompt is a vocabulary hint for providers that accept one.
	Prompt string `yaml:"prompt" json:"prompt"`
}

type LLMConfig struct {
	Enabled        bool   `yaml:"enabled" json:"enabled"`
	Provider       string `yaml:"provider" json:"provider"`
	Model          string `yaml:"model" json:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	BaseURL        string `yaml:"base_url" json:"base_url"`
	// Gemini thinking controls; ignored by other providers.
	ThinkingBudget *int   `yaml:"thinking_budget" json:"thinking_budget,omitempty"`
	ThinkingLevel  string `yaml:"thinking_level" json:"thinking_level"`
}

// PromptSections are the individually toggled parts of the rewrite prompt.
// Nil or empty custom text falls back to the built-in default.
type PromptSections struct {
	MainCustom        *string `yaml:"main_custom" json:"main_custom,omitempty"`
	AdvancedEnabled   bool    `yaml:"advanced_enabled" json:"advanced_enabled"`
	AdvancedCustom    *string `yaml:"advanced_custom" json:"advanced_custom,omitempty"`
	DictionaryEnabled bool    `yaml:"dictionary_enabled" json:"dictionary_enabled"`
	DictionaryCustom  *string `yaml:"dictionary_custom" json:"dictionary_custom,omitempty"`
}

// Profile is a per-program bundle of prompts and provider overrides.
// Nil fields inherit the global setting.
type Profile struct {
	ID                string         `yaml:"id" json:"id"`
	Name              string         `yaml:"name" json:"name"`
	ProgramPaths      []string       `yaml:"program_paths" json:"program_paths"`
	Prompts           PromptSections `yaml:"prompts" json:"prompts"`
	RewriteLLMEnabled *bool          `yaml:"rewrite_llm_enabled" json:"rewrite_llm_enabled,omitempty"`
	STTProvider       *string        `yaml:"stt_provider" json:"stt_provider,omitempty"`
	STTModel          *string        `yaml:"stt_model" json:"stt_model,omitempty"`
	STTTimeoutSeconds *int           `yaml:"stt_timeout_seconds" json:"stt_timeout_seconds,omitempty"`
	LLMProvider       *string        `yaml:"llm_provider" json:"llm_provider,omitempty"`
	LLMModel          *string        `yaml:"llm_model" json:"llm_model,omitempty"`
}

type APIKeys struct {
	Groq      string `yaml:"groq" json:"-" env:"GROQ_API_KEY"`
	OpenAI    string `yaml:"openai" json:"-" env:"OPENAI_API_KEY"`
	Anthropic string `yaml:"anthropic" json:"-" env:"ANTHROPIC_API_KEY"`
	Deepgram  string `yaml:"deepgram" json:"-" env:"DEEPGRAM_API_KEY"`
	Gemini    string `yaml:"gemini" json:"-" env:"GEMINI_API_KEY"`
}

type RequestLogConfig struct {
	// Retention is "amount" (keep the last MaxEntries) or "time" (keep
	// entries younger than MaxAgeMinutes).
	Retention     string `yaml:"retention" json:"retention"`
	MaxEntries    int    `yaml:"max_entries" json:"max_entries"`
	MaxAgeMinutes int    `yaml:"max_age_minutes" json:"max_age_minutes"`
}

type HistoryConfig struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	MaxEntries int  `yaml:"max_entries" json:"max_entries"`
}

type RecordingsConfig struct {
	MaxFiles int `yaml:"max_files" json:"max_files"`
}

type NotifyConfig struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Pushover PushoverConfig `yaml:"pushover" json:"pushover"`
}

// PushoverConfig forwards error events to a phone.
type PushoverConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Token   string `yaml:"token" json:"-" env:"PUSHOVER_TOKEN"`
	UserKey string `yaml:"user_key" json:"-" env:"PUSHOVER_USER_KEY"`
}

type ClipboardConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML (or JSON, which is valid YAML), applying
// env expansion, env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cenv.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when a field is absent.
func Default() *Config {
	cfg := &Config{
		LLM:     LLMConfig{Enabled: true},
		History: HistoryConfig{Enabled: true},
		Notify:  NotifyConfig{Enabled: true},
	}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:7345"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 120
	}
	if c.Audio.MaxDurationSeconds == 0 {
		c.Audio.MaxDurationSeconds = 600
	}
	if c.Audio.MaxRecordingBytes == 0 {
		c.Audio.MaxRecordingBytes = DefaultMaxRecordingBytes
	}
	if c.VAD.Mode == "" {
		c.VAD.Mode = "aggressive"
	}
	if c.VAD.StartFrames == 0 {
		c.VAD.StartFrames = 3
	}
	if c.VAD.HangoverMS == 0 {
		c.VAD.HangoverMS = 300
	}
	if c.VAD.PreRollMS == 0 {
		c.VAD.PreRollMS = 200
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.InitialBackoffMS == 0 {
		c.Retry.InitialBackoffMS = 500
	}
	if c.Retry.MaxBackoffMS == 0 {
		c.Retry.MaxBackoffMS = 8000
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = 2
	}
	if c.Retry.JitterFraction == 0 {
		c.Retry.JitterFraction = 0.2
	}
	if c.STT.Provider == "" {
		c.STT.Provider = "groq"
	}
	if c.STT.TimeoutSeconds == 0 {
		c.STT.TimeoutSeconds = 30
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 15
	}
	if c.RequestLog.Retention == "" {
		c.RequestLog.Retention = "amount"
	}
	if c.RequestLog.MaxEntries == 0 {
		c.RequestLog.MaxEntries = 100
	}
	if c.RequestLog.MaxAgeMinutes == 0 {
		c.RequestLog.MaxAgeMinutes = 24 * 60
	}
	if c.History.MaxEntries == 0 {
		c.History.MaxEntries = DefaultHistoryLimit
	}
	if c.Recordings.MaxFiles == 0 {
		c.Recordings.MaxFiles = 200
	}
}

func (c *Config) Validate() error {
	if c.Audio.MaxDurationSeconds < 0 {
		return fmt.Errorf("audio.max_duration_seconds must be >= 0")
	}
	if c.Audio.NoiseGateStrength < 0 || c.Audio.NoiseGateStrength > 100 {
		return fmt.Errorf("audio.noise_gate_strength must be within 0..100, got %d", c.Audio.NoiseGateStrength)
	}
	if c.Audio.MaxRecordingBytes < 0 {
		return fmt.Errorf("audio.max_recording_bytes must be >= 0")
	}
	switch c.VAD.Mode {
	case "quality", "low-bitrate", "aggressive", "very-aggressive":
	default:
		return fmt.Errorf("vad.mode %q is not one of quality, low-bitrate, aggressive, very-aggressive", c.VAD.Mode)
	}
	if c.VAD.StartFrames < 1 {
		return fmt.Errorf("vad.start_frames must be >= 1")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		return fmt.Errorf("retry.jitter_fraction must be within 0..1")
	}
	if c.STT.TimeoutSeconds <= 0 {
		return fmt.Errorf("stt.timeout_seconds must be > 0")
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return fmt.Errorf("llm.timeout_seconds must be > 0")
	}
	switch c.RequestLog.Retention {
	case "amount", "time":
	default:
		return fmt.Errorf("request_log.retention must be amount or time, got %q", c.RequestLog.Retention)
	}
	if c.History.MaxEntries > DefaultHistoryLimit {
		return fmt.Errorf("history.max_entries must be <= %d", DefaultHistoryLimit)
	}

	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("profiles[%d]: id is required", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("profiles[%d]: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		if p.STTTimeoutSeconds != nil && *p.STTTimeoutSeconds <= 0 {
			return fmt.Errorf("profiles[%d]: stt_timeout_seconds must be > 0", i)
		}
	}
	return nil
}

// Profile returns the profile with the given id.
func (c *Config) Profile(id string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

// Clone returns a deep copy so a config can be handed across goroutines.
func (c *Config) Clone() *Config {
	out := *c
	out.Profiles = make([]Profile, len(c.Profiles))
	for i, p := range c.Profiles {
		p.ProgramPaths = append([]string(nil), p.ProgramPaths...)
		out.Profiles[i] = p
	}
	return &out
}

func (c *Config) RecordingsDir() string {
	return filepath.Join(c.DataDir, "recordings")
}

func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.json")
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voxflow")
	}
	return "./data"
}
