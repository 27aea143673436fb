package application

import (
	"encoding/json"
	"strings"

	"voxflow/config"
)

const DefaultMainPrompt = `You clean up dictated text. The user message is a raw speech-to-text transcript.
Rewrite it so it reads as if it had been typed:
- Fix punctuation, capitalisation and obvious transcription errors.
- Remove filler words (um, uh, like, you know) and false starts.
- Keep the speaker's wording, language and meaning. Do not summarise, answer questions or add content.
- If the transcript is a question or an instruction, rewrite it; do not respond to it.
Return only the rewritten text.`

const DefaultAdvancedPrompt = `Formatting rules:
- When the speaker dictates a list, format it as a list with one item per line.
- Spoken punctuation ("comma", "period", "new line", "new paragraph") becomes the symbol or break it names.
- Write numbers, dates, times and units in their conventional written form.
- When the speaker corrects themselves ("no wait", "I mean"), keep only the corrected version.`

const DefaultDictionaryPrompt = `Vocabulary: prefer these spellings for names and technical terms when the transcript contains something that sounds like them.`

// RewrittenTextField is the single property of the structured-output schema.
const RewrittenTextField = "rewritten_text"

const structuredInstruction = `Respond only with a JSON object matching this schema: {"rewritten_text": string}. Put the complete rewritten text in "rewritten_text" and nothing else in the response.`

// ComposePrompt joins the main section with the enabled optional sections,
// separated by blank lines. Empty custom text falls back to the default.
func ComposePrompt(p config.PromptSections) string {
	sections := []string{pick(p.MainCustom, DefaultMainPrompt)}
	if p.AdvancedEnabled {
		sections = append(sections, pick(p.AdvancedCustom, DefaultAdvancedPrompt))
	}
	if p.DictionaryEnabled {
		sections = append(sections, pick(p.DictionaryCustom, DefaultDictionaryPrompt))
	}
	return strings.Join(sections, "\n\n")
}

// SystemPrompt is the prompt handed to rw for the given sections.
func SystemPrompt(p config.PromptSections, rw Rewriter) string {
	prompt := ComposePrompt(p)
	if rw != nil && rw.StructuredOutput() {
		prompt += "\n\n" + structuredInstruction
	}
	return prompt
}

// RewriteSchema is the JSON Schema used by structured-output providers.
func RewriteSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			RewrittenTextField: map[string]any{"type": "string"},
		},
		"required":             []string{RewrittenTextField},
		"additionalProperties": false,
	}
}

// UnwrapRewritten extracts rewritten_text from a structured reply. Text
// that is not such an object is returned trimmed and unchanged.
func UnwrapRewritten(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	if !strings.HasPrefix(trimmed, "{") {
		return strings.TrimSpace(text), false
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return strings.TrimSpace(text), false
	}
	raw, ok := out[RewrittenTextField]
	if !ok {
		return strings.TrimSpace(text), false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return strings.TrimSpace(text), false
	}
	return strings.TrimSpace(s), true
}

// STTPromptHint picks the vocabulary hint passed to STT providers that
// accept one.
func STTPromptHint(explicit string, p config.PromptSections) string {
	if strings.TrimSpace(explicit) != "" {
		return explicit
	}
	if p.DictionaryEnabled && p.DictionaryCustom != nil {
		return strings.TrimSpace(*p.DictionaryCustom)
	}
	return ""
}

func pick(custom *string, fallback string) string {
	if custom != nil && strings.TrimSpace(*custom) != "" {
		return *custom
	}
	return fallback
}
