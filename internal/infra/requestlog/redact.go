package requestlog

import (
	"encoding/base64"
	"encoding/json"

	"voxflow/internal/domain"
)

// minAudioChars is the shortest string treated as embedded audio.
const minAudioChars = 256

func redactLog(l *domain.RequestLog) {
	l.STTRequest = Redact(l.STTRequest)
	l.STTResponse = Redact(l.STTResponse)
	l.LLMRequest = Redact(l.LLMRequest)
	l.LLMResponse = Redact(l.LLMResponse)
}

// Redact replaces long base64 string fields anywhere in a JSON document
// with {"bytes":N,"data":"<omitted>"}. Documents without such fields are
// returned unchanged.
func Redact(raw json.RawMessage) json.RawMessage {
	if len(raw) < minAudioChars {
		return raw
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return raw
	}
	doc, changed := redactValue(doc)
	if !changed {
		return raw
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return raw
	}
	return out
}

func redactValue(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		changed := false
		for k, child := range t {
			if nv, ok := redactValue(child); ok {
				t[k] = nv
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, child := range t {
			if nv, ok := redactValue(child); ok {
				t[i] = nv
				changed = true
			}
		}
		return t, changed
	case string:
		if n, ok := base64Len(t); ok {
			return map[string]any{"bytes": n, "data": "<omitted>"}, true
		}
	}
	return v, false
}

func base64Len(s string) (int, bool) {
	if len(s) < minAudioChars || len(s)%4 != 0 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		isB64 := c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '+' || c == '/' || c == '='
		if !isB64 {
			return 0, false
		}
	}
	return base64.StdEncoding.DecodedLen(len(s)) - padding(s), true
}

func padding(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '='; i-- {
		n++
	}
	return n
}
