package gemini

import (
	"fmt"
	"slices"
	"strings"
)

type budgetRange struct {
	min, max int
	allowOff bool
}

// Longest prefix first so flash-lite is not taken for flash.
var budgetRanges = []struct {
	family string
	budgetRange
}{
	{"gemini-2.5-flash-lite", budgetRange{512, 24576, true}},
	{"gemini-2.5-flash", budgetRange{0, 24576, true}},
	{"gemini-2.5-pro", budgetRange{128, 32768, false}},
}

var levels = map[string][]string{
	"pro":   {"low", "high"},
	"flash": {"minimal", "low", "medium", "high"},
}

// ResolveThinking validates t against model. It returns the config to
// send, or nil plus the reason the setting cannot be used.
func ResolveThinking(model string, t Thinking) (*ThinkingConfig, error) {
	if t.Budget == nil && t.Level == "" {
		return nil, nil
	}
	m := strings.ToLower(model)

	if strings.HasPrefix(m, "gemini-3") {
		if t.Budget != nil {
			return nil, fmt.Errorf("thinking budget is not supported by %s; use a thinking level", model)
		}
		variant := "flash"
		if strings.Contains(m, "pro") {
			variant = "pro"
		}
		level := strings.ToLower(t.Level)
		if !slices.Contains(levels[variant], level) {
			return nil, fmt.Errorf("thinking level %q is not one of %v", t.Level, levels[variant])
		}
		return &ThinkingConfig{ThinkingLevel: level}, nil
	}

	for _, r := range budgetRanges {
		if !strings.HasPrefix(m, r.family) {
			continue
		}
		if t.Level != "" {
			return nil, fmt.Errorf("thinking level is not supported by %s; use a thinking budget", model)
		}
		b := *t.Budget
		switch {
		case b == -1:
		case b == 0 && r.allowOff:
		case b >= r.min && b <= r.max && b != 0:
		default:
			return nil, fmt.Errorf("thinking budget %d is outside %d..%d (or -1) for %s", b, r.min, r.max, model)
		}
		return &ThinkingConfig{ThinkingBudget: &b}, nil
	}

	return nil, fmt.Errorf("model %s has no thinking controls", model)
}
