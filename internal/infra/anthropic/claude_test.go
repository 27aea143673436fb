package anthropic_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voxflow/internal/domain"
	"voxflow/internal/infra/anthropic"
)

func TestClaudeClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("x-api-key") != "test-key" || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("headers: %v", r.Header)
		}

		var req struct {
			Model    string `json:"model"`
			System   string `json:"system"`
			Messages []struct {
				Role    string `json:"role"`
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			return
		}
		if req.System != "fix punctuation" {
			t.Errorf("system: got %q", req.System)
		}
		if len(req.Messages) != 1 || len(req.Messages[0].Content) != 1 || req.Messages[0].Content[0].Text != "hello there how are you" {
			t.Errorf("messages: %+v", req.Messages)
		}

		response := map[string]any{
			"content": []map[string]string{
				{"type": "thinking", "text": ""},
				{"type": "text", "text": "Hello there, how are you?"},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("test-key", "claude-test", server.URL)

	text, err := client.Complete(context.Background(), "fix punctuation", "hello there how are you")
	if err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	if text != "Hello there, how are you?" {
		t.Errorf("text: got %q", text)
	}
	if client.Model() != "claude-test" {
		t.Errorf("model: got %s", client.Model())
	}
}

func TestClaudeClient_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	client := anthropic.NewClaudeClientWithURL("test-key", "", server.URL)

	_, err := client.Complete(context.Background(), "s", "u")
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Kind != domain.KindInvalidResponse {
		t.Fatalf("expected InvalidResponse, got %v", err)
	}
}

func TestClaudeClient_Overloaded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := anthropic.NewClaudeClientWithURL("k", "", server.URL).Complete(context.Background(), "s", "u")

	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Kind != domain.KindAPI || pe.Message != "Overloaded" {
		t.Fatalf("expected API error, got %v", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("529 should classify as retryable")
	}
}
