package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
	"voxflow/internal/infra/metrics"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestMetrics_Exposition(t *testing.T) {
	m := metrics.New()

	m.SetState(domain.StateTranscribing)
	m.ObserveHTTP("/v1/state", "GET", 200, 5*time.Millisecond)
	m.ObserveExchange(infra.Exchange{Stage: domain.StageSTT, Provider: "groq", Status: 200, Duration: time.Second})
	m.ObserveExchange(infra.Exchange{Stage: domain.StageLLM, Provider: "openai", Duration: time.Second})
	m.ObserveRecording(64000, 2)
	m.ObserveTranscription("success", 800*time.Millisecond)
	m.ObserveLLM(domain.LLMTimedOut, 3*time.Second)
	m.IncRetry("groq")
	m.IncProviderFallback(domain.StageLLM)
	m.ObserveVAD("speech_start")

	out := scrape(t, m)
	want := []string{
		`voxflow_pipeline_state{state="transcribing"} 1`,
		`voxflow_pipeline_state{state="idle"} 0`,
		`voxflow_http_requests_total{method="GET",route="/v1/state",status="200"} 1`,
		`voxflow_upstream_requests_total{provider="groq",stage="stt",status="200"} 1`,
		`voxflow_upstream_requests_total{provider="openai",stage="llm",status="error"} 1`,
		`voxflow_recording_bytes_count 1`,
		`voxflow_transcriptions_total{status="success"} 1`,
		`voxflow_llm_rewrites_total{outcome="timed_out"} 1`,
		`voxflow_stt_retries_total{provider="groq"} 1`,
		`voxflow_provider_fallback_total{stage="llm"} 1`,
		`voxflow_vad_events_total{kind="speech_start"} 1`,
	}
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("exposition missing %q", w)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *metrics.Metrics
	m.SetState(domain.StateIdle)
	m.ObserveHTTP("", "", 500, 0)
	m.ObserveExchange(infra.Exchange{})
	m.ObserveRecording(1, 1)
	m.ObserveTranscription("error", 0)
	m.ObserveLLM(domain.LLMFailed, 0)
	m.IncRetry("x")
	m.IncProviderFallback(domain.StageSTT)
	m.ObserveVAD("speech_end")
}
