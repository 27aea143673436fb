package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

var pipelineStates = []domain.PipelineState{
	domain.StateIdle,
	domain.StateRecording,
	domain.StateTranscribing,
	domain.StateError,
}

// Metrics is safe to use through a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	upstreamRequestsTotal *prometheus.CounterVec
	upstreamDuration      *prometheus.HistogramVec
	state                 *prometheus.GaugeVec
	recordingBytes        prometheus.Histogram
	recordingSeconds      prometheus.Histogram
	transcriptionsTotal   *prometheus.CounterVec
	sttDuration           prometheus.Histogram
	llmTotal              *prometheus.CounterVec
	llmDuration           prometheus.Histogram
	retriesTotal          *prometheus.CounterVec
	fallbacksTotal        *prometheus.CounterVec
	vadEventsTotal        *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_http_requests_total",
				Help: "Total number of command API requests handled.",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxflow_http_request_duration_seconds",
				Help:    "Command API request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method", "status"},
		),
		upstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_upstream_requests_total",
				Help: "Total STT and LLM provider requests.",
			},
			[]string{"stage", "provider", "status"},
		),
		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voxflow_upstream_request_duration_seconds",
				Help:    "Provider request duration in seconds.",
				Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30, 60},
			},
			[]string{"stage", "provider"},
		),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "voxflow_pipeline_state",
				Help: "1 for the current pipeline state, 0 otherwise.",
			},
			[]string{"state"},
		),
		recordingBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxflow_recording_bytes",
			Help:    "Size of encoded recordings.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 8),
		}),
		recordingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxflow_recording_duration_seconds",
			Help:    "Length of captured audio.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		transcriptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_transcriptions_total",
				Help: "Finished transcription requests by final status.",
			},
			[]string{"status"},
		),
		sttDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxflow_stt_duration_seconds",
			Help:    "Speech-to-text stage duration including retries.",
			Buckets: prometheus.DefBuckets,
		}),
		llmTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_llm_rewrites_total",
				Help: "LLM rewrite attempts by outcome.",
			},
			[]string{"outcome"},
		),
		llmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxflow_llm_duration_seconds",
			Help:    "LLM rewrite duration.",
			Buckets: prometheus.DefBuckets,
		}),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_stt_retries_total",
				Help: "Retried speech-to-text attempts.",
			},
			[]string{"provider"},
		),
		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_provider_fallback_total",
				Help: "Profile provider overrides that fell back to the global provider.",
			},
			[]string{"stage"},
		),
		vadEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voxflow_vad_events_total",
				Help: "Voice activity transitions.",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.upstreamRequestsTotal,
		m.upstreamDuration,
		m.state,
		m.recordingBytes,
		m.recordingSeconds,
		m.transcriptionsTotal,
		m.sttDuration,
		m.llmTotal,
		m.llmDuration,
		m.retriesTotal,
		m.fallbacksTotal,
		m.vadEventsTotal,
	)
	m.SetState(domain.StateIdle)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "UNKNOWN"
	}
	statusLabel := strconv.Itoa(status)
	m.httpRequestsTotal.WithLabelValues(route, method, statusLabel).Inc()
	m.httpRequestDuration.WithLabelValues(route, method, statusLabel).Observe(duration.Seconds())
}

// ObserveExchange is installed as the provider factory's exchange observer.
// Transport failures are labelled "error" since they carry no status.
func (m *Metrics) ObserveExchange(ex infra.Exchange) {
	if m == nil {
		return
	}
	status := "error"
	if ex.Status != 0 {
		status = strconv.Itoa(ex.Status)
	}
	provider := ex.Provider
	if provider == "" {
		provider = "unknown"
	}
	m.upstreamRequestsTotal.WithLabelValues(string(ex.Stage), provider, status).Inc()
	m.upstreamDuration.WithLabelValues(string(ex.Stage), provider).Observe(ex.Duration.Seconds())
}

func (m *Metrics) SetState(state domain.PipelineState) {
	if m == nil {
		return
	}
	for _, s := range pipelineStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}
}

func (m *Metrics) ObserveRecording(bytes int, seconds float64) {
	if m == nil {
		return
	}
	m.recordingBytes.Observe(float64(bytes))
	m.recordingSeconds.Observe(seconds)
}

func (m *Metrics) ObserveTranscription(status string, stt time.Duration) {
	if m == nil {
		return
	}
	m.transcriptionsTotal.WithLabelValues(status).Inc()
	if stt > 0 {
		m.sttDuration.Observe(stt.Seconds())
	}
}

func (m *Metrics) ObserveLLM(outcome domain.LLMOutcomeKind, d time.Duration) {
	if m == nil {
		return
	}
	m.llmTotal.WithLabelValues(string(outcome)).Inc()
	if outcome != domain.LLMNotAttempted {
		m.llmDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) IncRetry(provider string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(provider).Inc()
}

func (m *Metrics) IncProviderFallback(stage domain.Stage) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) ObserveVAD(kind string) {
	if m == nil {
		return
	}
	m.vadEventsTotal.WithLabelValues(kind).Inc()
}
