package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"voxflow/internal/domain"
)

const maxErrorBodyChars = 500

// Exchange describes one provider HTTP round trip. Request is a JSON
// rendering of what was sent with binary audio already summarised.
type Exchange struct {
	Stage    domain.Stage
	Provider string
	Endpoint string
	Status   int
	Duration time.Duration
	Request  json.RawMessage
	Response json.RawMessage
	Err      error
}

type ObserverFunc func(Exchange)

type observerKey struct{}

// WithObserver attaches a per-request exchange observer to ctx.
func WithObserver(ctx context.Context, fn ObserverFunc) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func observerFrom(ctx context.Context) ObserverFunc {
	fn, _ := ctx.Value(observerKey{}).(ObserverFunc)
	return fn
}

// Caller performs provider HTTP calls and maps failures onto
// domain.ProviderError.
type Caller struct {
	Client   *http.Client
	Stage    domain.Stage
	Provider string
	Observer ObserverFunc
}

func NewCaller(stage domain.Stage, provider string, timeout time.Duration, observer ObserverFunc) *Caller {
	return &Caller{
		Client:   &http.Client{Timeout: timeout},
		Stage:    stage,
		Provider: provider,
		Observer: observer,
	}
}

// Do sends req and returns the response body of a 2xx reply. summary is
// recorded as the request body in observed exchanges.
func (c *Caller) Do(ctx context.Context, req *http.Request, summary any) ([]byte, error) {
	started := time.Now()
	ex := Exchange{
		Stage:    c.Stage,
		Provider: c.Provider,
		Endpoint: req.URL.Path,
		Request:  marshalSummary(summary),
	}

	resp, err := c.Client.Do(req.WithContext(ctx))
	if err != nil {
		ex.Duration = time.Since(started)
		mapped := c.transportError(ctx, err)
		ex.Err = mapped
		c.observe(ctx, ex)
		return nil, mapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	ex.Duration = time.Since(started)
	ex.Status = resp.StatusCode
	if err != nil {
		mapped := c.transportError(ctx, fmt.Errorf("reading response: %w", err))
		ex.Err = mapped
		c.observe(ctx, ex)
		return nil, mapped
	}
	ex.Response = rawOrString(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &domain.ProviderError{
			Stage:      c.Stage,
			Kind:       domain.KindAPI,
			Provider:   c.Provider,
			StatusCode: resp.StatusCode,
			Message:    ParseErrorMessage(body),
		}
		ex.Err = apiErr
		c.observe(ctx, ex)
		return nil, apiErr
	}

	c.observe(ctx, ex)
	return body, nil
}

// DecodeJSON unmarshals a provider response, reporting malformed bodies
// as invalid responses.
func (c *Caller) DecodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return c.Errorf(domain.KindInvalidResponse, "decoding response: %v", err)
	}
	return nil
}

// Errorf builds a ProviderError for this caller's stage and provider.
func (c *Caller) Errorf(kind domain.ErrorKind, format string, args ...any) error {
	return &domain.ProviderError{
		Stage:    c.Stage,
		Kind:     kind,
		Provider: c.Provider,
		Message:  fmt.Sprintf(format, args...),
	}
}

func (c *Caller) transportError(ctx context.Context, err error) error {
	// The caller gave up; let the orchestrator decide what that means.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	kind := domain.KindNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.KindTimeout
	}
	return &domain.ProviderError{
		Stage:    c.Stage,
		Kind:     kind,
		Provider: c.Provider,
		Err:      err,
	}
}

func (c *Caller) observe(ctx context.Context, ex Exchange) {
	if c.Observer != nil {
		c.Observer(ex)
	}
	if fn := observerFrom(ctx); fn != nil {
		fn(ex)
	}
}

// ParseErrorMessage extracts a human readable message from an error body.
// It understands {"error":{"message":...}}, {"error":"..."},
// {"message":...} and Deepgram's {"err_msg":...}; anything else is
// returned truncated.
func ParseErrorMessage(body []byte) string {
	var parsed struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		ErrMsg  string          `json:"err_msg"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var s string
			if json.Unmarshal(parsed.Error, &s) == nil && s != "" {
				return s
			}
		}
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.ErrMsg != "" {
			return parsed.ErrMsg
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyChars {
		text = text[:maxErrorBodyChars] + "..."
	}
	return text
}

// BinarySummary stands in for audio bytes in observed requests.
func BinarySummary(n int) map[string]any {
	return map[string]any{"bytes": n, "data": "<omitted>"}
}

func marshalSummary(v any) json.RawMessage {
	switch t := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return t
	case []byte:
		return rawOrString(t)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

func rawOrString(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	data, _ := json.Marshal(string(body))
	return data
}
