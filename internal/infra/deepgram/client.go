// Package deepgram implements speech-to-text against Deepgram's
// pre-recorded /listen endpoint.
package deepgram

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voxflow/internal/domain"
	"voxflow/internal/infra"
)

const (
	Name         = "deepgram"
	DefaultModel = "nova-3"

	defaultBaseURL = "https://api.deepgram.com/v1"
)

type Client struct {
	apiKey  string
	model   string
	baseURL string
	caller  *infra.Caller
}

func NewClient(apiKey, model string, opts ...infra.Option) *Client {
	if model == "" {
		model = DefaultModel
	}
	o := infra.ApplyOptions(infra.ClientOptions{BaseURL: defaultBaseURL, Timeout: 60 * time.Second}, opts)
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: o.BaseURL,
		caller:  infra.NewCaller(domain.StageSTT, Name, o.Timeout, o.Observer),
	}
}

func (c *Client) Name() string  { return Name }
func (c *Client) Model() string { return c.model }

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (c *Client) Transcribe(ctx context.Context, audio []byte, format domain.AudioFormat) (string, error) {
	q := url.Values{}
	q.Set("model", c.model)
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	endpoint := c.baseURL + "/listen?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", contentType(format))

	summary := map[string]any{
		"model": c.model,
		"audio": infra.BinarySummary(len(audio)),
	}
	respBody, err := c.caller.Do(ctx, req, summary)
	if err != nil {
		return "", err
	}

	var result listenResponse
	if err := c.caller.DecodeJSON(respBody, &result); err != nil {
		return "", err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return "", c.caller.Errorf(domain.KindInvalidResponse, "no alternatives in response")
	}
	return strings.TrimSpace(result.Results.Channels[0].Alternatives[0].Transcript), nil
}

func contentType(format domain.AudioFormat) string {
	if format.Encoding == domain.EncodingPCM16 {
		return fmt.Sprintf("audio/l16;rate=%d;channels=%d", format.SampleRate, format.Channels)
	}
	return "audio/wav"
}
