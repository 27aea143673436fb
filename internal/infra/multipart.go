package infra

import (
	"bytes"
	"fmt"
	"mime/multipart"
)

// Field is one form field of a multipart upload.
type Field struct {
	Name  string
	Value string
}

// AudioForm builds the multipart body used by OpenAI-style transcription
// endpoints: file=audio.wav followed by the given fields. Empty values are
// skipped.
func AudioForm(audio []byte, fields ...Field) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("creating form file: %w", err)
	}
	if _, err = part.Write(audio); err != nil {
		return nil, "", fmt.Errorf("writing audio: %w", err)
	}

	for _, f := range fields {
		if f.Value == "" {
			continue
		}
		if err = writer.WriteField(f.Name, f.Value); err != nil {
			return nil, "", fmt.Errorf("writing %s field: %w", f.Name, err)
		}
	}

	if err = writer.Close(); err != nil {
		return nil, "", fmt.Errorf("closing writer: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

// FormSummary renders an AudioForm upload for request logs.
func FormSummary(audioBytes int, fields ...Field) map[string]any {
	out := map[string]any{"file": BinarySummary(audioBytes)}
	for _, f := range fields {
		if f.Value != "" {
			out[f.Name] = f.Value
		}
	}
	return out
}
