package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/davidbz/ember/internal/domain"
)

const (
	sseKeepAlive = ": keep-alive\n\n"
	sseDone      = "data: [DONE]\n\n"
)

// sseWriter implements domain.StreamSink over an event-stream response.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

// open sends the stream headers so the caller sees the stream before generation starts.
func (s *sseWriter) open(requestID string) {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(requestIDHeader, requestID)

	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *sseWriter) WriteChunk(chunk *domain.ChatCompletionChunk) error {
	return s.writeData(chunk)
}

func (s *sseWriter) WriteKeepAlive() error {
	return s.writeRaw(sseKeepAlive)
}

func (s *sseWriter) WriteDone() error {
	return s.writeRaw(sseDone)
}

func (s *sseWriter) WriteError(envelope domain.ErrorEnvelope) error {
	return s.writeData(envelope)
}

func (s *sseWriter) writeData(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return s.writeRaw("data: " + string(data) + "\n\n")
}

func (s *sseWriter) writeRaw(frame string) error {
	if _, err := fmt.Fprint(s.w, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
