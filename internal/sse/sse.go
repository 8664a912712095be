// Package sse encodes relay events as Server-Sent Events frames.
package sse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/comigor/concierge-go/internal/relay"
)

// ErrFlushUnsupported is returned when the response writer cannot flush.
var ErrFlushUnsupported = errors.New("sse: response writer does not support flushing")

// Frame is the JSON payload of one wire frame.
type Frame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"session_id"`
}

func FromEvent(ev relay.Event) Frame {
	return Frame{Type: string(ev.Kind), Content: ev.Content, SessionID: ev.SessionID}
}

// Encode writes f as a single "data: <json>\n\n" frame. Non-ASCII text is
// written as-is.
func Encode(w io.Writer, f Frame) error {
	var buf bytes.Buffer
	buf.WriteString("data: ")
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("sse: encode frame: %w", err)
	}
	// Encoder terminates with one newline; the blank line ends the frame.
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// Writer streams frames over an HTTP response, flushing after each one.
// Headers and the 200 status are committed by the first Send.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrFlushUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

func (s *Writer) Send(ev relay.Event) error {
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream; charset=utf-8")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if err := Encode(s.w, FromEvent(ev)); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Started reports whether the status line has been committed.
func (s *Writer) Started() bool {
	return s.started
}
