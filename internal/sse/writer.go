package sse

import (
	"errors"
	"net/http"
)

var ErrStreamingUnsupported = errors.New("sse: response writer does not support flushing")

// Writer pushes frames to the client and flushes after each one.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	return &Writer{w: w, flusher: flusher}, nil
}

// Start commits the response as an event stream. Calling Write first does this
// implicitly.
func (s *Writer) Start() {
	if s.started {
		return
	}
	s.started = true

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *Writer) Write(f Frame) error {
	s.Start()

	b, err := Encode(f)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *Writer) Content(text string) error { return s.Write(ContentFrame{Content: text}) }
func (s *Writer) Error(msg string) error    { return s.Write(ErrorFrame{Message: msg}) }
func (s *Writer) Done() error               { return s.Write(DoneFrame{}) }
