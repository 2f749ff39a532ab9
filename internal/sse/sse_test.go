package sse

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"content", ContentFrame{Content: "Hello"}, "data: {\"content\":\"Hello\"}\n\n"},
		{"content with newline", ContentFrame{Content: "a\nb"}, "data: {\"content\":\"a\\nb\"}\n\n"},
		{"error", ErrorFrame{Message: "upstream interrupted"}, "data: {\"error\":\"upstream interrupted\"}\n\n"},
		{"done", DoneFrame{}, "data: [DONE]\n\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Encode(tc.frame)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame(`{"content":"30 days"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c, ok := f.(ContentFrame); !ok || c.Content != "30 days" {
		t.Fatalf("unexpected frame: %#v", f)
	}

	f, err = DecodeFrame(`{"error":"boom"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e, ok := f.(ErrorFrame); !ok || e.Message != "boom" {
		t.Fatalf("unexpected frame: %#v", f)
	}

	f, err = DecodeFrame("[DONE]")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.(DoneFrame); !ok {
		t.Fatalf("expected DoneFrame, got %#v", f)
	}

	if _, err := DecodeFrame(`{"other":1}`); err != ErrUnknownFrame {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
	if _, err := DecodeFrame("not json"); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestWriter_HeadersAndFrames(t *testing.T) {
	rr := httptest.NewRecorder()

	w, err := NewWriter(rr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w.Content("Hel")
	w.Content("lo")
	w.Done()

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	headers := map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
	for k, v := range headers {
		if got := rr.Header().Get(k); got != v {
			t.Errorf("header %s: expected %q, got %q", k, v, got)
		}
	}
	if !rr.Flushed {
		t.Error("expected response to be flushed")
	}

	want := "data: {\"content\":\"Hel\"}\n\ndata: {\"content\":\"lo\"}\n\ndata: [DONE]\n\n"
	if rr.Body.String() != want {
		t.Errorf("unexpected body:\n%s", rr.Body.String())
	}
}

type plainWriter struct{ http.ResponseWriter }

func TestNewWriter_RequiresFlusher(t *testing.T) {
	if _, err := NewWriter(plainWriter{httptest.NewRecorder()}); err != ErrStreamingUnsupported {
		t.Fatalf("expected ErrStreamingUnsupported, got %v", err)
	}
}

func TestReader(t *testing.T) {
	stream := ": keep-alive\n" +
		"data: {\"content\":\"a\"}\n\n" +
		"event: delta\r\n" +
		"data: line1\n" +
		"data: line2\n\n" +
		"\n" +
		"data: [DONE]"

	r := NewReader(strings.NewReader(stream))

	ev, err := r.Next()
	if err != nil || ev.Data != `{"content":"a"}` || ev.Name != "" {
		t.Fatalf("unexpected first event %#v, err %v", ev, err)
	}

	ev, err = r.Next()
	if err != nil || ev.Data != "line1\nline2" || ev.Name != "delta" {
		t.Fatalf("unexpected second event %#v, err %v", ev, err)
	}

	ev, err = r.Next()
	if err != nil || ev.Data != DoneSentinel {
		t.Fatalf("unexpected third event %#v, err %v", ev, err)
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReader_RoundTripsWriterOutput(t *testing.T) {
	rr := httptest.NewRecorder()
	w, _ := NewWriter(rr)
	w.Content("Clause 4: ")
	w.Content("30 days notice")
	w.Error("stream error")
	w.Done()

	r := NewReader(rr.Body)
	var frames []Frame
	for {
		ev, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f, err := DecodeFrame(ev.Data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		frames = append(frames, f)
	}

	if len(frames) != 4 {
		t.Fatalf("expected 4 frames, got %d", len(frames))
	}
	if _, ok := frames[2].(ErrorFrame); !ok {
		t.Errorf("expected error frame at index 2, got %#v", frames[2])
	}
	if _, ok := frames[3].(DoneFrame); !ok {
		t.Errorf("expected done frame last, got %#v", frames[3])
	}
}
