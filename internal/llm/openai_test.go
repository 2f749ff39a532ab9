package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func collect(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	defer s.Close()

	var out []string
	for {
		frag, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestOpenAIProvider_StreamsFragments(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Either party \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"may terminate.\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/", Options{Model: "gpt-5", Temperature: 0.7, MaxTokens: 4096})
	stream, err := p.Stream(context.Background(), Prompt{
		System:  "system text",
		History: []Turn{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}},
		User:    "What is the termination clause?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	frags, err := collect(t, stream)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if strings.Join(frags, "") != "Either party may terminate." {
		t.Fatalf("unexpected fragments: %q", frags)
	}

	if !got.Stream || got.Model != "gpt-5" || got.MaxTokens != 4096 {
		t.Errorf("unexpected request: %+v", got)
	}
	roles := []string{}
	for _, m := range got.Messages {
		roles = append(roles, m.Role)
	}
	if strings.Join(roles, ",") != "system,user,assistant,user" {
		t.Errorf("unexpected message roles: %v", roles)
	}
	if got.Messages[3].Content != "What is the termination clause?" {
		t.Errorf("expected new message last, got %q", got.Messages[3].Content)
	}
}

func TestOpenAIProvider_SendsZeroTemperature(t *testing.T) {
	var raw map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, Options{Model: "gpt-5", Temperature: 0})
	stream, err := p.Stream(context.Background(), Prompt{User: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := collect(t, stream); err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}

	temp, ok := raw["temperature"]
	if !ok {
		t.Fatal("a configured temperature of 0 must be sent, not left to the provider default")
	}
	if string(temp) != "0" {
		t.Errorf("expected temperature 0, got %s", temp)
	}
}

func TestOpenAIProvider_OpenErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL, Options{Model: "gpt-5"})
	_, err := p.Stream(context.Background(), Prompt{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("expected upstream message in error, got %v", err)
	}
}

func TestOpenAIProvider_MidStreamFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"error object", "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\ndata: {\"error\":{\"message\":\"server_error\"}}\n\n"},
		{"closed without done", "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			p := NewOpenAIProvider("sk-test", srv.URL, Options{Model: "gpt-5"})
			stream, err := p.Stream(context.Background(), Prompt{User: "hi"})
			if err != nil {
				t.Fatalf("unexpected open error: %v", err)
			}

			frags, err := collect(t, stream)
			if err == nil {
				t.Fatal("expected mid-stream error")
			}
			if len(frags) != 1 || frags[0] != "partial" {
				t.Errorf("expected one partial fragment, got %q", frags)
			}
		})
	}
}

func TestGeminiHistory_MapsRoles(t *testing.T) {
	system, history := geminiHistory(Prompt{
		System: "base",
		History: []Turn{
			{Role: RoleSystem, Content: "extra"},
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, Content: "a"},
		},
		User: "next",
	})

	if system != "base\n\nextra" {
		t.Errorf("unexpected system instruction %q", system)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "model" {
		t.Errorf("unexpected roles %q, %q", history[0].Role, history[1].Role)
	}
}
