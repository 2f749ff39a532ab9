package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"founder-llm-backend/internal/sse"
)

// OpenAIProvider talks to any OpenAI-compatible /chat/completions endpoint.
type OpenAIProvider struct {
	apiKey     string
	baseURL    string
	opts       Options
	httpClient *http.Client
}

// NewOpenAIProvider builds a provider. The HTTP client has no overall timeout
// because streams are bounded by the caller's context.
func NewOpenAIProvider(apiKey, baseURL string, opts Options) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		opts:       opts,
		httpClient: &http.Client{},
	}
}

func (o *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

func openAIMessages(p Prompt) []chatMessage {
	msgs := make([]chatMessage, 0, len(p.History)+2)
	if p.System != "" {
		msgs = append(msgs, chatMessage{Role: string(RoleSystem), Content: p.System})
	}
	for _, t := range p.History {
		msgs = append(msgs, chatMessage{Role: string(t.Role), Content: t.Content})
	}
	msgs = append(msgs, chatMessage{Role: string(RoleUser), Content: p.User})
	return msgs
}

func (o *OpenAIProvider) Stream(ctx context.Context, p Prompt) (Stream, error) {
	body := chatRequest{
		Model:       o.opts.Model,
		Messages:    openAIMessages(p),
		Stream:      true,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var env struct {
			Error *apiError `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil && env.Error != nil && env.Error.Message != "" {
			return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, env.Error.Message)
		}
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	return &openAIStream{body: resp.Body, reader: sse.NewReader(resp.Body)}, nil
}

type openAIStream struct {
	body   io.ReadCloser
	reader *sse.Reader
	done   bool
}

func (s *openAIStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	for {
		ev, err := s.reader.Next()
		if errors.Is(err, io.EOF) {
			// Upstream closed without [DONE].
			s.done = true
			return "", io.ErrUnexpectedEOF
		}
		if err != nil {
			return "", err
		}

		data := strings.TrimSpace(ev.Data)
		if data == sse.DoneSentinel {
			s.done = true
			return "", io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return "", fmt.Errorf("provider stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *openAIStream) Close() error {
	return s.body.Close()
}
