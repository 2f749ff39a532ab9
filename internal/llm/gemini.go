package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type GeminiProvider struct {
	client   *genai.Client
	opts     Options
	rateChan chan struct{} // Token bucket
}

func NewGeminiProvider(ctx context.Context, apiKey string, concurrentReqs int, opts Options) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiProvider{
		client:   client,
		opts:     opts,
		rateChan: rateChan,
	}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) Close() error {
	return g.client.Close()
}

// acquireRate blocks until a rate slot is available
func (g *GeminiProvider) acquireRate(ctx context.Context) error {
	select {
	case <-g.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (g *GeminiProvider) releaseRate() {
	g.rateChan <- struct{}{}
}

func (g *GeminiProvider) Stream(ctx context.Context, p Prompt) (Stream, error) {
	if err := g.acquireRate(ctx); err != nil {
		return nil, err
	}

	// GenerativeModel carries per-call settings, so build one per request.
	model := g.client.GenerativeModel(g.opts.Model)
	model.SetTemperature(g.opts.Temperature)
	if g.opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(g.opts.MaxTokens))
	}

	system, history := geminiHistory(p)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	return &geminiStream{
		iter:    cs.SendMessageStream(ctx, genai.Text(p.User)),
		release: g.releaseRate,
	}, nil
}

// geminiHistory folds system turns into the system instruction and maps
// assistant turns onto Gemini's "model" role.
func geminiHistory(p Prompt) (string, []*genai.Content) {
	system := []string{}
	if p.System != "" {
		system = append(system, p.System)
	}

	history := make([]*genai.Content, 0, len(p.History))
	for _, t := range p.History {
		switch t.Role {
		case RoleSystem:
			system = append(system, t.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(t.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(t.Content)}})
		}
	}
	return strings.Join(system, "\n\n"), history
}

type geminiStream struct {
	iter    *genai.GenerateContentResponseIterator
	release func()
	closed  bool
}

func (s *geminiStream) Next() (string, error) {
	for {
		resp, err := s.iter.Next()
		if errors.Is(err, iterator.Done) {
			return "", io.EOF
		}
		if err != nil {
			return "", err
		}
		if text := extractText(resp); text != "" {
			return text, nil
		}
	}
}

func (s *geminiStream) Close() error {
	if !s.closed {
		s.closed = true
		s.release()
	}
	return nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}
