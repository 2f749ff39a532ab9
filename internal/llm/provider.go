// Package llm adapts generative-text providers to a single streaming contract.
package llm

import (
	"context"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Turn struct {
	Role    Role
	Content string
}

// Prompt is the fully assembled request. History is oldest first and does not
// include User.
type Prompt struct {
	System  string
	History []Turn
	User    string
}

// Stream yields text fragments in order. Next returns io.EOF after the last
// fragment. A Stream cannot be restarted; retrying means calling
// Provider.Stream again with the same Prompt.
type Stream interface {
	Next() (string, error)
	Close() error
}

type Provider interface {
	Name() string
	Stream(ctx context.Context, p Prompt) (Stream, error)
}

type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
}
