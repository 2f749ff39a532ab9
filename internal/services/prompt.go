package services

import (
	"strings"

	"github.com/google/uuid"

	"founder-llm-backend/internal/llm"
	"founder-llm-backend/internal/models"
)

const systemInstruction = `You are a helpful, knowledgeable AI assistant for startup founders (legal and business). Answer with clear, polished Markdown that is easy to scan.

Default structure (adapt as needed):
- **Direct answer (1-2 sentences)**
- **Key points**: a short bullet list of the most important facts or options
- **Next steps**: concise, actionable guidance

Behavior:
- Be concise and friendly; ask for clarification if critical info is missing
- When legal nuance matters, call it out clearly and suggest safe actions
- Do not include unnecessary preambles`

const groundingDirective = `Grounding rules:
- Answer only from the document excerpts and the conversation provided here.
- If the information needed is not present in them, say explicitly that it is not in the provided documents or conversation.
- Never invent clauses, figures, dates, parties or citations.`

// Excerpt is the labelled text of one document, ready for the prompt.
type Excerpt struct {
	FileID   uuid.UUID
	Filename string
	Text     string
}

func (e Excerpt) block() string {
	return "[Document: " + e.Filename + "]\n" + e.Text + "\n"
}

const excerptSeparator = "\n"

// joinExcerpts renders the excerpt section exactly as it appears in the
// prompt. fitExcerpts budgets against this text.
func joinExcerpts(excerpts []Excerpt) string {
	blocks := make([]string, 0, len(excerpts))
	for _, e := range excerpts {
		blocks = append(blocks, e.block())
	}
	return strings.Join(blocks, excerptSeparator)
}

// BuildPrompt assembles system instruction, excerpt blocks, history and the
// new user message. History must already be capped.
func BuildPrompt(history []*models.Message, excerpts []Excerpt, userText string) llm.Prompt {
	var sys strings.Builder
	sys.WriteString(systemInstruction)
	sys.WriteString("\n\n")
	sys.WriteString(groundingDirective)

	if len(excerpts) > 0 {
		sys.WriteString("\n\nDocument Context:\n")
		sys.WriteString(joinExcerpts(excerpts))
	}

	turns := make([]llm.Turn, 0, len(history))
	for _, m := range history {
		turns = append(turns, llm.Turn{Role: llm.Role(m.Role), Content: m.Content})
	}

	return llm.Prompt{
		System:  sys.String(),
		History: turns,
		User:    userText,
	}
}

// capHistory keeps the newest max messages of an oldest-first slice.
func capHistory(msgs []*models.Message, max int) []*models.Message {
	if max <= 0 {
		return nil
	}
	if len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}

// fitExcerpts bounds the rendered excerpt text, separators included, to
// maxChars runes. The first block that does not fit is truncated; everything
// after it is dropped.
func fitExcerpts(excerpts []Excerpt, maxChars int) []Excerpt {
	if maxChars <= 0 {
		return excerpts
	}

	out := make([]Excerpt, 0, len(excerpts))
	remaining := maxChars
	for _, e := range excerpts {
		size := len([]rune(e.block()))
		if len(out) > 0 {
			size += len(excerptSeparator)
		}
		if size <= remaining {
			out = append(out, e)
			remaining -= size
			continue
		}

		overhead := size - len([]rune(e.Text))
		if room := remaining - overhead; room > 0 {
			e.Text = string([]rune(e.Text)[:room])
			out = append(out, e)
		}
		break
	}
	return out
}

func joinChunks(chunks []*models.FileChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Content); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}
