package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"

	"founder-llm-backend/internal/llm"
	"founder-llm-backend/internal/logger"
	"founder-llm-backend/internal/models"
)

type ChatStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chat, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	ListRecent(ctx context.Context, chatID uuid.UUID, limit int) ([]*models.Message, error)
}

type FileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.File, error)
}

type ChunkStore interface {
	ListCompletedByFile(ctx context.Context, fileID uuid.UUID) ([]*models.FileChunk, error)
}

// FrameSink receives the relay's output. sse.Writer implements it.
type FrameSink interface {
	Content(text string) error
	Error(msg string) error
	Done() error
}

type RelayConfig struct {
	HistoryMaxTurns int
	ContextMaxChars int
	StreamTimeout   time.Duration
}

const persistTimeout = 10 * time.Second

// InterruptedMessage is what the client sees when the stream breaks. Provider
// details stay in the logs.
const InterruptedMessage = "The response was interrupted before it finished. Please try again."

type ChatRelay struct {
	chats    ChatStore
	messages MessageStore
	files    FileStore
	chunks   ChunkStore
	provider llm.Provider
	cfg      RelayConfig
	log      *logger.Logger
}

func NewChatRelay(
	chats ChatStore,
	messages MessageStore,
	files FileStore,
	chunks ChunkStore,
	provider llm.Provider,
	cfg RelayConfig,
	log *logger.Logger,
) *ChatRelay {
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = 90 * time.Second
	}
	return &ChatRelay{
		chats:    chats,
		messages: messages,
		files:    files,
		chunks:   chunks,
		provider: provider,
		cfg:      cfg,
		log:      log.With("service", "ChatRelay"),
	}
}

type SendMessageInput struct {
	ChatID  uuid.UUID
	UserID  uuid.UUID
	Message string
	FileIDs []string
}

// Reply is an opened generation whose first fragment has already been
// received from the provider.
type Reply struct {
	relay       *ChatRelay
	chatID      uuid.UUID
	UserMessage *models.Message

	reqCtx    context.Context
	streamCtx context.Context
	cancel    context.CancelFunc
	stream    llm.Stream

	pending    string
	pendingErr error
}

// Open validates the request, persists the user turn, assembles the prompt and
// opens the provider stream. Every error it returns happens before any frame
// is written. A stream timeout hit before the first fragment is reported as
// UpstreamInterruptedError, the same as one hit mid-stream.
func (r *ChatRelay) Open(ctx context.Context, in SendMessageInput) (*Reply, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, &ValidationError{Fields: map[string]string{"message": "Message is required"}}
	}

	chat, err := r.chats.GetByID(ctx, in.ChatID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && chat.UserID != in.UserID) {
		return nil, &NotFoundError{Message: "Chat not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}

	userMsg := &models.Message{ChatID: chat.ID, Role: models.RoleUser, Content: text}
	if err := r.messages.Create(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := r.loadHistory(ctx, chat.ID, userMsg.ID)
	if err != nil {
		return nil, err
	}

	excerpts := fitExcerpts(r.loadExcerpts(ctx, in.UserID, in.FileIDs), r.cfg.ContextMaxChars)
	prompt := BuildPrompt(history, excerpts, text)

	r.log.Info("opening model stream",
		"chat_id", chat.ID,
		"provider", r.provider.Name(),
		"history", len(history),
		"documents", len(excerpts),
	)

	streamCtx, cancel := context.WithTimeout(ctx, r.cfg.StreamTimeout)
	stream, err := r.provider.Stream(streamCtx, prompt)
	if err != nil {
		cancel()
		return nil, r.openFailure(ctx, streamCtx, err)
	}

	first, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		stream.Close()
		cancel()
		return nil, r.openFailure(ctx, streamCtx, err)
	}

	return &Reply{
		relay:       r,
		chatID:      chat.ID,
		UserMessage: userMsg,
		reqCtx:      ctx,
		streamCtx:   streamCtx,
		cancel:      cancel,
		stream:      stream,
		pending:     first,
		pendingErr:  err,
	}, nil
}

// openFailure classifies an error raised before the first fragment. A client
// disconnect returns the request's context error. An expired stream timeout
// counts as an interruption.
func (r *ChatRelay) openFailure(ctx, streamCtx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
		return &UpstreamInterruptedError{Err: fmt.Errorf("stream exceeded %s: %w", r.cfg.StreamTimeout, err)}
	}
	return &UpstreamUnavailableError{Err: err}
}

// loadHistory returns up to HistoryMaxTurns messages before the current turn,
// oldest first.
func (r *ChatRelay) loadHistory(ctx context.Context, chatID, currentID uuid.UUID) ([]*models.Message, error) {
	if r.cfg.HistoryMaxTurns <= 0 {
		return nil, nil
	}

	recent, err := r.messages.ListRecent(ctx, chatID, r.cfg.HistoryMaxTurns+1)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	history := make([]*models.Message, 0, len(recent))
	for _, m := range recent {
		if m.ID != currentID {
			history = append(history, m)
		}
	}
	return capHistory(history, r.cfg.HistoryMaxTurns), nil
}

// loadExcerpts resolves file ids in the order given. Ids that are malformed,
// repeated, missing, owned by someone else or not completed are skipped.
func (r *ChatRelay) loadExcerpts(ctx context.Context, userID uuid.UUID, rawIDs []string) []Excerpt {
	seen := make(map[uuid.UUID]bool, len(rawIDs))
	ids := make([]uuid.UUID, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	results := make([]*Excerpt, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = r.loadExcerpt(gctx, userID, id)
			return nil
		})
	}
	_ = g.Wait()

	excerpts := make([]Excerpt, 0, len(ids))
	for _, e := range results {
		if e != nil {
			excerpts = append(excerpts, *e)
		}
	}
	return excerpts
}

func (r *ChatRelay) loadExcerpt(ctx context.Context, userID, fileID uuid.UUID) *Excerpt {
	file, err := r.files.GetByID(ctx, fileID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.log.Warn("skipping file context", "file_id", fileID, "error", err)
		}
		return nil
	}
	if file.UserID != userID || file.Status != models.FileStatusCompleted {
		return nil
	}

	chunks, err := r.chunks.ListCompletedByFile(ctx, fileID)
	if err != nil {
		r.log.Warn("skipping file context", "file_id", fileID, "error", err)
		return nil
	}

	text := joinChunks(chunks)
	if text == "" {
		return nil
	}
	return &Excerpt{FileID: fileID, Filename: file.Filename, Text: text}
}

// Forward relays fragments to sink until the stream ends, then persists the
// assistant message. A nil error with a nil message means the provider
// produced no text.
func (rp *Reply) Forward(sink FrameSink) (*models.Message, error) {
	defer rp.cancel()
	defer rp.stream.Close()

	var buf strings.Builder
	frag, err := rp.pending, rp.pendingErr

	for err == nil {
		if frag != "" {
			buf.WriteString(frag)
			if werr := sink.Content(frag); werr != nil {
				return rp.finishCancelled(buf.String(), werr)
			}
		}
		frag, err = rp.stream.Next()
	}

	if !errors.Is(err, io.EOF) {
		if rp.reqCtx.Err() != nil {
			return rp.finishCancelled(buf.String(), rp.reqCtx.Err())
		}
		return rp.finishInterrupted(sink, buf.String(), err)
	}

	if derr := sink.Done(); derr != nil {
		rp.relay.log.Debug("client gone before [DONE]", "chat_id", rp.chatID, "error", derr)
	}

	if buf.Len() == 0 {
		rp.relay.log.Warn("model returned no content", "chat_id", rp.chatID)
		return nil, nil
	}

	msg, perr := rp.persist(buf.String(), models.MessageMetadata{})
	if perr != nil {
		return nil, perr
	}
	return msg, nil
}

func (rp *Reply) finishCancelled(partial string, cause error) (*models.Message, error) {
	rp.relay.log.Info("client disconnected mid-stream", "chat_id", rp.chatID, "chars", len(partial), "cause", cause)
	msg := rp.persistPartial(partial, models.FinishCancelled)
	return msg, context.Canceled
}

func (rp *Reply) finishInterrupted(sink FrameSink, partial string, cause error) (*models.Message, error) {
	if errors.Is(rp.streamCtx.Err(), context.DeadlineExceeded) {
		cause = fmt.Errorf("stream exceeded %s: %w", rp.relay.cfg.StreamTimeout, cause)
	}
	rp.relay.log.Error("model stream interrupted", "chat_id", rp.chatID, "chars", len(partial), "error", cause)

	_ = sink.Error(InterruptedMessage)
	_ = sink.Done()

	msg := rp.persistPartial(partial, models.FinishInterrupted)
	return msg, &UpstreamInterruptedError{Err: cause}
}

// persistPartial stores whatever was generated, tagged as partial. Failures
// are logged only.
func (rp *Reply) persistPartial(partial, reason string) *models.Message {
	if partial == "" {
		return nil
	}
	msg, err := rp.persist(partial, models.MessageMetadata{Partial: true, FinishReason: reason})
	if err != nil {
		rp.relay.log.Error("failed to persist partial reply", "chat_id", rp.chatID, "error", err)
		return nil
	}
	return msg
}

// persist writes the assistant turn on a context detached from the request so
// a disconnect cannot abort it.
func (rp *Reply) persist(content string, meta models.MessageMetadata) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(rp.reqCtx), persistTimeout)
	defer cancel()

	msg := &models.Message{
		ChatID:   rp.chatID,
		Role:     models.RoleAssistant,
		Content:  content,
		Metadata: meta,
	}
	if err := rp.relay.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}
	return msg, nil
}
