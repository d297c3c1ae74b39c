// Package chat runs free-form assistant conversations on top of the text
// generator used for content projects.
package chat

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"trendscribe/internal/metrics"
	"trendscribe/internal/util"
	"trendscribe/pkg/ai"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/prompt"
	"trendscribe/pkg/store"
)

const (
	defaultModel      = "gemini-1.5-flash"
	defaultTimeout    = 30 * time.Second
	defaultHistoryLen = 10
	titleRunes        = 50
	maxMessageRunes   = 8000
)

// Request is one user turn. An empty ConversationID starts a conversation.
type Request struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversationId"`
	Model          string `json:"model"`
}

// Reply is the assistant side of a turn.
type Reply struct {
	Response       string    `json:"response"`
	ConversationID string    `json:"conversationId"`
	Model          string    `json:"model"`
	Timestamp      time.Time `json:"timestamp"`
}

type Service struct {
	store      store.ConversationStore
	generator  ai.TextGenerator
	metrics    *metrics.Metrics
	model      string
	models     []string
	timeout    time.Duration
	historyLen int
	now        func() time.Time
	newID      func() string
}

type Option func(*Service)

// WithModels sets the default model and any additional models a request may
// name.
func WithModels(model string, allowed ...string) Option {
	return func(s *Service) {
		if m := strings.TrimSpace(model); m != "" {
			s.model = m
		}
		s.models = append([]string{s.model}, allowed...)
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithHistory bounds how many earlier messages are replayed to the model.
func WithHistory(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.historyLen = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func New(st store.ConversationStore, generator ai.TextGenerator, opts ...Option) *Service {
	s := &Service{
		store:      st,
		generator:  generator,
		model:      defaultModel,
		timeout:    defaultTimeout,
		historyLen: defaultHistoryLen,
		now:        time.Now,
		newID:      util.NewID,
	}
	s.models = []string{s.model}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send generates a reply to req.Message and records both messages. A turn
// is persisted only after the reply succeeds.
func (s *Service) Send(ctx context.Context, userID string, req Request) (Reply, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Reply{}, &InvalidInputError{Field: "user"}
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Reply{}, &InvalidInputError{Field: "message"}
	}
	if utf8.RuneCountInString(message) > maxMessageRunes {
		return Reply{}, &InvalidInputError{Field: "message", Reason: "is too long"}
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.model
	}
	if !slices.Contains(s.models, model) {
		return Reply{}, &InvalidInputError{Field: "model", Reason: "is not supported"}
	}

	var (
		conv     domain.Conversation
		existing bool
	)
	if id := strings.TrimSpace(req.ConversationID); id != "" {
		c, err := s.Get(ctx, userID, id)
		if err != nil {
			return Reply{}, err
		}
		conv, existing = c, true
	}

	logger := util.LoggerFromContext(ctx).With("user_id", userID, "conversation_id", conv.ID)
	asked := s.now().UTC()
	text, err := s.generate(ctx, model, prompt.Chat(s.recent(conv.Messages), message))
	if err != nil {
		logger.Warn("chat generation failed", "model", model, "err", err)
		s.metrics.ObserveChatTurn("generation_error")
		return Reply{}, &GenerationError{Err: err}
	}
	answered := s.now().UTC()
	turn := []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: message, CreatedAt: asked},
		{Role: domain.ChatRoleAssistant, Content: text, CreatedAt: answered},
	}

	ctx = context.WithoutCancel(ctx)
	if existing {
		if err := s.store.AppendMessages(ctx, conv.ID, turn, answered); err != nil {
			s.metrics.ObserveChatTurn("storage_error")
			return Reply{}, storageErr("append messages", err)
		}
	} else {
		conv = domain.Conversation{
			ID:        s.newID(),
			UserID:    userID,
			Title:     titleFor(message),
			Model:     model,
			Messages:  turn,
			CreatedAt: asked,
			UpdatedAt: answered,
		}
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			s.metrics.ObserveChatTurn("storage_error")
			return Reply{}, &StorageError{Op: "create conversation", Err: err}
		}
	}
	s.metrics.ObserveChatTurn("completed")
	return Reply{Response: text, ConversationID: conv.ID, Model: model, Timestamp: answered}, nil
}

// Get returns the conversation if userID owns it.
func (s *Service) Get(ctx context.Context, userID, id string) (domain.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, storageErr("get conversation", err)
	}
	if conv.UserID != userID {
		return domain.Conversation{}, ErrNotFound
	}
	return conv, nil
}

// List returns the caller's conversations, most recently active first.
func (s *Service) List(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	items, err := s.store.ListConversationsByUser(ctx, userID, limit)
	if err != nil {
		return nil, &StorageError{Op: "list conversations", Err: err}
	}
	if items == nil {
		items = []domain.ConversationSummary{}
	}
	return items, nil
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteConversation(ctx, id); err != nil {
		return storageErr("delete conversation", err)
	}
	return nil
}

func (s *Service) generate(ctx context.Context, model, instruction string) (string, error) {
	if s.generator == nil {
		return "", &ai.GenerationError{Provider: "none", Kind: ai.KindProvider, Err: errors.New("no generator configured")}
	}
	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.generator.GenerateText(genCtx, model, instruction)
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text == "" {
		return "", &ai.GenerationError{Provider: "chat", Kind: ai.KindEmpty, Err: errors.New("blank reply")}
	}
	return text, nil
}

func (s *Service) recent(msgs []domain.ChatMessage) []domain.ChatMessage {
	if len(msgs) > s.historyLen {
		return msgs[len(msgs)-s.historyLen:]
	}
	return msgs
}

func storageErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return &StorageError{Op: op, Err: err}
}

// titleFor keeps the first runes of the opening message.
func titleFor(message string) string {
	if utf8.RuneCountInString(message) <= titleRunes {
		return message
	}
	runes := []rune(message)
	return strings.TrimSpace(string(runes[:titleRunes])) + "..."
}
