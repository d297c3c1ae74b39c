package store

import (
	"context"
	"errors"
	"time"

	"trendscribe/pkg/domain"
)

// ErrNotFound is returned when a project or conversation does not exist.
var ErrNotFound = errors.New("store: not found")

// ConversationStore persists chat transcripts.
type ConversationStore interface {
	CreateConversation(ctx context.Context, c domain.Conversation) error
	// AppendMessages adds msgs to the end of the transcript and sets UpdatedAt to at.
	AppendMessages(ctx context.Context, id string, msgs []domain.ChatMessage, at time.Time) error
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string, limit int) ([]domain.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Store persists projects, per-user usage counters and conversations.
type Store interface {
	// projects
	CreateProject(ctx context.Context, p domain.Project) error
	UpdateProject(ctx context.Context, p domain.Project) error
	GetProject(ctx context.Context, id string) (domain.Project, error)
	ListProjectsByUser(ctx context.Context, userID string, limit int) ([]domain.ProjectSummary, error)
	DeleteProject(ctx context.Context, id string) error
	CountProjectsByStatusBefore(ctx context.Context, status domain.ProjectStatus, before time.Time) (int64, error)

	// stats
	IncrementUserStats(ctx context.Context, userID string, projectType domain.ProjectType, at time.Time) error
	GetUserStats(ctx context.Context, userID string) (domain.UserStats, error)

	ConversationStore

	Ping(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(limit int) int {
	if limit <= 0 || limit > defaultListLimit {
		return defaultListLimit
	}
	return limit
}
