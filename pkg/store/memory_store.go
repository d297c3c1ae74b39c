package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"trendscribe/pkg/domain"
)

// MemoryStore keeps projects, stats and conversations in-process for tests
// and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	projects      map[string]domain.Project
	stats         map[string]domain.UserStats
	conversations map[string]domain.Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects:      make(map[string]domain.Project),
		stats:         make(map[string]domain.UserStats),
		conversations: make(map[string]domain.Conversation),
	}
}

func (m *MemoryStore) CreateProject(_ context.Context, p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = cloneProject(p)
	return nil
}

func (m *MemoryStore) UpdateProject(_ context.Context, p domain.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[p.ID]; !ok {
		return ErrNotFound
	}
	m.projects[p.ID] = cloneProject(p)
	return nil
}

func (m *MemoryStore) GetProject(_ context.Context, id string) (domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return domain.Project{}, ErrNotFound
	}
	return cloneProject(p), nil
}

// ListProjectsByUser returns summaries ordered by UpdatedAt, newest first.
func (m *MemoryStore) ListProjectsByUser(_ context.Context, userID string, limit int) ([]domain.ProjectSummary, error) {
	m.mu.RLock()
	items := make([]domain.Project, 0)
	for _, p := range m.projects {
		if p.UserID == userID {
			items = append(items, p)
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	limit = listLimit(limit)
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]domain.ProjectSummary, 0, len(items))
	for _, p := range items {
		out = append(out, p.Summary())
	}
	return out, nil
}

func (m *MemoryStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

func (m *MemoryStore) CountProjectsByStatusBefore(_ context.Context, status domain.ProjectStatus, before time.Time) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, p := range m.projects {
		if p.Status == status && p.UpdatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) IncrementUserStats(_ context.Context, userID string, projectType domain.ProjectType, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats[userID]
	s.UserID = userID
	s.TotalProjects++
	switch projectType {
	case domain.ProjectDraft:
		s.ContentDrafts++
	case domain.ProjectModify:
		s.ContentModifications++
	case domain.ProjectImagePrompt:
		s.ImagePrompts++
	}
	s.LastActiveAt = at.UTC()
	m.stats[userID] = s
	return nil
}

// GetUserStats returns zero counters for users without activity.
func (m *MemoryStore) GetUserStats(_ context.Context, userID string) (domain.UserStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[userID]
	if !ok {
		return domain.UserStats{UserID: userID}, nil
	}
	return s, nil
}

func (m *MemoryStore) CreateConversation(_ context.Context, c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, id string, msgs []domain.ChatMessage, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return ErrNotFound
	}
	c.Messages = append(append([]domain.ChatMessage(nil), c.Messages...), msgs...)
	c.UpdatedAt = at.UTC()
	m.conversations[id] = c
	return nil
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return domain.Conversation{}, ErrNotFound
	}
	return cloneConversation(c), nil
}

// ListConversationsByUser returns summaries ordered by UpdatedAt, newest first.
func (m *MemoryStore) ListConversationsByUser(_ context.Context, userID string, limit int) ([]domain.ConversationSummary, error) {
	m.mu.RLock()
	items := make([]domain.ConversationSummary, 0)
	for _, c := range m.conversations {
		if c.UserID == userID {
			items = append(items, c.Summary())
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	if limit = listLimit(limit); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return ErrNotFound
	}
	delete(m.conversations, id)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func cloneProject(p domain.Project) domain.Project {
	p.TrendingKeywords = append([]domain.Keyword(nil), p.TrendingKeywords...)
	if p.GeneratedContent != nil {
		content := *p.GeneratedContent
		p.GeneratedContent = &content
	}
	return p
}

func cloneConversation(c domain.Conversation) domain.Conversation {
	c.Messages = append([]domain.ChatMessage(nil), c.Messages...)
	return c
}
