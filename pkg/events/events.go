// Package events announces terminal project transitions to other systems.
package events

import (
	"context"
	"time"

	"trendscribe/pkg/domain"
)

const (
	TypeProjectCompleted = "project.completed"
	TypeProjectFailed    = "project.failed"
)

// Event describes one terminal project transition.
type Event struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	ProjectID     string               `json:"projectId"`
	UserID        string               `json:"userId"`
	ProjectType   domain.ProjectType   `json:"projectType"`
	Status        domain.ProjectStatus `json:"status"`
	KeywordSource domain.KeywordSource `json:"keywordSource,omitempty"`
	UsedFallback  bool                 `json:"usedFallback"`
	OccurredAt    time.Time            `json:"occurredAt"`
}

// FromProject builds the event for a project in a terminal state.
func FromProject(p domain.Project, at time.Time) Event {
	eventType := TypeProjectCompleted
	if p.Status == domain.StatusFailed {
		eventType = TypeProjectFailed
	}
	return Event{
		Type:          eventType,
		ProjectID:     p.ID,
		UserID:        p.UserID,
		ProjectType:   p.Type,
		Status:        p.Status,
		KeywordSource: p.KeywordSource,
		UsedFallback:  p.UsedFallbackContent,
		OccurredAt:    at.UTC(),
	}
}

// Publisher delivers events. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
