package store

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"trendscribe/pkg/domain"
)

// GORM models used for persistence.
type ProjectModel struct {
	ID       string `gorm:"primaryKey"`
	UserID   string `gorm:"not null;index:idx_projects_user_updated,priority:1"`
	Title    string `gorm:"not null"`
	Type     string `gorm:"column:project_type;not null"`
	Location string
	Language string `gorm:"not null"`
	Tone     string `gorm:"not null"`
	Category string

	ContentIntent    string `gorm:"type:text"`
	DesiredLength    string
	OriginalContent  string `gorm:"type:text"`
	ModificationType string
	BaseContent      string `gorm:"type:text"`
	VisualStyle      string

	TrendingKeywords    datatypes.JSON `gorm:"type:jsonb"`
	KeywordSource       string
	GeneratedContent    *string `gorm:"type:text"`
	UsedFallbackContent bool    `gorm:"not null;default:false"`
	Status              string  `gorm:"not null;index:idx_projects_status_updated,priority:1"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null;index:idx_projects_user_updated,priority:2;index:idx_projects_status_updated,priority:2"`
}

func (ProjectModel) TableName() string { return "projects" }

type UserStatsModel struct {
	UserID               string `gorm:"primaryKey"`
	TotalProjects        int64  `gorm:"not null;default:0"`
	ContentDrafts        int64  `gorm:"not null;default:0"`
	ContentModifications int64  `gorm:"not null;default:0"`
	ImagePrompts         int64  `gorm:"not null;default:0"`
	LastActiveAt         time.Time
}

func (UserStatsModel) TableName() string { return "user_stats" }

type ConversationModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index:idx_conversations_user_updated,priority:1"`
	Title     string    `gorm:"not null"`
	Model     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null;index:idx_conversations_user_updated,priority:2"`
}

func (ConversationModel) TableName() string { return "conversations" }

// ChatMessageModel rows are ordered within a conversation by ID.
type ChatMessageModel struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	ConversationID string    `gorm:"not null;index"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"type:text;not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

func projectToModel(p domain.Project) (ProjectModel, error) {
	keywords := p.TrendingKeywords
	if keywords == nil {
		keywords = []domain.Keyword{}
	}
	raw, err := json.Marshal(keywords)
	if err != nil {
		return ProjectModel{}, err
	}
	return ProjectModel{
		ID:                  p.ID,
		UserID:              p.UserID,
		Title:               p.Title,
		Type:                string(p.Type),
		Location:            p.Location,
		Language:            p.Language,
		Tone:                p.Tone,
		Category:            p.Category,
		ContentIntent:       p.ContentIntent,
		DesiredLength:       p.DesiredLength,
		OriginalContent:     p.OriginalContent,
		ModificationType:    string(p.ModificationType),
		BaseContent:         p.BaseContent,
		VisualStyle:         p.VisualStyle,
		TrendingKeywords:    datatypes.JSON(raw),
		KeywordSource:       string(p.KeywordSource),
		GeneratedContent:    p.GeneratedContent,
		UsedFallbackContent: p.UsedFallbackContent,
		Status:              string(p.Status),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}, nil
}

func projectFromModel(m ProjectModel) (domain.Project, error) {
	var keywords []domain.Keyword
	if len(m.TrendingKeywords) > 0 {
		if err := json.Unmarshal(m.TrendingKeywords, &keywords); err != nil {
			return domain.Project{}, err
		}
	}
	return domain.Project{
		ID:                  m.ID,
		UserID:              m.UserID,
		Title:               m.Title,
		Type:                domain.ProjectType(m.Type),
		Location:            m.Location,
		Language:            m.Language,
		Tone:                m.Tone,
		Category:            m.Category,
		ContentIntent:       m.ContentIntent,
		DesiredLength:       m.DesiredLength,
		OriginalContent:     m.OriginalContent,
		ModificationType:    domain.ModificationType(m.ModificationType),
		BaseContent:         m.BaseContent,
		VisualStyle:         m.VisualStyle,
		TrendingKeywords:    keywords,
		KeywordSource:       domain.KeywordSource(m.KeywordSource),
		GeneratedContent:    m.GeneratedContent,
		UsedFallbackContent: m.UsedFallbackContent,
		Status:              domain.ProjectStatus(m.Status),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}, nil
}

func summaryFromModel(m ProjectModel) domain.ProjectSummary {
	return domain.ProjectSummary{
		ID:        m.ID,
		Title:     m.Title,
		Type:      domain.ProjectType(m.Type),
		Status:    domain.ProjectStatus(m.Status),
		Location:  m.Location,
		Category:  m.Category,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// statsColumn names the per-type counter column.
func statsColumn(t domain.ProjectType) string {
	switch t {
	case domain.ProjectDraft:
		return "content_drafts"
	case domain.ProjectModify:
		return "content_modifications"
	case domain.ProjectImagePrompt:
		return "image_prompts"
	}
	return ""
}

func messageModels(conversationID string, msgs []domain.ChatMessage) []ChatMessageModel {
	out := make([]ChatMessageModel, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ChatMessageModel{
			ConversationID: conversationID,
			Role:           string(m.Role),
			Content:        m.Content,
			CreatedAt:      m.CreatedAt.UTC(),
		})
	}
	return out
}

func conversationFromModels(c ConversationModel, msgs []ChatMessageModel) domain.Conversation {
	out := domain.Conversation{
		ID:        c.ID,
		UserID:    c.UserID,
		Title:     c.Title,
		Model:     c.Model,
		Messages:  make([]domain.ChatMessage, 0, len(msgs)),
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, domain.ChatMessage{
			Role:      domain.ChatRole(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}
