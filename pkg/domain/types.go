package domain

import "time"

type ProjectType string

const (
	ProjectDraft       ProjectType = "draft"
	ProjectModify      ProjectType = "modify"
	ProjectImagePrompt ProjectType = "image-prompt"
)

// Valid reports whether t is one of the known project types.
func (t ProjectType) Valid() bool {
	switch t {
	case ProjectDraft, ProjectModify, ProjectImagePrompt:
		return true
	}
	return false
}

type ProjectStatus string

const (
	StatusDraft      ProjectStatus = "draft"
	StatusGenerating ProjectStatus = "generating"
	StatusCompleted  ProjectStatus = "completed"
	StatusFailed     ProjectStatus = "failed"
)

// Terminal reports whether no further pipeline transition may leave s.
func (s ProjectStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ModificationType string

const (
	ModifyElaborate ModificationType = "elaborate"
	ModifySummarize ModificationType = "summarize"
	ModifyRephrase  ModificationType = "rephrase"
)

// KeywordSource records which path of the keyword selector produced a project's keywords.
type KeywordSource string

const (
	KeywordsNone     KeywordSource = ""
	KeywordsLive     KeywordSource = "live"
	KeywordsReranked KeywordSource = "reranked"
	KeywordsFallback KeywordSource = "fallback"
)

// Keyword is a normalized, ranked trend term. The JSON names match the
// historical project documents.
type Keyword struct {
	Term   string  `json:"keyword" bson:"keyword"`
	Score  float64 `json:"interest" bson:"interest"`
	Region string  `json:"region" bson:"region"`
}

// RawTrendRecord is a provider record after the adapter has flattened the
// provider's response shape. Popularity is nil when the provider omitted it.
type RawTrendRecord struct {
	Query      string
	Popularity *float64
	Categories []string
	Position   int
}

type Project struct {
	ID       string      `json:"id" bson:"_id"`
	UserID   string      `json:"user" bson:"user"`
	Title    string      `json:"title" bson:"title"`
	Type     ProjectType `json:"projectType" bson:"projectType"`
	Location string      `json:"location,omitempty" bson:"location,omitempty"`
	Language string      `json:"language" bson:"language"`
	Tone     string      `json:"tone" bson:"tone"`
	Category string      `json:"category,omitempty" bson:"category,omitempty"`

	ContentIntent    string           `json:"contentIntent,omitempty" bson:"contentIntent,omitempty"`
	DesiredLength    string           `json:"desiredLength,omitempty" bson:"desiredLength,omitempty"`
	OriginalContent  string           `json:"originalContent,omitempty" bson:"originalContent,omitempty"`
	ModificationType ModificationType `json:"modificationType,omitempty" bson:"modificationType,omitempty"`
	BaseContent      string           `json:"baseContent,omitempty" bson:"baseContent,omitempty"`
	VisualStyle      string           `json:"visualStyle,omitempty" bson:"visualStyle,omitempty"`

	TrendingKeywords    []Keyword     `json:"trendingKeywords" bson:"trendingKeywords"`
	KeywordSource       KeywordSource `json:"keywordSource,omitempty" bson:"keywordSource,omitempty"`
	GeneratedContent    *string       `json:"generatedContent" bson:"generatedContent"`
	UsedFallbackContent bool          `json:"-" bson:"usedFallbackContent"`
	Status              ProjectStatus `json:"status" bson:"status"`
	CreatedAt           time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt           time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// Summary returns the list projection of p.
func (p Project) Summary() ProjectSummary {
	return ProjectSummary{
		ID:        p.ID,
		Title:     p.Title,
		Type:      p.Type,
		Status:    p.Status,
		Location:  p.Location,
		Category:  p.Category,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

type ProjectSummary struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Type      ProjectType   `json:"projectType"`
	Status    ProjectStatus `json:"status"`
	Location  string        `json:"location,omitempty"`
	Category  string        `json:"category,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// UserStats holds per-user usage counters. Counters only grow.
type UserStats struct {
	UserID               string    `json:"userId" bson:"-"`
	TotalProjects        int64     `json:"totalProjects" bson:"totalProjects"`
	ContentDrafts        int64     `json:"contentDrafts" bson:"contentDrafts"`
	ContentModifications int64     `json:"contentModifications" bson:"contentModifications"`
	ImagePrompts         int64     `json:"imagePrompts" bson:"imagePrompts"`
	LastActiveAt         time.Time `json:"lastActiveAt" bson:"lastActiveAt"`
}
