package pipeline

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"trendscribe/pkg/domain"
	"trendscribe/pkg/prompt"
)

const (
	maxTitleLength       = 100
	defaultDesiredLength = "300-400 words"
	defaultVisualStyle   = "minimalistic, high-contrast background"
)

var tones = []string{"persuasive", "professional", "friendly", "casual", "formal", "enthusiastic", "informative"}

type field struct {
	name  string
	value string
}

// Request carries the inputs of one pipeline run.
type Request struct {
	Type     domain.ProjectType `json:"projectType"`
	Title    string             `json:"title"`
	Location string             `json:"location"`
	Language string             `json:"language"`
	Tone     string             `json:"tone"`
	Category string             `json:"category"`

	ContentIntent    string                  `json:"contentIntent"`
	DesiredLength    string                  `json:"desiredLength"`
	OriginalContent  string                  `json:"originalContent"`
	ModificationType domain.ModificationType `json:"modificationType"`
	BaseContent      string                  `json:"baseContent"`
	VisualStyle      string                  `json:"visualStyle"`

	// WindowHours overrides the trend look-back window.
	WindowHours int `json:"windowHours,omitempty"`
}

// Validate trims req, applies defaults and checks required fields for its
// type. It returns the normalized request.
func Validate(req Request) (Request, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Location = strings.TrimSpace(req.Location)
	req.Language = strings.TrimSpace(req.Language)
	req.Tone = strings.ToLower(strings.TrimSpace(req.Tone))
	req.Category = strings.TrimSpace(req.Category)
	req.ContentIntent = strings.TrimSpace(req.ContentIntent)
	req.DesiredLength = strings.TrimSpace(req.DesiredLength)
	req.OriginalContent = strings.TrimSpace(req.OriginalContent)
	req.ModificationType = domain.ModificationType(strings.ToLower(strings.TrimSpace(string(req.ModificationType))))
	req.BaseContent = strings.TrimSpace(req.BaseContent)
	req.VisualStyle = strings.TrimSpace(req.VisualStyle)

	if !req.Type.Valid() {
		return req, &InvalidInputError{Field: "projectType", Reason: fmt.Sprintf("%q is not supported", req.Type)}
	}
	if req.WindowHours < 0 {
		return req, &InvalidInputError{Field: "windowHours", Reason: "must not be negative"}
	}

	required := []field{
		{"title", req.Title},
		{"language", req.Language},
		{"tone", req.Tone},
	}
	switch req.Type {
	case domain.ProjectDraft:
		if req.DesiredLength == "" {
			req.DesiredLength = defaultDesiredLength
		}
		required = append(required,
			field{"location", req.Location},
			field{"category", req.Category},
			field{"contentIntent", req.ContentIntent},
		)
	case domain.ProjectModify:
		required = append(required,
			field{"originalContent", req.OriginalContent},
			field{"modificationType", string(req.ModificationType)},
		)
	case domain.ProjectImagePrompt:
		if req.VisualStyle == "" {
			req.VisualStyle = defaultVisualStyle
		}
		required = append(required,
			field{"location", req.Location},
			field{"category", req.Category},
			field{"baseContent", req.BaseContent},
		)
	}
	for _, f := range required {
		if f.value == "" {
			return req, &InvalidInputError{Field: f.name}
		}
	}

	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		return req, &InvalidInputError{Field: "title", Reason: fmt.Sprintf("must be at most %d characters", maxTitleLength)}
	}
	if !slices.Contains(tones, req.Tone) {
		return req, &InvalidInputError{Field: "tone", Reason: fmt.Sprintf("%q is not supported", req.Tone)}
	}
	if req.Type == domain.ProjectModify {
		switch req.ModificationType {
		case domain.ModifyElaborate, domain.ModifySummarize, domain.ModifyRephrase:
		default:
			return req, &InvalidInputError{Field: "modificationType", Reason: fmt.Sprintf("%q is not supported", req.ModificationType)}
		}
	}
	return req, nil
}

// Tones lists the accepted tone values.
func Tones() []string {
	return slices.Clone(tones)
}

// PromptParams returns the prompt inputs carried by r.
func (r Request) PromptParams() prompt.Params {
	return prompt.Params{
		Location:         r.Location,
		Language:         r.Language,
		Tone:             r.Tone,
		Category:         r.Category,
		ContentIntent:    r.ContentIntent,
		DesiredLength:    r.DesiredLength,
		OriginalContent:  r.OriginalContent,
		ModificationType: r.ModificationType,
		BaseContent:      r.BaseContent,
		VisualStyle:      r.VisualStyle,
	}
}

func (r Request) newProject(id, userID string) domain.Project {
	return domain.Project{
		ID:               id,
		UserID:           userID,
		Title:            r.Title,
		Type:             r.Type,
		Location:         r.Location,
		Language:         r.Language,
		Tone:             r.Tone,
		Category:         r.Category,
		ContentIntent:    r.ContentIntent,
		DesiredLength:    r.DesiredLength,
		OriginalContent:  r.OriginalContent,
		ModificationType: r.ModificationType,
		BaseContent:      r.BaseContent,
		VisualStyle:      r.VisualStyle,
		TrendingKeywords: []domain.Keyword{},
		Status:           domain.StatusGenerating,
	}
}
