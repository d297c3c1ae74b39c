package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"trendscribe/internal/util"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/storage"
	"trendscribe/pkg/store"
)

// ExportResult points at an uploaded project export.
type ExportResult struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Format    string    `json:"format"`
	ExpiresAt time.Time `json:"expiresAt"`
}

var exportFormats = map[string]string{
	"md":   "text/markdown; charset=utf-8",
	"txt":  "text/plain; charset=utf-8",
	"json": "application/json",
}

// Get returns the project when it belongs to userID. Foreign projects are
// reported as ErrNotFound.
func (p *Pipeline) Get(ctx context.Context, userID, id string) (domain.Project, error) {
	project, err := p.store.GetProject(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Project{}, ErrNotFound
		}
		return domain.Project{}, &StorageError{Op: "get project", Err: err}
	}
	if project.UserID != userID {
		return domain.Project{}, ErrNotFound
	}
	return project, nil
}

// List returns the caller's projects, newest first.
func (p *Pipeline) List(ctx context.Context, userID string, limit int) ([]domain.ProjectSummary, error) {
	items, err := p.store.ListProjectsByUser(ctx, userID, limit)
	if err != nil {
		return nil, &StorageError{Op: "list projects", Err: err}
	}
	if items == nil {
		items = []domain.ProjectSummary{}
	}
	return items, nil
}

// Delete removes the caller's project and any uploaded exports.
func (p *Pipeline) Delete(ctx context.Context, userID, id string) error {
	project, err := p.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := p.store.DeleteProject(ctx, project.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return &StorageError{Op: "delete project", Err: err}
	}
	if p.objects != nil {
		logger := util.LoggerFromContext(ctx)
		for ext := range exportFormats {
			key := storage.ExportKey(userID, project.ID, ext)
			if err := p.objects.Delete(ctx, key); err != nil {
				logger.Warn("delete export", "key", key, "err", err)
			}
		}
	}
	return nil
}

// Stats returns the caller's usage counters. Users without any run get
// zero counters.
func (p *Pipeline) Stats(ctx context.Context, userID string) (domain.UserStats, error) {
	stats, err := p.store.GetUserStats(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.UserStats{UserID: userID}, nil
		}
		return domain.UserStats{}, &StorageError{Op: "get user stats", Err: err}
	}
	stats.UserID = userID
	return stats, nil
}

// Export renders the project's generated content in format, uploads it and
// returns a time-limited download URL.
func (p *Pipeline) Export(ctx context.Context, userID, id, format string) (ExportResult, error) {
	if p.objects == nil {
		return ExportResult{}, ErrExportDisabled
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "md"
	}
	contentType, ok := exportFormats[format]
	if !ok {
		return ExportResult{}, &InvalidInputError{Field: "format", Reason: "must be one of md, txt, json"}
	}
	project, err := p.Get(ctx, userID, id)
	if err != nil {
		return ExportResult{}, err
	}
	if project.Status != domain.StatusCompleted || project.GeneratedContent == nil {
		return ExportResult{}, ErrNotReady
	}

	body, err := renderExport(project, format)
	if err != nil {
		return ExportResult{}, err
	}
	key := storage.ExportKey(userID, project.ID, format)
	if err := p.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return ExportResult{}, &StorageError{Op: "upload export", Err: err}
	}
	url, err := p.objects.PresignGet(ctx, key, exportFilename(project, format), p.exportExpiry)
	if err != nil {
		return ExportResult{}, &StorageError{Op: "presign export", Err: err}
	}
	return ExportResult{
		Key:       key,
		URL:       url,
		Format:    format,
		ExpiresAt: p.now().Add(p.exportExpiry).UTC(),
	}, nil
}

func renderExport(project domain.Project, format string) ([]byte, error) {
	content := *project.GeneratedContent
	switch format {
	case "json":
		return json.MarshalIndent(project, "", "  ")
	case "txt":
		return []byte(content + "\n"), nil
	default:
		var b strings.Builder
		fmt.Fprintf(&b, "# %s\n\n", project.Title)
		if len(project.TrendingKeywords) > 0 {
			terms := make([]string, 0, len(project.TrendingKeywords))
			for _, kw := range project.TrendingKeywords {
				terms = append(terms, kw.Term)
			}
			fmt.Fprintf(&b, "_Trending: %s_\n\n", strings.Join(terms, ", "))
		}
		b.WriteString(content)
		b.WriteString("\n")
		return []byte(b.String()), nil
	}
}

func exportFilename(project domain.Project, format string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, project.Title)
	if name == "" {
		name = project.ID
	}
	return name + "." + format
}
