// Package pipeline runs one content generation request from validation to a
// persisted terminal project.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"trendscribe/internal/metrics"
	"trendscribe/internal/util"
	"trendscribe/pkg/ai"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/events"
	"trendscribe/pkg/prompt"
	"trendscribe/pkg/result"
	"trendscribe/pkg/storage"
	"trendscribe/pkg/store"
	"trendscribe/pkg/trends"
)

const (
	defaultGenerationTimeout = 30 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultExportExpiry      = 15 * time.Minute
	defaultModel             = "gemini-1.5-flash"
)

// Pipeline orchestrates keyword selection, prompt assembly, generation and
// persistence. It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	store     store.Store
	selector  *trends.Selector
	generator ai.TextGenerator
	objects   storage.ObjectStore
	publisher events.Publisher
	metrics   *metrics.Metrics

	model             string
	generationTimeout time.Duration
	exportExpiry      time.Duration
	now               func() time.Time
	newID             func() string
}

type Option func(*Pipeline)

func WithModel(model string) Option {
	return func(p *Pipeline) {
		if strings.TrimSpace(model) != "" {
			p.model = strings.TrimSpace(model)
		}
	}
}

func WithGenerationTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.generationTimeout = d
		}
	}
}

func WithObjectStore(objects storage.ObjectStore, expiry time.Duration) Option {
	return func(p *Pipeline) {
		p.objects = objects
		if expiry > 0 {
			p.exportExpiry = expiry
		}
	}
}

func WithPublisher(pub events.Publisher) Option {
	return func(p *Pipeline) {
		if pub != nil {
			p.publisher = pub
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator replaces the project id generator.
func WithIDGenerator(newID func() string) Option {
	return func(p *Pipeline) {
		if newID != nil {
			p.newID = newID
		}
	}
}

func New(st store.Store, selector *trends.Selector, generator ai.TextGenerator, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:             st,
		selector:          selector,
		generator:         generator,
		publisher:         events.NopPublisher{},
		model:             defaultModel,
		generationTimeout: defaultGenerationTimeout,
		exportExpiry:      defaultExportExpiry,
		now:               time.Now,
		newID:             util.NewID,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.selector == nil {
		p.selector = trends.NewSelector(nil)
	}
	return p
}

// Run validates req, persists a generating project and drives it to a
// terminal state. Generation and trend failures are masked by fallbacks;
// invalid input and storage failures are returned.
//
// The run ignores cancellation of ctx once started. A *StorageError from the
// final stats update is returned together with the completed project.
func (p *Pipeline) Run(ctx context.Context, userID string, req Request) (domain.Project, error) {
	start := p.now()
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Project{}, &InvalidInputError{Field: "user"}
	}
	req, err := Validate(req)
	if err != nil {
		p.metrics.ObserveRun(string(req.Type), "invalid", p.now().Sub(start))
		return domain.Project{}, err
	}

	ctx = context.WithoutCancel(ctx)
	project := req.newProject(p.newID(), userID)
	logger := util.LoggerFromContext(ctx).With("project_id", project.ID, "project_type", project.Type, "user_id", userID)

	project.CreatedAt = p.now().UTC()
	project.UpdatedAt = project.CreatedAt
	if err := p.store.CreateProject(ctx, project); err != nil {
		p.metrics.ObserveRun(string(req.Type), "storage_error", p.now().Sub(start))
		return domain.Project{}, &StorageError{Op: "create project", Err: err}
	}

	if req.Type != domain.ProjectModify {
		sel := p.selector.Select(ctx, trends.Query{
			Category:    req.Category,
			Location:    req.Location,
			Language:    req.Language,
			WindowHours: req.WindowHours,
		})
		p.metrics.ObserveKeywordSource(string(sel.Source))
		if sel.Err != nil {
			p.metrics.ObserveTrendError(string(trends.KindOf(sel.Err)))
		}
		project.TrendingKeywords = sel.Keywords
		project.KeywordSource = sel.Source
		project.UpdatedAt = p.now().UTC()
		if err := p.store.UpdateProject(ctx, project); err != nil {
			return p.fail(ctx, logger, project, start, &StorageError{Op: "attach keywords", Err: err})
		}
	}

	params := req.PromptParams()
	instruction, err := prompt.Build(req.Type, params, project.TrendingKeywords)
	if err != nil {
		return p.fail(ctx, logger, project, start, invalidFromPrompt(err))
	}

	content, err := p.generate(ctx, logger, &project, instruction, params).Unwrap()
	if err != nil {
		return p.fail(ctx, logger, project, start, invalidFromPrompt(err))
	}

	project.GeneratedContent = &content
	project.Status = domain.StatusCompleted
	project.UpdatedAt = p.now().UTC()
	if err := p.store.UpdateProject(ctx, project); err != nil {
		return p.fail(ctx, logger, project, start, &StorageError{Op: "complete project", Err: err})
	}

	var statsErr error
	if err := p.store.IncrementUserStats(ctx, userID, project.Type, project.UpdatedAt); err != nil {
		logger.Error("user stats update failed", "err", err)
		statsErr = &StorageError{Op: "increment user stats", Err: err}
	}

	p.publish(ctx, logger, project)
	outcome := "completed"
	if project.UsedFallbackContent {
		outcome = "completed_fallback"
	}
	p.metrics.ObserveRun(string(project.Type), outcome, p.now().Sub(start))
	logger.Info("project completed", "keyword_source", project.KeywordSource, "fallback_content", project.UsedFallbackContent)
	return project, statsErr
}

// generate calls the provider once and folds any failure into the template
// fallback.
func (p *Pipeline) generate(ctx context.Context, logger *slog.Logger, project *domain.Project, instruction string, params prompt.Params) result.Result[string] {
	var generated result.Result[string]
	if p.generator == nil {
		generated = result.Err[string](&ai.GenerationError{Provider: "none", Kind: ai.KindProvider, Err: errors.New("no generator configured")})
	} else {
		genCtx, cancel := context.WithTimeout(ctx, p.generationTimeout)
		generated = result.From(p.generator.GenerateText(genCtx, p.model, instruction))
		cancel()
	}

	return result.Fold(generated,
		func(text string) result.Result[string] {
			if strings.TrimSpace(text) == "" {
				return p.fallback(logger, project, params, &ai.GenerationError{Provider: "unknown", Kind: ai.KindEmpty, Err: errors.New("blank text")})
			}
			return result.Ok(strings.TrimSpace(text))
		},
		func(err error) result.Result[string] {
			return p.fallback(logger, project, params, err)
		},
	)
}

func (p *Pipeline) fallback(logger *slog.Logger, project *domain.Project, params prompt.Params, cause error) result.Result[string] {
	var provider, kind string
	var genErr *ai.GenerationError
	if errors.As(cause, &genErr) {
		provider, kind = genErr.Provider, string(genErr.Kind)
	}
	logger.Warn("generation failed, using template fallback", "provider", provider, "kind", kind, "err", cause)
	p.metrics.ObserveGenerationFallback(kind)
	project.UsedFallbackContent = true
	text, err := prompt.Fallback(project.Type, project.Title, params, project.TrendingKeywords)
	if err != nil {
		return result.Err[string](err)
	}
	if strings.TrimSpace(text) == "" {
		text = nonBlank(params.OriginalContent, project.Title)
	}
	return result.Ok(text)
}

// nonBlank returns the first candidate with visible content, trimmed.
func nonBlank(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// fail moves project to failed on a best-effort basis and returns cause.
func (p *Pipeline) fail(ctx context.Context, logger *slog.Logger, project domain.Project, start time.Time, cause error) (domain.Project, error) {
	project.Status = domain.StatusFailed
	project.UpdatedAt = p.now().UTC()
	if err := p.store.UpdateProject(ctx, project); err != nil {
		logger.Error("mark project failed", "err", err, "cause", cause)
	}
	p.publish(ctx, logger, project)

	outcome := "failed"
	var storageErr *StorageError
	if errors.As(cause, &storageErr) {
		outcome = "storage_error"
	}
	p.metrics.ObserveRun(string(project.Type), outcome, p.now().Sub(start))
	logger.Error("project failed", "err", cause)
	return project, cause
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, project domain.Project) {
	pubCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	ev := events.FromProject(project, p.now())
	ev.ID = p.newID()
	if err := p.publisher.Publish(pubCtx, ev); err != nil {
		logger.Warn("publish project event", "status", project.Status, "err", err)
	}
}

func invalidFromPrompt(err error) error {
	var pe *prompt.InvalidInputError
	if errors.As(err, &pe) {
		return &InvalidInputError{Field: pe.Field, Reason: pe.Reason, Err: err}
	}
	return &InvalidInputError{Field: "prompt", Reason: err.Error(), Err: err}
}
