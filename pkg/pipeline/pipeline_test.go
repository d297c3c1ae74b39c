package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"trendscribe/pkg/ai"
	"trendscribe/pkg/domain"
	"trendscribe/pkg/events"
	"trendscribe/pkg/storage"
	"trendscribe/pkg/store"
	"trendscribe/pkg/trends"
)

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (f *fakeGenerator) GenerateText(context.Context, string, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type recordingPublisher struct {
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

// flakyStore fails selected operations of an in-memory store.
type flakyStore struct {
	*store.MemoryStore
	failCreate bool
	failStats  bool
	// failUpdateOn rejects updates that write this status.
	failUpdateOn domain.ProjectStatus
}

func (f *flakyStore) CreateProject(ctx context.Context, p domain.Project) error {
	if f.failCreate {
		return errors.New("connection refused")
	}
	return f.MemoryStore.CreateProject(ctx, p)
}

func (f *flakyStore) UpdateProject(ctx context.Context, p domain.Project) error {
	if f.failUpdateOn != "" && p.Status == f.failUpdateOn {
		return errors.New("disk full")
	}
	return f.MemoryStore.UpdateProject(ctx, p)
}

func (f *flakyStore) IncrementUserStats(ctx context.Context, userID string, t domain.ProjectType, at time.Time) error {
	if f.failStats {
		return errors.New("write conflict")
	}
	return f.MemoryStore.IncrementUserStats(ctx, userID, t, at)
}

func failingTrends() trends.Source {
	return trends.SourceFunc(func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
		return nil, &trends.ProviderError{Provider: "serpapi", Kind: trends.KindNetwork, Err: errors.New("dial tcp: timeout")}
	})
}

func draftRequest() Request {
	return Request{
		Type:          domain.ProjectDraft,
		Title:         "T",
		Location:      "Germany",
		Language:      "en",
		Tone:          "friendly",
		Category:      "fashion",
		ContentIntent: "Promote the autumn line.",
	}
}

func newTestPipeline(st store.Store, gen ai.TextGenerator, opts ...Option) *Pipeline {
	selector := trends.NewSelector(failingTrends())
	n := 0
	opts = append([]Option{WithIDGenerator(func() string {
		n++
		return "id-" + string(rune('0'+n))
	})}, opts...)
	return New(st, selector, gen, opts...)
}

func TestRunMasksTrendAndGenerationFailures(t *testing.T) {
	st := store.NewMemoryStore()
	gen := &fakeGenerator{err: &ai.GenerationError{Provider: "gemini", Kind: ai.KindNetwork, Err: errors.New("unreachable")}}
	pub := &recordingPublisher{}
	p := newTestPipeline(st, gen, WithPublisher(pub))

	project, err := p.Run(context.Background(), "u1", draftRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if project.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", project.Status)
	}
	if project.KeywordSource != domain.KeywordsFallback {
		t.Fatalf("expected fallback keywords, got %q", project.KeywordSource)
	}
	if !project.UsedFallbackContent {
		t.Fatalf("expected fallback content flag")
	}
	seeds := trends.SeedFor("fashion")
	if len(project.TrendingKeywords) != len(seeds) {
		t.Fatalf("expected %d keywords, got %d", len(seeds), len(project.TrendingKeywords))
	}
	for _, kw := range project.TrendingKeywords {
		found := false
		for _, s := range seeds {
			if s == kw.Term {
				found = true
			}
		}
		if !found {
			t.Fatalf("unexpected keyword %q", kw.Term)
		}
	}
	if project.GeneratedContent == nil {
		t.Fatalf("expected content")
	}
	content := *project.GeneratedContent
	if !strings.HasPrefix(content, "T\n") || !strings.Contains(content, "fashion") {
		t.Fatalf("unexpected fallback content: %q", content)
	}

	stored, err := st.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("get stored: %v", err)
	}
	if stored.Status != domain.StatusCompleted || stored.GeneratedContent == nil {
		t.Fatalf("stored project not completed: %+v", stored)
	}
	stats, _ := st.GetUserStats(context.Background(), "u1")
	if stats.TotalProjects != 1 || stats.ContentDrafts != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.TypeProjectCompleted || !pub.events[0].UsedFallback {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestRunUsesGeneratedText(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(st, &fakeGenerator{text: "  Fresh autumn looks.  "})

	project, err := p.Run(context.Background(), "u1", draftRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if project.UsedFallbackContent {
		t.Fatalf("did not expect fallback content")
	}
	if *project.GeneratedContent != "Fresh autumn looks." {
		t.Fatalf("unexpected content %q", *project.GeneratedContent)
	}
}

func TestRunBlankGenerationFallsBack(t *testing.T) {
	p := newTestPipeline(store.NewMemoryStore(), &fakeGenerator{text: "   "})
	project, err := p.Run(context.Background(), "u1", draftRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !project.UsedFallbackContent {
		t.Fatalf("expected fallback for blank generation")
	}
}

func TestRunRejectsMissingToneWithoutRecord(t *testing.T) {
	st := store.NewMemoryStore()
	gen := &fakeGenerator{text: "x"}
	p := newTestPipeline(st, gen)

	req := draftRequest()
	req.Tone = " "
	_, err := p.Run(context.Background(), "u1", req)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	var ie *InvalidInputError
	if !errors.As(err, &ie) || ie.Field != "tone" {
		t.Fatalf("expected tone field error, got %v", err)
	}
	items, _ := st.ListProjectsByUser(context.Background(), "u1", 0)
	if len(items) != 0 {
		t.Fatalf("expected no project records, got %d", len(items))
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not be called")
	}
}

func TestRunSurfacesCreateFailure(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), failCreate: true}
	_, err := newTestPipeline(st, &fakeGenerator{text: "x"}).Run(context.Background(), "u1", draftRequest())
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestRunReturnsProjectWhenStatsFail(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), failStats: true}
	project, err := newTestPipeline(st, &fakeGenerator{text: "ok"}).Run(context.Background(), "u1", draftRequest())
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if project.Status != domain.StatusCompleted {
		t.Fatalf("expected completed project alongside error, got %s", project.Status)
	}
	stored, _ := st.GetProject(context.Background(), project.ID)
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("stored project should stay completed, got %s", stored.Status)
	}
}

func TestRunMarksProjectFailedWhenUpdateFails(t *testing.T) {
	cases := []struct {
		name     string
		failOn   domain.ProjectStatus
		wantOp   string
		wantGens int
	}{
		{name: "attach keywords", failOn: domain.StatusGenerating, wantOp: "attach keywords", wantGens: 0},
		{name: "complete project", failOn: domain.StatusCompleted, wantOp: "complete project", wantGens: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := &flakyStore{MemoryStore: store.NewMemoryStore(), failUpdateOn: tc.failOn}
			gen := &fakeGenerator{text: "ok"}
			pub := &recordingPublisher{}
			project, err := newTestPipeline(st, gen, WithPublisher(pub)).Run(context.Background(), "u1", draftRequest())

			var se *StorageError
			if !errors.As(err, &se) || se.Op != tc.wantOp {
				t.Fatalf("expected storage error for %q, got %v", tc.wantOp, err)
			}
			if project.Status != domain.StatusFailed {
				t.Fatalf("expected returned project failed, got %s", project.Status)
			}
			stored, err := st.GetProject(context.Background(), project.ID)
			if err != nil {
				t.Fatalf("get stored: %v", err)
			}
			if stored.Status != domain.StatusFailed {
				t.Fatalf("expected stored project failed, got %s", stored.Status)
			}
			if gen.calls != tc.wantGens {
				t.Fatalf("expected %d generator calls, got %d", tc.wantGens, gen.calls)
			}
			stats, _ := st.GetUserStats(context.Background(), "u1")
			if stats.TotalProjects != 0 {
				t.Fatalf("failed run must not count toward stats: %+v", stats)
			}
			if len(pub.events) != 1 || pub.events[0].Type != events.TypeProjectFailed {
				t.Fatalf("expected one failed event, got %+v", pub.events)
			}
		})
	}
}

func TestRunRephraseFallbackKeepsPunctuationOnlyContent(t *testing.T) {
	st := store.NewMemoryStore()
	gen := &fakeGenerator{err: &ai.GenerationError{Provider: "gemini", Kind: ai.KindNetwork, Err: errors.New("unreachable")}}
	project, err := newTestPipeline(st, gen).Run(context.Background(), "u1", Request{
		Type:             domain.ProjectModify,
		Title:            "Dots",
		Language:         "en",
		Tone:             "casual",
		OriginalContent:  "...",
		ModificationType: domain.ModifyRephrase,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if project.Status != domain.StatusCompleted || !project.UsedFallbackContent {
		t.Fatalf("expected completed fallback project, got %+v", project)
	}
	if project.GeneratedContent == nil || strings.TrimSpace(*project.GeneratedContent) == "" {
		t.Fatalf("fallback content must not be blank")
	}
}

func TestNonBlank(t *testing.T) {
	if got := nonBlank("  ", "\t", " Title "); got != "Title" {
		t.Fatalf("nonBlank = %q", got)
	}
	if got := nonBlank(); got != "" {
		t.Fatalf("nonBlank with no candidates = %q", got)
	}
}

func TestRunModifySkipsTrends(t *testing.T) {
	calls := 0
	source := trends.SourceFunc(func(context.Context, string, string, int) ([]domain.RawTrendRecord, error) {
		calls++
		return nil, errors.New("unused")
	})
	st := store.NewMemoryStore()
	p := New(st, trends.NewSelector(source), &fakeGenerator{text: "Shorter."})

	project, err := p.Run(context.Background(), "u1", Request{
		Type:             domain.ProjectModify,
		Title:            "Shorten",
		Language:         "en",
		Tone:             "formal",
		OriginalContent:  "A long paragraph. With two sentences.",
		ModificationType: domain.ModifySummarize,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 0 {
		t.Fatalf("trend source must not be called for modify, got %d calls", calls)
	}
	if len(project.TrendingKeywords) != 0 || project.KeywordSource != domain.KeywordsNone {
		t.Fatalf("expected no keywords, got %+v", project.TrendingKeywords)
	}
	stats, _ := st.GetUserStats(context.Background(), "u1")
	if stats.ContentModifications != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestGetHidesForeignProjects(t *testing.T) {
	st := store.NewMemoryStore()
	p := newTestPipeline(st, &fakeGenerator{text: "ok"})
	project, err := p.Run(context.Background(), "owner", draftRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := p.Get(context.Background(), "intruder", project.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign project, got %v", err)
	}
	if err := p.Delete(context.Background(), "intruder", project.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on foreign delete, got %v", err)
	}
	if err := p.Delete(context.Background(), "owner", project.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := p.Get(context.Background(), "owner", project.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestExport(t *testing.T) {
	st := store.NewMemoryStore()
	objects := storage.NewMemoryStore("http://objects.local")
	p := newTestPipeline(st, &fakeGenerator{text: "Body text."}, WithObjectStore(objects, time.Minute))

	project, err := p.Run(context.Background(), "u1", draftRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	res, err := p.Export(context.Background(), "u1", project.ID, "md")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	obj, ok := objects.Object(res.Key)
	if !ok {
		t.Fatalf("expected object %s", res.Key)
	}
	if !strings.HasPrefix(string(obj.Data), "# T\n") || !strings.Contains(string(obj.Data), "Body text.") {
		t.Fatalf("unexpected export body: %q", obj.Data)
	}
	if !strings.HasPrefix(res.URL, "http://objects.local/") {
		t.Fatalf("unexpected url %s", res.URL)
	}

	if _, err := p.Export(context.Background(), "u1", project.ID, "pdf"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid format error, got %v", err)
	}
	if _, err := newTestPipeline(st, nil).Export(context.Background(), "u1", project.ID, "md"); !errors.Is(err, ErrExportDisabled) {
		t.Fatalf("expected export disabled, got %v", err)
	}
}
