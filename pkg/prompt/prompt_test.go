package prompt

import (
	"errors"
	"strings"
	"testing"

	"trendscribe/pkg/domain"
)

func draftParams() Params {
	return Params{
		Location:      "Germany",
		Language:      "English",
		Tone:          "persuasive",
		Category:      "fashion",
		ContentIntent: "promote jeans",
		DesiredLength: "300-400 words",
	}
}

func sampleKeywords() []domain.Keyword {
	return []domain.Keyword{
		{Term: "wide leg jeans", Score: 90, Region: "Germany"},
		{Term: "denim jacket", Score: 70, Region: "Germany"},
	}
}

func TestBuildDraftEmbedsInputsAndTerms(t *testing.T) {
	out, err := Build(domain.ProjectDraft, draftParams(), sampleKeywords())
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	for _, want := range []string{"Germany", "English", "persuasive", "fashion", "promote jeans", "300-400 words", "wide leg jeans, denim jacket"} {
		if !strings.Contains(out, want) {
			t.Fatalf("draft prompt missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "90") {
		t.Fatalf("draft prompt must not carry keyword scores:\n%s", out)
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a, err := Build(domain.ProjectDraft, draftParams(), sampleKeywords())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := Build(domain.ProjectDraft, draftParams(), sampleKeywords())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a != b {
		t.Fatalf("expected byte-identical output")
	}
}

func TestBuildSummarizeKeepsContentAndTone(t *testing.T) {
	content := "Our training program is changing. Workshops move online."
	out, err := Build(domain.ProjectModify, Params{
		Language:         "English",
		Tone:             "professional",
		OriginalContent:  content,
		ModificationType: domain.ModifySummarize,
	}, nil)
	if err != nil {
		t.Fatalf("build summarize: %v", err)
	}
	if !strings.Contains(out, content) {
		t.Fatalf("summarize prompt must contain the original content:\n%s", out)
	}
	if !strings.Contains(out, "Preserve the original tone") {
		t.Fatalf("summarize prompt must ask to preserve tone:\n%s", out)
	}
}

func TestBuildModifyTemplatesDiffer(t *testing.T) {
	seen := map[string]domain.ModificationType{}
	for _, mt := range []domain.ModificationType{domain.ModifyElaborate, domain.ModifySummarize, domain.ModifyRephrase} {
		out, err := Build(domain.ProjectModify, Params{
			Language: "English", Tone: "friendly", OriginalContent: "Hello there.", ModificationType: mt,
		}, nil)
		if err != nil {
			t.Fatalf("build %s: %v", mt, err)
		}
		if prev, ok := seen[out]; ok {
			t.Fatalf("%s and %s rendered the same prompt", prev, mt)
		}
		seen[out] = mt
	}
}

func TestBuildMissingFieldsFail(t *testing.T) {
	cases := []struct {
		name     string
		taskType domain.ProjectType
		params   Params
		field    string
	}{
		{"summarize without content", domain.ProjectModify, Params{Language: "English", Tone: "formal", ModificationType: domain.ModifySummarize}, "originalContent"},
		{"draft without tone", domain.ProjectDraft, func() Params { p := draftParams(); p.Tone = " "; return p }(), "tone"},
		{"image without base content", domain.ProjectImagePrompt, Params{VisualStyle: "flat", Tone: "casual", Category: "toys", Location: "Japan", Language: "English"}, "baseContent"},
		{"unknown modification", domain.ProjectModify, Params{Language: "English", Tone: "formal", OriginalContent: "x", ModificationType: "translate"}, "modificationType"},
		{"unknown task", domain.ProjectType("poem"), draftParams(), "projectType"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(tc.taskType, tc.params, nil)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			var inv *InvalidInputError
			if !errors.As(err, &inv) || inv.Field != tc.field {
				t.Fatalf("expected field %q, got %v", tc.field, err)
			}
		})
	}
}

func TestBuildImagePromptForbidsNegativePhrasing(t *testing.T) {
	out, err := Build(domain.ProjectImagePrompt, Params{
		BaseContent: "a pair of running shoes",
		VisualStyle: "minimalistic, high-contrast background",
		Tone:        "enthusiastic",
		Category:    "sports",
		Location:    "Spain",
		Language:    "Spanish",
	}, sampleKeywords())
	if err != nil {
		t.Fatalf("build image prompt: %v", err)
	}
	for _, want := range []string{"a pair of running shoes", "minimalistic, high-contrast background", "single paragraph", "negative phrasing", "input labels"} {
		if !strings.Contains(out, want) {
			t.Fatalf("image prompt missing %q:\n%s", want, out)
		}
	}
}

func TestFallbackDraftContainsTitleAndCategory(t *testing.T) {
	out, err := Fallback(domain.ProjectDraft, "T", draftParams(), sampleKeywords())
	if err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if !strings.HasPrefix(out, "T\n") || !strings.Contains(out, "fashion") {
		t.Fatalf("fallback draft must lead with title and mention category:\n%s", out)
	}
	if !strings.Contains(out, "Wide leg jeans") {
		t.Fatalf("fallback draft should list keywords:\n%s", out)
	}
}

func TestFallbackModify(t *testing.T) {
	base := Params{Language: "English", Tone: "casual", OriginalContent: "our shoes are good.  they last long"}

	base.ModificationType = domain.ModifySummarize
	out, err := Fallback(domain.ProjectModify, "x", base, nil)
	if err != nil {
		t.Fatalf("fallback summarize: %v", err)
	}
	if !strings.HasPrefix(out, "Summary: Our shoes are good.") {
		t.Fatalf("unexpected summary fallback: %q", out)
	}

	base.ModificationType = domain.ModifyRephrase
	out, err = Fallback(domain.ProjectModify, "x", base, nil)
	if err != nil {
		t.Fatalf("fallback rephrase: %v", err)
	}
	if out != "Our shoes are good. They last long." {
		t.Fatalf("unexpected rephrase fallback: %q", out)
	}
}

func TestRephraseKeepsTerminators(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"question and exclamation", "is it waterproof?  yes!  order today", "Is it waterproof? Yes! Order today."},
		{"ellipsis collapses", "wait... what?", "Wait. What?"},
		{"punctuation only", "  ...  ", "..."},
		{"blank", "   ", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rephrase(tc.in); got != tc.want {
				t.Fatalf("rephrase(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestFallbackRephrasePunctuationOnlyIsNotBlank(t *testing.T) {
	p := Params{Language: "English", Tone: "casual", OriginalContent: "...", ModificationType: domain.ModifyRephrase}
	out, err := Fallback(domain.ProjectModify, "x", p, nil)
	if err != nil {
		t.Fatalf("fallback rephrase: %v", err)
	}
	if out != "..." {
		t.Fatalf("punctuation-only content should survive the fallback, got %q", out)
	}
}

func TestFirstSentenceKeepsQuestionMark(t *testing.T) {
	if got := firstSentence("why buy twice? ours last."); got != "Why buy twice?" {
		t.Fatalf("firstSentence = %q", got)
	}
}

func TestRerankInstructionListsCandidates(t *testing.T) {
	out := RerankInstruction("toys", "Japan", "English", []string{"lego", "puzzle", "kite", "yo-yo"}, 3)
	for _, want := range []string{"- lego", "- yo-yo", "exactly 3", "JSON array"} {
		if !strings.Contains(out, want) {
			t.Fatalf("rerank instruction missing %q:\n%s", want, out)
		}
	}
}

func TestChatReplaysHistory(t *testing.T) {
	if got := Chat(nil, "  hello  "); got != "hello" {
		t.Fatalf("chat without history = %q", got)
	}
	history := []domain.ChatMessage{
		{Role: domain.ChatRoleUser, Content: "name a color"},
		{Role: domain.ChatRoleAssistant, Content: "blue"},
	}
	out := Chat(history, "another")
	for _, want := range []string{"User: name a color\n", "Assistant: blue\n", "User: another\nAssistant:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("chat prompt missing %q:\n%s", want, out)
		}
	}
}
