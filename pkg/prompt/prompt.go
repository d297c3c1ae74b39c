// Package prompt renders the instruction text sent to text generation
// providers and the deterministic text used when generation fails.
package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"trendscribe/pkg/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("prompt").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"terms":         joinTerms,
			"capitalize":    capitalize,
			"firstSentence": firstSentence,
			"rephrase":      rephrase,
		}).
		ParseFS(templateFS, "templates/*.tmpl"),
)

// ErrInvalidInput marks a missing or unsupported prompt parameter.
var ErrInvalidInput = errors.New("invalid prompt input")

// InvalidInputError names the offending field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid prompt input: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid prompt input: %s is required", e.Field)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// Params carries the task inputs a template may reference.
type Params struct {
	Location         string
	Language         string
	Tone             string
	Category         string
	ContentIntent    string
	DesiredLength    string
	OriginalContent  string
	ModificationType domain.ModificationType
	BaseContent      string
	VisualStyle      string
}

type templateData struct {
	Params
	Title    string
	Keywords []domain.Keyword
}

type field struct {
	name  string
	value string
}

// Build renders the instruction for taskType. It performs no I/O and
// returns identical output for identical input.
func Build(taskType domain.ProjectType, p Params, keywords []domain.Keyword) (string, error) {
	name, err := templateFor(taskType, p, "")
	if err != nil {
		return "", err
	}
	return render(name, templateData{Params: p, Keywords: keywords})
}

// Fallback renders the deterministic text used in place of a failed
// generation. The draft text always contains the title and the category.
func Fallback(taskType domain.ProjectType, title string, p Params, keywords []domain.Keyword) (string, error) {
	name, err := templateFor(taskType, p, "fallback_")
	if err != nil {
		return "", err
	}
	return render(name, templateData{Params: p, Title: strings.TrimSpace(title), Keywords: keywords})
}

// RerankInstruction asks a model to choose count keywords from terms and
// reply with a JSON array.
func RerankInstruction(category, location, language string, terms []string, count int) string {
	var buf bytes.Buffer
	data := struct {
		Category, Location, Language string
		Terms                        []string
		Count                        int
	}{category, location, language, terms, count}
	if err := templates.ExecuteTemplate(&buf, "rerank.tmpl", data); err != nil {
		// The rerank template only references fields of data.
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}

// Chat renders a chat turn. Without history the message is sent as is;
// otherwise the transcript is replayed ahead of it.
func Chat(history []domain.ChatMessage, message string) string {
	message = strings.TrimSpace(message)
	if len(history) == 0 {
		return message
	}
	var buf bytes.Buffer
	data := struct {
		History []domain.ChatMessage
		Message string
	}{history, message}
	if err := templates.ExecuteTemplate(&buf, "chat.tmpl", data); err != nil {
		// The chat template only references fields of data.
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}

func templateFor(taskType domain.ProjectType, p Params, prefix string) (string, error) {
	switch taskType {
	case domain.ProjectDraft:
		if err := require(
			field{"location", p.Location},
			field{"language", p.Language},
			field{"tone", p.Tone},
			field{"category", p.Category},
			field{"contentIntent", p.ContentIntent},
			field{"desiredLength", p.DesiredLength},
		); err != nil {
			return "", err
		}
		return prefix + "draft.tmpl", nil
	case domain.ProjectModify:
		if err := require(
			field{"language", p.Language},
			field{"tone", p.Tone},
			field{"originalContent", p.OriginalContent},
			field{"modificationType", string(p.ModificationType)},
		); err != nil {
			return "", err
		}
		switch p.ModificationType {
		case domain.ModifyElaborate, domain.ModifySummarize, domain.ModifyRephrase:
		default:
			return "", &InvalidInputError{Field: "modificationType", Reason: fmt.Sprintf("%q is not supported", p.ModificationType)}
		}
		if prefix == "" {
			return "modify_" + string(p.ModificationType) + ".tmpl", nil
		}
		return prefix + string(p.ModificationType) + ".tmpl", nil
	case domain.ProjectImagePrompt:
		if err := require(
			field{"baseContent", p.BaseContent},
			field{"visualStyle", p.VisualStyle},
			field{"tone", p.Tone},
			field{"category", p.Category},
			field{"location", p.Location},
			field{"language", p.Language},
		); err != nil {
			return "", err
		}
		return prefix + "image_prompt.tmpl", nil
	default:
		return "", &InvalidInputError{Field: "projectType", Reason: fmt.Sprintf("%q is not supported", taskType)}
	}
}

func require(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidInputError{Field: f.name}
		}
	}
	return nil
}

func render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func joinTerms(keywords []domain.Keyword) string {
	terms := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if t := strings.TrimSpace(k.Term); t != "" {
			terms = append(terms, t)
		}
	}
	if len(terms) == 0 {
		return "none available"
	}
	return strings.Join(terms, ", ")
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

type sentence struct {
	text string
	end  rune
}

// sentences splits text on terminators. A sentence keeps the first
// terminator that closed it; trailing text without one ends with '.'.
func sentences(text string) []sentence {
	var (
		out []sentence
		cur strings.Builder
	)
	flush := func(end rune) {
		if s := strings.Join(strings.Fields(cur.String()), " "); s != "" {
			out = append(out, sentence{text: s, end: end})
		}
		cur.Reset()
	}
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			flush(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush('.')
	return out
}

func firstSentence(text string) string {
	parts := sentences(text)
	if len(parts) == 0 {
		return strings.TrimSpace(text)
	}
	return capitalize(parts[0].text) + string(parts[0].end)
}

// rephrase normalizes spacing and capitalization sentence by sentence.
// Text with no words is returned trimmed.
func rephrase(text string) string {
	parts := sentences(text)
	if len(parts) == 0 {
		return strings.TrimSpace(text)
	}
	out := make([]string, len(parts))
	for i, s := range parts {
		out[i] = capitalize(s.text) + string(s.end)
	}
	return strings.Join(out, " ")
}
