package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/starford/auralis/internal/models"
)

const (
	maxTags          = 5
	maxCategories    = 5
	maxExcerptRunes  = 500
	maxInsightsNotes = 50
)

var (
	summarySchema = &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {Type: genai.TypeString},
			"tags":    stringList(),
		},
	}
	categoriesSchema = &genai.Schema{
		Type:       genai.TypeObject,
		Properties: map[string]*genai.Schema{"categories": stringList()},
		Required:   []string{"categories"},
	}
)

// Summary is the result of summarizing one note. Both fields may be absent,
// which means the model extracted nothing.
type Summary struct {
	Summary *string  `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Empty reports whether the model returned neither a summary nor tags.
func (s Summary) Empty() bool {
	return (s.Summary == nil || *s.Summary == "") && len(s.Tags) == 0
}

// Summarize asks the model for a short summary and a few tags for a note.
func (c *Client) Summarize(ctx context.Context, title, body string) (Summary, error) {
	prompt := fmt.Sprintf(`Summarize the following note in one or two sentences and suggest up to %d short lowercase tags.
Respond with a JSON object {"summary": string, "tags": [string]}.

Title: %s

%s`, maxTags, title, body)

	var out Summary
	if _, err := c.generate(ctx, "summarize", prompt, summarySchema, &out); err != nil {
		return Summary{}, err
	}
	if out.Summary != nil {
		s := strings.TrimSpace(*out.Summary)
		if s == "" {
			out.Summary = nil
		} else {
			out.Summary = &s
		}
	}
	if out.Tags = normalizeLabels(out.Tags, maxTags); len(out.Tags) == 0 {
		out.Tags = nil
	}
	return out, nil
}

// Categorize asks the model for a small set of category labels covering notes.
func (c *Client) Categorize(ctx context.Context, notes []models.Note) ([]string, error) {
	if len(notes) == 0 {
		return []string{}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Group the following notes into at most %d broad categories.
Respond with a JSON object {"categories": [string]}.
`, maxCategories)
	for i, n := range notes {
		if i == maxInsightsNotes {
			break
		}
		text := n.Content
		if n.HasSummary() {
			text = *n.Summary
		}
		fmt.Fprintf(&b, "\n- %s: %s", n.Title, excerpt(text, maxExcerptRunes))
	}

	var out struct {
		Categories []string `json:"categories"`
	}
	ok, err := c.generate(ctx, "categorize", b.String(), categoriesSchema, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []string{}, nil
	}
	return normalizeLabels(out.Categories, maxCategories), nil
}

// normalizeLabels trims, drops blanks and case-insensitive duplicates, and caps the count.
func normalizeLabels(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if len(out) == limit {
			break
		}
	}
	return out
}

func excerpt(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
