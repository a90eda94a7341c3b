// Package export renders notes as Markdown documents and writes them to an
// export directory.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/starford/auralis/internal/checksum"
	"github.com/starford/auralis/internal/models"
	"github.com/starford/auralis/internal/storage"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// Markdown renders n as a Markdown document.
func Markdown(n models.Note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", n.Title)
	fmt.Fprintf(&b, "Created: %s\n", formatTime(n.CreatedAt))
	fmt.Fprintf(&b, "\n%s\n", n.Content)
	if n.HasSummary() {
		fmt.Fprintf(&b, "\n## AI Summary\n%s\n", *n.Summary)
	}
	if len(n.Tags) > 0 {
		fmt.Fprintf(&b, "\n**Tags:** %s\n", strings.Join(n.Tags, ", "))
	}
	return b.String()
}

// Filename returns a file-system safe name for n, unique per note id.
func Filename(n models.Note) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(n.Title), "-"), "-")
	if slug == "" {
		slug = "note"
	}
	if len(slug) > 60 {
		slug = strings.TrimRight(slug[:60], "-")
	}
	id := n.ID
	if len(id) > 8 {
		id = id[:8]
	}
	if id == "" {
		return slug + ".md"
	}
	return slug + "-" + id + ".md"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Result summarizes a directory export.
type Result struct {
	Written   int
	Unchanged int
	Pruned    int
}

// Dir writes every note under dir in store, skipping files whose content is
// already current. With prune, Markdown files in dir that no longer
// correspond to a note are removed.
func Dir(store storage.Provider, dir string, notes []models.Note, prune bool) (Result, error) {
	var res Result
	existing, err := store.List(dir)
	if err != nil {
		return res, fmt.Errorf("export: list %s: %w", dir, err)
	}
	sums := make(map[string]string, len(existing))
	for _, f := range existing {
		sums[f.Path] = f.Checksum
	}

	keep := make(map[string]struct{}, len(notes))
	for _, n := range notes {
		p := joinPath(dir, Filename(n))
		keep[p] = struct{}{}
		data := []byte(Markdown(n))
		if sums[p] == checksum.Sum(data) {
			res.Unchanged++
			continue
		}
		if err := store.Write(p, data); err != nil {
			return res, fmt.Errorf("export: write %s: %w", p, err)
		}
		res.Written++
	}
	if !prune {
		return res, nil
	}

	for _, f := range existing {
		if _, ok := keep[f.Path]; ok {
			continue
		}
		if err := store.Delete(f.Path); err != nil {
			return res, fmt.Errorf("export: prune %s: %w", f.Path, err)
		}
		res.Pruned++
	}
	return res, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}
