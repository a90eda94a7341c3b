package notelist

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/auralis/internal/models"
)

// Visible filters notes by query and orders the result: pinned notes first,
// then newest first within each group. It never modifies its input.
func Visible(notes []models.Note, query string) []models.Note {
	q := strings.ToLower(query)
	out := make([]models.Note, 0, len(notes))
	for _, n := range notes {
		if matches(n, q) {
			out = append(out, n.Clone())
		}
	}
	slices.SortStableFunc(out, compareVisible)
	return out
}

func compareVisible(a, b models.Note) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
}

// matches reports a case-insensitive substring hit on title, content or any tag.
// lowerQuery must already be lower-cased.
func matches(n models.Note, lowerQuery string) bool {
	if lowerQuery == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(n.Content), lowerQuery) {
		return true
	}
	return slices.ContainsFunc(n.Tags, func(tag string) bool {
		return strings.Contains(strings.ToLower(tag), lowerQuery)
	})
}
