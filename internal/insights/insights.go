// Package insights derives the AI insights view of a note collection:
// category labels from the LLM plus the notes that already carry a summary.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/auralis/internal/checksum"
	"github.com/starford/auralis/internal/models"
)

// Categorizer returns category labels for a set of notes.
type Categorizer interface {
	Categorize(ctx context.Context, notes []models.Note) ([]string, error)
}

// View is what the insights screen shows.
type View struct {
	Categories []string      `json:"categories"`
	Summarized []models.Note `json:"summarized"`
}

// Service derives insight views. Category lookups for an identical note set
// are served from the cache and concurrent lookups are coalesced.
type Service struct {
	categorizer Categorizer
	cache       Cache
	logger      *slog.Logger
	group       singleflight.Group
}

// NewService creates a Service. cache may be nil.
func NewService(categorizer Categorizer, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{categorizer: categorizer, cache: cache, logger: logger}
}

// Derive builds the view for notes. A categorizer failure yields an empty
// category list and complete=false; the error is logged, never returned.
func (s *Service) Derive(ctx context.Context, notes []models.Note) (v View, complete bool) {
	v = View{Categories: []string{}, Summarized: []models.Note{}}
	for _, n := range notes {
		if n.HasSummary() {
			v.Summarized = append(v.Summarized, n.Clone())
		}
	}
	if len(notes) == 0 || s.categorizer == nil {
		return v, true
	}

	key := SetKey(notes)
	if s.cache != nil {
		cats, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("insights cache get failed", slog.String("error", err.Error()))
		} else if ok {
			v.Categories = cats
			return v, true
		}
	}

	res, err, _ := s.group.Do(key, func() (any, error) {
		return s.categorizer.Categorize(context.WithoutCancel(ctx), notes)
	})
	if err != nil {
		s.logger.Warn("load insights failed", slog.Int("notes", len(notes)), slog.String("error", err.Error()))
		return v, false
	}
	if cats := res.([]string); cats != nil {
		v.Categories = slices.Clone(cats)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, v.Categories); err != nil {
			s.logger.Warn("insights cache set failed", slog.String("error", err.Error()))
		}
	}
	return v, true
}

// SetKey identifies a note set by the ids and update times of its members,
// independent of order.
func SetKey(notes []models.Note) string {
	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = fmt.Sprintf("%s@%d", n.ID, n.UpdatedAt.UnixNano())
	}
	slices.Sort(parts)
	return checksum.Sum([]byte(strings.Join(parts, "\n")))
}

// Source is a versioned note collection, such as a notelist.State.
type Source interface {
	Owner() string
	Version() uint64
	Notes() []models.Note
}

// Tracker remembers the last complete view per owner and recomputes it only
// when the collection version changed since. Views from a failed derivation
// are never remembered, so the next request asks the model again.
type Tracker struct {
	svc *Service

	mu    sync.Mutex
	views map[string]trackedView
}

type trackedView struct {
	version uint64
	view    View
}

// NewTracker creates a Tracker backed by svc.
func NewTracker(svc *Service) *Tracker {
	return &Tracker{svc: svc, views: make(map[string]trackedView)}
}

// View returns the insights view of src, deriving it again only if src changed.
func (t *Tracker) View(ctx context.Context, src Source) View {
	owner, version := src.Owner(), src.Version()

	t.mu.Lock()
	tv, ok := t.views[owner]
	t.mu.Unlock()
	if ok && tv.version == version {
		return cloneView(tv.view)
	}

	v, complete := t.svc.Derive(ctx, src.Notes())
	if !complete {
		return cloneView(v)
	}

	t.mu.Lock()
	if cur, ok := t.views[owner]; !ok || cur.version <= version {
		t.views[owner] = trackedView{version: version, view: v}
	}
	t.mu.Unlock()
	return cloneView(v)
}

func cloneView(v View) View {
	out := View{
		Categories: slices.Clone(v.Categories),
		Summarized: make([]models.Note, len(v.Summarized)),
	}
	for i, n := range v.Summarized {
		out.Summarized[i] = n.Clone()
	}
	return out
}
