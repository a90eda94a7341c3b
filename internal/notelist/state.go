// Package notelist owns the in-memory note collection of one signed-in owner.
//
// The collection only changes after the repository confirms a mutation, so a
// failed remote call never leaves it inconsistent. Remote calls run outside the
// lock; independent actions on different notes proceed concurrently. At most one
// summarize call is in flight per note id. Other mutations on the same id are
// last-writer-wins at the repository.
package notelist

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/apperr"
	"github.com/starford/auralis/internal/models"
)

// Repository is the subset of note persistence the state needs.
type Repository interface {
	Create(ctx context.Context, ownerID, title, content string) (models.Note, error)
	List(ctx context.Context, ownerID string) ([]models.Note, error)
	Update(ctx context.Context, id string, patch models.Patch) (models.Note, error)
	Delete(ctx context.Context, id string) error
}

// Summarizer produces a summary and tags for one note.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (ai.Summary, error)
}

// Event kinds delivered to listeners.
const (
	EventLoaded     = "loaded"
	EventCreated    = "created"
	EventUpdated    = "updated"
	EventDeleted    = "deleted"
	EventSummarized = "summarized"
)

// Event describes a confirmed change of the collection.
type Event struct {
	Kind    string
	OwnerID string
	Note    models.Note // zero for EventLoaded
}

// Listener is called after every confirmed change, outside the state lock.
type Listener func(Event)

// Option configures a State.
type Option func(*State)

// WithLogger sets the logger used to report failed operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) { s.logger = l }
}

// WithListener registers a change listener.
func WithListener(l Listener) Option {
	return func(s *State) { s.listeners = append(s.listeners, l) }
}

// State is the authoritative in-memory note collection of one owner.
type State struct {
	repo       Repository
	summarizer Summarizer
	logger     *slog.Logger
	listeners  []Listener

	mu          sync.Mutex
	owner       string
	notes       []models.Note
	version     uint64
	loading     bool
	summarizing map[string]struct{}
	memo        visibleMemo
}

type visibleMemo struct {
	valid   bool
	version uint64
	query   string
	notes   []models.Note
}

// New creates an empty State. summarizer may be nil, in which case Summarize fails.
func New(repo Repository, summarizer Summarizer, opts ...Option) *State {
	s := &State{
		repo:        repo,
		summarizer:  summarizer,
		logger:      slog.Default(),
		summarizing: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches every note of ownerID and replaces the collection. On failure
// the previous collection is kept and a *apperr.LoadError is returned.
func (s *State) Load(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return apperr.ErrNoOwner
	}

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	fetched, err := s.repo.List(ctx, ownerID)
	if err != nil {
		s.logger.Error("load notes failed", slog.String("owner", ownerID), slog.String("error", err.Error()))
		return &apperr.LoadError{OwnerID: ownerID, Err: err}
	}

	notes := make([]models.Note, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, n := range fetched {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		notes = append(notes, n.Clone())
	}

	s.mu.Lock()
	s.owner = ownerID
	s.notes = notes
	s.version++
	s.mu.Unlock()

	s.logger.Debug("notes loaded", slog.String("owner", ownerID), slog.Int("count", len(notes)))
	s.emit(Event{Kind: EventLoaded, OwnerID: ownerID})
	return nil
}

// Create stores a new note and prepends it to the collection. Empty title or
// content, or an unknown owner, are rejected without calling the repository.
func (s *State) Create(ctx context.Context, title, content string) (models.Note, error) {
	if title == "" || content == "" {
		return models.Note{}, apperr.Validation("title and content are required")
	}
	owner := s.Owner()
	if owner == "" {
		return models.Note{}, apperr.ErrNoOwner
	}

	n, err := s.repo.Create(ctx, owner, title, content)
	if err != nil {
		s.logger.Error("create note failed", slog.String("owner", owner), slog.String("error", err.Error()))
		return models.Note{}, apperr.Remote("repository", "create", err)
	}

	s.mu.Lock()
	if s.owner != owner || s.indexOf(n.ID) >= 0 {
		s.mu.Unlock()
		return n.Clone(), nil
	}
	s.notes = slices.Insert(s.notes, 0, n.Clone())
	s.version++
	s.mu.Unlock()

	s.emit(Event{Kind: EventCreated, OwnerID: owner, Note: n.Clone()})
	return n.Clone(), nil
}

// Update sends patch to the repository and replaces the local copy on success.
// It returns ok=false without calling the repository when id is not in the
// collection, and drops the result if id disappeared while the call was in flight.
func (s *State) Update(ctx context.Context, id string, patch models.Patch) (models.Note, bool, error) {
	return s.update(ctx, id, patch, EventUpdated)
}

func (s *State) update(ctx context.Context, id string, patch models.Patch, kind string) (models.Note, bool, error) {
	if patch.IsEmpty() {
		return models.Note{}, false, apperr.ErrNoFields
	}
	if (patch.Title != nil && *patch.Title == "") || (patch.Content != nil && *patch.Content == "") {
		return models.Note{}, false, apperr.Validation("title and content must not be empty")
	}
	if _, ok := s.Get(id); !ok {
		return models.Note{}, false, nil
	}

	n, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		s.logger.Error("update note failed", slog.String("id", id), slog.String("error", err.Error()))
		return models.Note{}, false, apperr.Remote("repository", "update", err)
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("update dropped, note no longer present", slog.String("id", id))
		return models.Note{}, false, nil
	}
	s.notes[idx] = n.Clone()
	s.version++
	owner := s.owner
	s.mu.Unlock()

	s.emit(Event{Kind: kind, OwnerID: owner, Note: n.Clone()})
	return n.Clone(), true, nil
}

// Delete removes the note from the repository and the collection. Deleting an
// id that is not in the collection is a no-op and returns ok=false.
func (s *State) Delete(ctx context.Context, id string) (bool, error) {
	if _, ok := s.Get(id); !ok {
		return false, nil
	}

	if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		s.logger.Error("delete note failed", slog.String("id", id), slog.String("error", err.Error()))
		return false, apperr.Remote("repository", "delete", err)
	}

	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	removed := s.notes[idx]
	s.notes = slices.Delete(s.notes, idx, idx+1)
	s.version++
	owner := s.owner
	s.mu.Unlock()

	s.emit(Event{Kind: EventDeleted, OwnerID: owner, Note: removed})
	return true, nil
}

// Summarize asks the summarizer for a summary and tags of the note's current
// title and content and stores whatever came back. A response with neither
// is a successful no-op (ok=false). A second call for the same id while one is
// outstanding fails with apperr.ErrBusy. A result that arrives after the note
// was deleted is dropped.
func (s *State) Summarize(ctx context.Context, id string) (models.Note, bool, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return models.Note{}, false, nil
	}
	if _, busy := s.summarizing[id]; busy {
		s.mu.Unlock()
		return models.Note{}, false, apperr.ErrBusy
	}
	s.summarizing[id] = struct{}{}
	current := s.notes[idx].Clone()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.summarizing, id)
		s.mu.Unlock()
	}()

	if s.summarizer == nil {
		return models.Note{}, false, apperr.Remote("ai", "summarize", ai.ErrNotConfigured)
	}
	res, err := s.summarizer.Summarize(ctx, current.Title, current.Content)
	if err != nil {
		s.logger.Error("summarize note failed", slog.String("id", id), slog.String("error", err.Error()))
		return models.Note{}, false, apperr.Remote("ai", "summarize", err)
	}
	if res.Empty() {
		s.logger.Debug("summarize returned nothing", slog.String("id", id))
		return current, false, nil
	}

	patch := models.Patch{}
	if res.Summary != nil && *res.Summary != "" {
		patch.Summary = res.Summary
	}
	if len(res.Tags) > 0 {
		patch.Tags = res.Tags
	}
	// The result is applied even if the caller has gone away meanwhile.
	return s.update(context.WithoutCancel(ctx), id, patch, EventSummarized)
}

// TogglePin flips the pinned flag of the note.
func (s *State) TogglePin(ctx context.Context, id string) (models.Note, bool, error) {
	n, ok := s.Get(id)
	if !ok {
		return models.Note{}, false, nil
	}
	return s.Update(ctx, id, models.Patch{Pinned: models.Ptr(!n.Pinned)})
}

// ToggleFavorite flips the favorite flag of the note.
func (s *State) ToggleFavorite(ctx context.Context, id string) (models.Note, bool, error) {
	n, ok := s.Get(id)
	if !ok {
		return models.Note{}, false, nil
	}
	return s.Update(ctx, id, models.Patch{Favorite: models.Ptr(!n.Favorite)})
}

// SaveDrawing stores the serialized drawing of the note.
func (s *State) SaveDrawing(ctx context.Context, id, drawing string) (models.Note, bool, error) {
	return s.Update(ctx, id, models.Patch{Drawing: &drawing})
}

// VisibleNotes returns the filtered, ordered projection of the collection.
// It is safe to call on every render; results are memoized per collection
// version and query.
func (s *State) VisibleNotes(query string) []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.memo.valid || s.memo.version != s.version || s.memo.query != query {
		s.memo = visibleMemo{
			valid:   true,
			version: s.version,
			query:   query,
			notes:   Visible(s.notes, query),
		}
	}
	return cloneAll(s.memo.notes)
}

// Notes returns a snapshot of the collection in insertion order.
func (s *State) Notes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.notes)
}

// Get returns a copy of the note with the given id.
func (s *State) Get(id string) (models.Note, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return models.Note{}, false
	}
	return s.notes[idx].Clone(), true
}

// IsSummarizing reports whether a summarize call for id is outstanding.
func (s *State) IsSummarizing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.summarizing[id]
	return ok
}

// Loading reports whether a Load call is in progress.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Owner returns the owner of the loaded collection, or "" before the first Load.
func (s *State) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Version increases on every confirmed change of the collection.
func (s *State) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Len returns the number of notes in the collection.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notes)
}

// indexOf must be called with mu held.
func (s *State) indexOf(id string) int {
	return slices.IndexFunc(s.notes, func(n models.Note) bool { return n.ID == id })
}

func (s *State) emit(ev Event) {
	for _, l := range s.listeners {
		l(ev)
	}
}

func cloneAll(notes []models.Note) []models.Note {
	out := make([]models.Note, len(notes))
	for i, n := range notes {
		out[i] = n.Clone()
	}
	return out
}
