package notelist

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/apperr"
	"github.com/starford/auralis/internal/models"
)

var errTransport = errors.New("connection refused")

// fakeRepo is an in-memory Repository with call counters and injectable failures.
type fakeRepo struct {
	mu      sync.Mutex
	notes   map[string]models.Note
	seq     int
	clock   time.Time
	calls   map[string]int
	failOps map[string]error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		notes:   make(map[string]models.Note),
		clock:   time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		calls:   make(map[string]int),
		failOps: make(map[string]error),
	}
}

func (r *fakeRepo) fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failOps[op] = err
}

func (r *fakeRepo) count(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

func (r *fakeRepo) enter(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[op]++
	return r.failOps[op]
}

func (r *fakeRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Minute)
	return r.clock
}

func (r *fakeRepo) Create(_ context.Context, ownerID, title, content string) (models.Note, error) {
	if err := r.enter("create"); err != nil {
		return models.Note{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	now := r.tick()
	n := models.Note{
		ID:        fmt.Sprintf("note-%d", r.seq),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.notes[n.ID] = n
	return n.Clone(), nil
}

func (r *fakeRepo) List(_ context.Context, ownerID string) ([]models.Note, error) {
	if err := r.enter("list"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Note
	for _, n := range r.notes {
		if n.OwnerID == ownerID {
			out = append(out, n.Clone())
		}
	}
	slices.SortFunc(out, func(a, b models.Note) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (r *fakeRepo) Update(_ context.Context, id string, patch models.Patch) (models.Note, error) {
	if err := r.enter("update"); err != nil {
		return models.Note{}, err
	}
	if patch.IsEmpty() {
		return models.Note{}, apperr.ErrNoFields
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return models.Note{}, apperr.ErrNotFound
	}
	n = patch.Apply(n)
	n.UpdatedAt = r.tick()
	r.notes[id] = n
	return n.Clone(), nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	if err := r.enter("delete"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.notes[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(r.notes, id)
	return nil
}

// fakeSummarizer returns a canned result. When gate is non-nil each call
// signals started and then blocks until gate is closed.
type fakeSummarizer struct {
	result  ai.Summary
	err     error
	started chan struct{}
	gate    chan struct{}

	mu    sync.Mutex
	calls int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, _, _ string) (ai.Summary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.gate != nil {
		f.started <- struct{}{}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return ai.Summary{}, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
