package notelist

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry hands out one loaded State per owner.
type Registry struct {
	repo       Repository
	summarizer Summarizer
	opts       []Option

	mu     sync.Mutex
	states map[string]*State
	group  singleflight.Group
}

// NewRegistry creates a Registry whose states share repo, summarizer and opts.
func NewRegistry(repo Repository, summarizer Summarizer, opts ...Option) *Registry {
	return &Registry{
		repo:       repo,
		summarizer: summarizer,
		opts:       opts,
		states:     make(map[string]*State),
	}
}

// Get returns the owner's State, loading it on first use. A failed first load
// is not cached, so the next call retries.
func (r *Registry) Get(ctx context.Context, ownerID string) (*State, error) {
	r.mu.Lock()
	st, ok := r.states[ownerID]
	r.mu.Unlock()
	if ok {
		return st, nil
	}

	v, err, _ := r.group.Do(ownerID, func() (any, error) {
		r.mu.Lock()
		if st, ok := r.states[ownerID]; ok {
			r.mu.Unlock()
			return st, nil
		}
		r.mu.Unlock()

		st := New(r.repo, r.summarizer, r.opts...)
		if err := st.Load(context.WithoutCancel(ctx), ownerID); err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.states[ownerID] = st
		r.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*State), nil
}
