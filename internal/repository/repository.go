package repository

import (
	"context"

	"github.com/starford/auralis/internal/models"
)

// Repository defines the note persistence operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with fakes.
type Repository interface {
	// Create stores a new note and returns it with server-assigned id and timestamps.
	Create(ctx context.Context, ownerID, title, content string) (models.Note, error)
	// List returns every note of the owner, newest first.
	List(ctx context.Context, ownerID string) ([]models.Note, error)
	// Get returns a single note by id.
	Get(ctx context.Context, id string) (models.Note, error)
	// Update applies a partial update and returns the new version of the note.
	Update(ctx context.Context, id string, patch models.Patch) (models.Note, error)
	// Delete removes the note.
	Delete(ctx context.Context, id string) error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)

// SearchResult represents one search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}
