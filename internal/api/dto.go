package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/auralis/internal/models"
	"github.com/starford/auralis/internal/repository"
)

const (
	maxTitleLen   = 200
	maxTagLen     = 50
	maxTags       = 20
	maxDrawingLen = 8 << 20
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Title   string `json:"title" example:"Weekly standup" validate:"required"`
	Content string `json:"content" example:"Talked about the release." validate:"required"`
}

// Validate implements validation.Validatable.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.RuneLength(1, maxTitleLen)),
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdateNoteRequest is the request body for a partial note update. Absent
// fields are left unchanged.
type UpdateNoteRequest struct {
	Title    *string  `json:"title,omitempty"`
	Content  *string  `json:"content,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Pinned   *bool    `json:"pinned,omitempty"`
	Favorite *bool    `json:"favorite,omitempty"`
}

// Validate implements validation.Validatable.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.NilOrNotEmpty, validation.RuneLength(1, maxTitleLen)),
		validation.Field(&r.Content, validation.NilOrNotEmpty),
		validation.Field(&r.Tags, validation.Length(0, maxTags), validation.Each(validation.Required, validation.RuneLength(1, maxTagLen))),
	)
}

// Patch converts the request into a domain patch.
func (r UpdateNoteRequest) Patch() models.Patch {
	return models.Patch{
		Title:    r.Title,
		Content:  r.Content,
		Tags:     r.Tags,
		Pinned:   r.Pinned,
		Favorite: r.Favorite,
	}
}

// DrawingRequest is the request body for saving a drawing.
type DrawingRequest struct {
	Drawing string `json:"drawing" example:"data:image/png;base64,..."`
}

// Validate implements validation.Validatable.
func (r DrawingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Drawing, validation.Length(0, maxDrawingLen)),
	)
}

// SummarizeRequest is the body of the stateless summarize proxy.
type SummarizeRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Validate implements validation.Validatable.
func (r SummarizeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// SummarizeResponse is returned by the summarize proxy.
type SummarizeResponse struct {
	Summary *string  `json:"summary"`
	Tags    []string `json:"tags"`
}

// InsightsRequest is the body of the stateless insights proxy.
type InsightsRequest struct {
	Notes []models.Note `json:"notes"`
}

// CategoriesResponse lists category labels.
type CategoriesResponse struct {
	Categories []string `json:"categories" validate:"required"`
}

// NoteDetail is a note together with its transient state.
type NoteDetail struct {
	models.Note
	Summarizing bool `json:"summarizing"`
}

// NoteListResponse wraps the visible note list.
type NoteListResponse struct {
	Notes   []models.Note `json:"notes" validate:"required"`
	Total   int           `json:"total" example:"42" validate:"required"`
	Loading bool          `json:"loading"`
}

// SummarizeNoteResponse reports the outcome of summarizing a stored note.
type SummarizeNoteResponse struct {
	Note    models.Note `json:"note"`
	Changed bool        `json:"changed"`
}

// InsightsResponse is the derived insights view.
type InsightsResponse struct {
	Categories []string      `json:"categories" validate:"required"`
	Summarized []models.Note `json:"summarized" validate:"required"`
}

// SearchResponse wraps full-text search results.
type SearchResponse struct {
	Results []repository.SearchResult `json:"results" validate:"required"`
}
