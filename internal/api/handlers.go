package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/apperr"
	"github.com/starford/auralis/internal/auth"
	"github.com/starford/auralis/internal/checksum"
	"github.com/starford/auralis/internal/export"
	"github.com/starford/auralis/internal/insights"
	"github.com/starford/auralis/internal/models"
	"github.com/starford/auralis/internal/notelist"
	"github.com/starford/auralis/internal/repository"
)

const (
	maxBodyBytes        = 1 << 20
	maxDrawingBodyBytes = 10 << 20
)

// Assistant is the LLM backend used by the stateless proxy routes.
type Assistant interface {
	Summarize(ctx context.Context, title, content string) (ai.Summary, error)
	Categorize(ctx context.Context, notes []models.Note) ([]string, error)
}

// Searcher runs full-text queries over an owner's notes.
type Searcher interface {
	Search(ctx context.Context, ownerID, query string, limit int) ([]repository.SearchResult, error)
}

// Handler holds API route handlers.
type Handler struct {
	notes     *notelist.Registry
	insights  *insights.Tracker
	assistant Assistant
	search    Searcher
}

// NewHandler creates a new Handler. assistant and search may be nil; the
// routes that need them then report the backend as unavailable.
func NewHandler(notes *notelist.Registry, tracker *insights.Tracker, assistant Assistant, search Searcher) *Handler {
	return &Handler{notes: notes, insights: tracker, assistant: assistant, search: search}
}

// state returns the loaded note list of the request owner.
func (h *Handler) state(r *http.Request) (*notelist.State, error) {
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		return nil, apperr.ErrNoOwner
	}
	return h.notes.Get(r.Context(), owner)
}

// decode reads a JSON body into dst and runs its ozzo rules.
func decode(w http.ResponseWriter, r *http.Request, limit int64, dst validation.Validatable) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	if err := dst.Validate(); err != nil {
		return apperr.Validation(err.Error())
	}
	return nil
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List the visible notes, pinned first then newest first
//	@Tags			notes
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive filter on title, content and tags"
//	@Success		200	{object}	NoteListResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	notes := st.VisibleNotes(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: notes, Total: st.Len(), Loading: st.Loading()})
}

// ReloadNotes handles POST /api/notes/reload.
//
//	@Summary		Reload the note collection from the repository
//	@Tags			notes
//	@Produce		json
//	@Success		200	{object}	NoteListResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/reload [post]
func (h *Handler) ReloadNotes(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "reload notes", err)
		return
	}
	owner, _ := auth.OwnerFrom(r.Context())
	if err := st.Load(context.WithoutCancel(r.Context()), owner); err != nil {
		writeError(w, "reload notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: st.VisibleNotes(""), Total: st.Len()})
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	models.Note
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if err := decode(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, "create note", err)
		return
	}
	st, err := h.state(r)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	note, err := st.Create(context.WithoutCancel(r.Context()), req.Title, req.Content)
	if err != nil {
		writeError(w, "create note", err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// GetNote handles GET /api/notes/{id}.
//
//	@Summary		Get a single note with its summarizing flag
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	NoteDetail
//	@Success		304	"Not modified"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	id := chi.URLParam(r, "id")
	note, ok := st.Get(id)
	if !ok {
		writeError(w, "get note", apperr.ErrNotFound)
		return
	}
	etag, err := checksum.ETag(note)
	if err != nil {
		writeError(w, "get note", err)
		return
	}
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, NoteDetail{Note: note, Summarizing: st.IsSummarizing(id)})
}

// UpdateNote handles PATCH /api/notes/{id}.
//
//	@Summary		Partially update a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Note id"
//	@Param			If-Match	header		string				false	"ETag for optimistic concurrency"
//	@Param			body		body		UpdateNoteRequest	true	"Fields to change"
//	@Success		200			{object}	models.Note
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [patch]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if err := decode(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, "update note", err)
		return
	}
	st, err := h.state(r)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	id := chi.URLParam(r, "id")

	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		current, ok := st.Get(id)
		if !ok {
			writeError(w, "update note", apperr.ErrNotFound)
			return
		}
		if etag, _ := checksum.ETag(current); etag != ifMatch {
			writeError(w, "update note", apperr.ErrConflict)
			return
		}
	}

	h.writeMutation(w, r, "update note", func(ctx context.Context) (models.Note, bool, error) {
		return st.Update(ctx, id, req.Patch())
	})
}

// DeleteNote handles DELETE /api/notes/{id}.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			id	path	string	true	"Note id"
//	@Success		204	"Note deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	ok, err := st.Delete(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "delete note", err)
		return
	}
	if !ok {
		writeError(w, "delete note", apperr.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SummarizeNote handles POST /api/notes/{id}/summarize.
//
//	@Summary		Generate a summary and tags for a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	SummarizeNoteResponse
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/summarize [post]
func (h *Handler) SummarizeNote(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "summarize note", err)
		return
	}
	note, changed, err := st.Summarize(context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "summarize note", err)
		return
	}
	// A zero note means the id is unknown or was deleted while summarizing.
	if note.ID == "" {
		writeError(w, "summarize note", apperr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, SummarizeNoteResponse{Note: note, Changed: changed})
}

// TogglePin handles POST /api/notes/{id}/pin.
//
//	@Summary		Flip the pinned flag of a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/pin [post]
func (h *Handler) TogglePin(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "toggle pin", err)
		return
	}
	id := chi.URLParam(r, "id")
	h.writeMutation(w, r, "toggle pin", func(ctx context.Context) (models.Note, bool, error) {
		return st.TogglePin(ctx, id)
	})
}

// ToggleFavorite handles POST /api/notes/{id}/favorite.
//
//	@Summary		Flip the favorite flag of a note
//	@Tags			notes
//	@Produce		json
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{object}	models.Note
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/favorite [post]
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "toggle favorite", err)
		return
	}
	id := chi.URLParam(r, "id")
	h.writeMutation(w, r, "toggle favorite", func(ctx context.Context) (models.Note, bool, error) {
		return st.ToggleFavorite(ctx, id)
	})
}

// SaveDrawing handles PUT /api/notes/{id}/drawing.
//
//	@Summary		Store the serialized drawing of a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Note id"
//	@Param			body	body		DrawingRequest	true	"Drawing"
//	@Success		200		{object}	models.Note
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/drawing [put]
func (h *Handler) SaveDrawing(w http.ResponseWriter, r *http.Request) {
	var req DrawingRequest
	if err := decode(w, r, maxDrawingBodyBytes, &req); err != nil {
		writeError(w, "save drawing", err)
		return
	}
	st, err := h.state(r)
	if err != nil {
		writeError(w, "save drawing", err)
		return
	}
	id := chi.URLParam(r, "id")
	h.writeMutation(w, r, "save drawing", func(ctx context.Context) (models.Note, bool, error) {
		return st.SaveDrawing(ctx, id, req.Drawing)
	})
}

// ExportNote handles GET /api/notes/{id}/export.md.
//
//	@Summary		Download a note as Markdown
//	@Tags			notes
//	@Produce		text/markdown
//	@Param			id	path		string	true	"Note id"
//	@Success		200	{string}	string
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{id}/export.md [get]
func (h *Handler) ExportNote(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "export note", err)
		return
	}
	note, ok := st.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, "export note", apperr.ErrNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(note)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(export.Markdown(note)))
}

// Insights handles GET /api/insights.
//
//	@Summary		Categories across all notes and the summarized notes
//	@Tags			insights
//	@Produce		json
//	@Success		200	{object}	InsightsResponse
//	@Security		BearerAuth
//	@Router			/insights [get]
func (h *Handler) Insights(w http.ResponseWriter, r *http.Request) {
	st, err := h.state(r)
	if err != nil {
		writeError(w, "insights", err)
		return
	}
	view := h.insights.View(r.Context(), st)
	writeJSON(w, http.StatusOK, InsightsResponse{Categories: view.Categories, Summarized: view.Summarized})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across the owner's notes
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, "search", apperr.Validation("query parameter 'q' is required"))
		return
	}
	owner, ok := auth.OwnerFrom(r.Context())
	if !ok {
		writeError(w, "search", apperr.ErrNoOwner)
		return
	}
	if h.search == nil {
		writeError(w, "search", apperr.Remote("repository", "search", errors.New("search not configured")))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.search.Search(r.Context(), owner, q, limit)
	if err != nil {
		writeError(w, "search", apperr.Remote("repository", "search", err))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Summarize handles POST /api/summarize.
//
//	@Summary		Summarize arbitrary text without storing anything
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SummarizeRequest	true	"Text to summarize"
//	@Success		200		{object}	SummarizeResponse
//	@Failure		400		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/summarize [post]
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req SummarizeRequest
	if err := decode(w, r, maxBodyBytes, &req); err != nil {
		writeError(w, "summarize", err)
		return
	}
	if h.assistant == nil {
		writeError(w, "summarize", apperr.Remote("ai", "summarize", ai.ErrNotConfigured))
		return
	}
	res, err := h.assistant.Summarize(r.Context(), req.Title, req.Content)
	if err != nil {
		writeError(w, "summarize", apperr.Remote("ai", "summarize", err))
		return
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, SummarizeResponse{Summary: res.Summary, Tags: tags})
}

// Categorize handles POST /api/insights.
//
//	@Summary		Categorize the given notes without storing anything
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InsightsRequest	true	"Notes to categorize"
//	@Success		200		{object}	CategoriesResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/insights [post]
func (h *Handler) Categorize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDrawingBodyBytes)
	var req InsightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "categorize", apperr.Validation("invalid JSON body"))
		return
	}
	if h.assistant == nil {
		writeError(w, "categorize", apperr.Remote("ai", "categorize", ai.ErrNotConfigured))
		return
	}
	cats, err := h.assistant.Categorize(r.Context(), req.Notes)
	if err != nil {
		writeError(w, "categorize", apperr.Remote("ai", "categorize", err))
		return
	}
	if cats == nil {
		cats = []string{}
	}
	writeJSON(w, http.StatusOK, CategoriesResponse{Categories: cats})
}

// writeMutation runs a state mutation detached from the request's
// cancellation and writes the resulting note, or 404 when ok is false.
func (h *Handler) writeMutation(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) (models.Note, bool, error)) {
	note, ok, err := fn(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, op, err)
		return
	}
	if !ok {
		writeError(w, op, apperr.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, note)
}
