package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/auth"
	"github.com/starford/auralis/internal/insights"
	"github.com/starford/auralis/internal/models"
	"github.com/starford/auralis/internal/notelist"
	"github.com/starford/auralis/internal/repository"
	"github.com/starford/auralis/internal/testutil"
)

const testSecret = "test-secret"

// fakeAssistant stands in for the LLM backend. When gate is non-nil,
// Summarize signals started and blocks until gate is closed.
type fakeAssistant struct {
	mu      sync.Mutex
	summary ai.Summary
	cats    []string
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (f *fakeAssistant) set(summary ai.Summary, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary, f.err = summary, err
}

func (f *fakeAssistant) Summarize(ctx context.Context, _, _ string) (ai.Summary, error) {
	if f.gate != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, f.err
}

func (f *fakeAssistant) Categorize(_ context.Context, notes []models.Note) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(notes) == 0 {
		return []string{}, nil
	}
	return f.cats, f.err
}

type testEnv struct {
	router    http.Handler
	db        *repository.DB
	assistant *fakeAssistant
}

// newTestEnv wires a temp SQLite repository, the note registry and the router.
// mode is auth.ModeDisabled (owner "local") or auth.ModeJWT.
func newTestEnv(t *testing.T, mode string) *testEnv {
	t.Helper()
	db := testutil.TestDB(t)
	asst := &fakeAssistant{cats: []string{"Work"}}

	reg := notelist.NewRegistry(db, asst)
	tracker := insights.NewTracker(insights.NewService(asst, insights.NewMemoryCache(time.Minute), nil))
	h := NewHandler(reg, tracker, asst, db)
	router := NewRouter(h, auth.Middleware(mode, testSecret, "local"), nil)
	return &testEnv{router: router, db: db, assistant: asst}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) create(t *testing.T, title, content string, headers ...string) models.Note {
	t.Helper()
	w := e.do(t, http.MethodPost, "/notes", map[string]string{"title": title, "content": content}, headers...)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var n models.Note
	if err := json.Unmarshal(w.Body.Bytes(), &n); err != nil {
		t.Fatal(err)
	}
	return n
}

func bearer(t *testing.T, owner string) []string {
	t.Helper()
	tok, err := auth.GenerateToken(owner, testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return []string{"Authorization", "Bearer " + tok}
}

func TestCreateAndGetNote(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Hello", "World")
	if n.ID == "" || n.OwnerID != "local" {
		t.Fatalf("created note = %+v", n)
	}

	w := env.do(t, http.MethodGet, "/notes/"+n.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var detail NoteDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatal(err)
	}
	if detail.Title != "Hello" || detail.Summarizing {
		t.Errorf("detail = %+v", detail)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	w = env.do(t, http.MethodGet, "/notes/"+n.ID, nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", w.Code)
	}
}

func TestCreateNote_Validation(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)

	cases := map[string]any{
		"missing content": map[string]string{"title": "t"},
		"missing title":   map[string]string{"content": "c"},
		"invalid json":    "{not json",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/notes", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestListNotes_OrderAndFilter(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	first := env.create(t, "Groceries", "milk")
	second := env.create(t, "Meeting", "agenda")

	if w := env.do(t, http.MethodPost, "/notes/"+first.ID+"/pin", nil); w.Code != http.StatusOK {
		t.Fatalf("pin status = %d", w.Code)
	}

	w := env.do(t, http.MethodGet, "/notes", nil)
	var resp NoteListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 || len(resp.Notes) != 2 {
		t.Fatalf("list = %+v", resp)
	}
	if resp.Notes[0].ID != first.ID || resp.Notes[1].ID != second.ID {
		t.Errorf("pinned note should come first, got %s, %s", resp.Notes[0].Title, resp.Notes[1].Title)
	}

	w = env.do(t, http.MethodGet, "/notes?q=MEET", nil)
	resp = NoteListResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Notes) != 1 || resp.Notes[0].ID != second.ID {
		t.Errorf("filtered list = %+v", resp.Notes)
	}
}

func TestUpdateNote(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Draft", "body")

	w := env.do(t, http.MethodPatch, "/notes/"+n.ID, map[string]any{"title": "Final", "tags": []string{"work"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body = %s", w.Code, w.Body.String())
	}
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Title != "Final" || got.Content != "body" || len(got.Tags) != 1 {
		t.Errorf("updated note = %+v", got)
	}

	if w := env.do(t, http.MethodPatch, "/notes/"+n.ID, map[string]any{}); w.Code != http.StatusBadRequest {
		t.Errorf("empty patch = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPatch, "/notes/"+n.ID, map[string]any{"title": ""}); w.Code != http.StatusBadRequest {
		t.Errorf("blank title = %d, want 400", w.Code)
	}
	if w := env.do(t, http.MethodPatch, "/notes/nope", map[string]any{"title": "x"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}
}

func TestUpdateNote_IfMatch(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Draft", "body")
	etag := env.do(t, http.MethodGet, "/notes/"+n.ID, nil).Header().Get("ETag")

	w := env.do(t, http.MethodPatch, "/notes/"+n.ID, map[string]any{"content": "v2"}, "If-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("matching If-Match = %d", w.Code)
	}

	// The note changed, so the old ETag is stale.
	w = env.do(t, http.MethodPatch, "/notes/"+n.ID, map[string]any{"content": "v3"}, "If-Match", etag)
	if w.Code != http.StatusConflict {
		t.Errorf("stale If-Match = %d, want 409", w.Code)
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Trash", "me")

	if w := env.do(t, http.MethodDelete, "/notes/"+n.ID, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/notes/"+n.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/notes/"+n.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestSummarizeNote(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Standup", "release planning")

	env.assistant.set(ai.Summary{Summary: models.Ptr("Release sync."), Tags: []string{"work"}}, nil)
	w := env.do(t, http.MethodPost, "/notes/"+n.ID+"/summarize", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summarize status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp SummarizeNoteResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Changed || resp.Note.Summary == nil || *resp.Note.Summary != "Release sync." {
		t.Errorf("summarize response = %+v", resp)
	}

	env.assistant.set(ai.Summary{}, nil)
	w = env.do(t, http.MethodPost, "/notes/"+n.ID+"/summarize", nil)
	resp = SummarizeNoteResponse{}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if w.Code != http.StatusOK || resp.Changed {
		t.Errorf("empty result = %d %+v, want 200 unchanged", w.Code, resp)
	}
	if resp.Note.Summary == nil || *resp.Note.Summary != "Release sync." {
		t.Error("empty result must keep the previous summary")
	}

	env.assistant.set(ai.Summary{}, errors.New("quota exceeded"))
	if w := env.do(t, http.MethodPost, "/notes/"+n.ID+"/summarize", nil); w.Code != http.StatusBadGateway {
		t.Errorf("remote failure = %d, want 502", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/notes/nope/summarize", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id = %d, want 404", w.Code)
	}
}

func TestSummarizeNote_Busy(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Standup", "release planning")
	env.assistant.set(ai.Summary{Summary: models.Ptr("s")}, nil)
	env.assistant.started = make(chan struct{}, 1)
	env.assistant.gate = make(chan struct{})

	done := make(chan int)
	go func() {
		done <- env.do(t, http.MethodPost, "/notes/"+n.ID+"/summarize", nil).Code
	}()
	<-env.assistant.started

	w := env.do(t, http.MethodGet, "/notes/"+n.ID, nil)
	var detail NoteDetail
	_ = json.Unmarshal(w.Body.Bytes(), &detail)
	if !detail.Summarizing {
		t.Error("note should report summarizing while the call is outstanding")
	}

	if w := env.do(t, http.MethodPost, "/notes/"+n.ID+"/summarize", nil); w.Code != http.StatusConflict {
		t.Errorf("second summarize = %d, want 409", w.Code)
	}

	close(env.assistant.gate)
	if code := <-done; code != http.StatusOK {
		t.Errorf("first summarize = %d, want 200", code)
	}
}

func TestToggleFavoriteAndDrawing(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Sketch", "see drawing")

	w := env.do(t, http.MethodPost, "/notes/"+n.ID+"/favorite", nil)
	var got models.Note
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if w.Code != http.StatusOK || !got.Favorite {
		t.Fatalf("favorite = %d %+v", w.Code, got)
	}

	w = env.do(t, http.MethodPut, "/notes/"+n.ID+"/drawing", map[string]string{"drawing": "data:image/png;base64,AAAA"})
	got = models.Note{}
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if w.Code != http.StatusOK || got.Drawing == nil || *got.Drawing != "data:image/png;base64,AAAA" {
		t.Errorf("drawing = %d %+v", w.Code, got)
	}
	if !got.Favorite {
		t.Error("saving a drawing must not reset other fields")
	}
}

func TestExportNote(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Trip plan", "pack bags")

	w := env.do(t, http.MethodGet, "/notes/"+n.ID+"/export.md", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("content type = %q", ct)
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "trip-plan-") {
		t.Errorf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if !strings.HasPrefix(w.Body.String(), "# Trip plan\n") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestInsights(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	n := env.create(t, "Standup", "release planning")
	env.create(t, "Chores", "laundry")
	env.assistant.set(ai.Summary{Summary: models.Ptr("Release sync.")}, nil)
	env.do(t, http.MethodPost, "/notes/"+n.ID+"/summarize", nil)

	w := env.do(t, http.MethodGet, "/insights", nil)
	var resp InsightsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Categories) != 1 || resp.Categories[0] != "Work" {
		t.Errorf("categories = %v", resp.Categories)
	}
	if len(resp.Summarized) != 1 || resp.Summarized[0].ID != n.ID {
		t.Errorf("summarized = %+v", resp.Summarized)
	}
}

func TestAIProxies(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	env.assistant.set(ai.Summary{Summary: models.Ptr("short")}, nil)

	w := env.do(t, http.MethodPost, "/summarize", map[string]string{"title": "t", "content": "long text"})
	var sum SummarizeResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sum)
	if w.Code != http.StatusOK || sum.Summary == nil || *sum.Summary != "short" || sum.Tags == nil {
		t.Errorf("summarize proxy = %d %+v", w.Code, sum)
	}
	if w := env.do(t, http.MethodPost, "/summarize", map[string]string{"title": "t"}); w.Code != http.StatusBadRequest {
		t.Errorf("summarize without content = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/insights", map[string]any{"notes": []models.Note{{ID: "a", Title: "x", Content: "y"}}})
	var cats CategoriesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cats)
	if w.Code != http.StatusOK || len(cats.Categories) != 1 {
		t.Errorf("insights proxy = %d %+v", w.Code, cats)
	}
}

func TestSearchEndpoint(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	env.create(t, "Golang tips", "use context everywhere")
	env.create(t, "Recipes", "pancakes")

	w := env.do(t, http.MethodGet, "/search?q=context", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Title != "Golang tips" {
		t.Errorf("results = %+v", resp.Results)
	}

	if w := env.do(t, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("search no query = %d, want 400", w.Code)
	}
}

func TestSearchEndpoint_QuerySyntaxIsLiteral(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	env.create(t, "Recipes", "pancakes")

	for _, q := range []string{"c%2B%2B", "%25", "%22", "AND%20OR"} {
		w := env.do(t, http.MethodGet, "/search?q="+q, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("search %q status = %d, body %s", q, w.Code, w.Body.String())
		}
		if !strings.Contains(w.Body.String(), `"results":[]`) {
			t.Errorf("search %q body = %s, want empty results array", q, w.Body.String())
		}
	}
}

func TestLoadFailure(t *testing.T) {
	env := newTestEnv(t, auth.ModeDisabled)
	env.db.Close()

	if w := env.do(t, http.MethodGet, "/notes", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("list with broken repository = %d, want 503", w.Code)
	}
}

func TestAuth_JWT(t *testing.T) {
	env := newTestEnv(t, auth.ModeJWT)

	if w := env.do(t, http.MethodGet, "/notes", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/notes", nil, "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}

	alice := bearer(t, "alice")
	n := env.create(t, "Private", "diary", alice...)
	if n.OwnerID != "alice" {
		t.Errorf("owner = %q, want alice", n.OwnerID)
	}

	bob := bearer(t, "bob")
	if w := env.do(t, http.MethodGet, "/notes/"+n.ID, nil, bob...); w.Code != http.StatusNotFound {
		t.Errorf("other owner's note = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodDelete, "/notes/"+n.ID, nil, bob...); w.Code != http.StatusNotFound {
		t.Errorf("deleting other owner's note = %d, want 404", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/notes/"+n.ID, nil, alice...); w.Code != http.StatusOK {
		t.Errorf("own note = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func sseRouter(t *testing.T, mode string) http.Handler {
	t.Helper()
	db := testutil.TestDB(t)
	h := NewHandler(notelist.NewRegistry(db, nil), insights.NewTracker(insights.NewService(nil, nil, nil)), nil, db)

	// SSE stub: writes headers and blocks until the request context ends.
	sseHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
	return NewRouter(h, auth.Middleware(mode, testSecret, "local"), sseHandler)
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	router := sseRouter(t, auth.ModeJWT)

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	router := sseRouter(t, auth.ModeJWT)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	hdr := bearer(t, "alice")
	req.Header.Set(hdr[0], hdr[1])
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

func TestProxiesWithoutAssistant(t *testing.T) {
	router := sseRouter(t, auth.ModeDisabled)

	body := strings.NewReader(`{"title":"t","content":"c"}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/summarize", body))
	if w.Code != http.StatusBadGateway {
		t.Errorf("summarize without backend = %d, want 502", w.Code)
	}
}
