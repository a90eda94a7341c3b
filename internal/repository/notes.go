package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/auralis/internal/apperr"
	"github.com/starford/auralis/internal/models"
)

const noteColumns = `id, owner_id, title, content, summary, tags, drawing, pinned, favorite, created_at, updated_at`

func newUUID() string {
	return uuid.NewString()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (models.Note, error) {
	var (
		n                      models.Note
		summary, tags, drawing sql.NullString
	)
	err := row.Scan(&n.ID, &n.OwnerID, &n.Title, &n.Content, &summary, &tags, &drawing,
		&n.Pinned, &n.Favorite, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return models.Note{}, err
	}
	if summary.Valid {
		n.Summary = &summary.String
	}
	if drawing.Valid {
		n.Drawing = &drawing.String
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &n.Tags); err != nil {
			return models.Note{}, fmt.Errorf("repository: decode tags of %s: %w", n.ID, err)
		}
	}
	return n, nil
}

// Create inserts a new note owned by ownerID.
func (db *DB) Create(ctx context.Context, ownerID, title, content string) (models.Note, error) {
	if ownerID == "" {
		return models.Note{}, apperr.ErrNoOwner
	}
	if title == "" || content == "" {
		return models.Note{}, apperr.Validation("title and content are required")
	}
	now := db.now().UTC()
	n := models.Note{
		ID:        db.newID(),
		OwnerID:   ownerID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Note{}, fmt.Errorf("repository: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.ExecContext(ctx, `
		INSERT INTO notes (id, owner_id, title, content, pinned, favorite, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, 0, ?, ?)
	`, n.ID, n.OwnerID, n.Title, n.Content, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return models.Note{}, fmt.Errorf("repository: insert note: %w", err)
	}
	if err := ftsUpsert(tx, n); err != nil {
		return models.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, fmt.Errorf("repository: commit: %w", err)
	}
	return n, nil
}

// List returns all notes of ownerID ordered by creation time, newest first.
func (db *DB) List(ctx context.Context, ownerID string) ([]models.Note, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repository: list: %w", err)
	}
	defer rows.Close()

	out := []models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Get returns the note with the given id or apperr.ErrNotFound.
func (db *DB) Get(ctx context.Context, id string) (models.Note, error) {
	return getNote(ctx, db.conn, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getNote(ctx context.Context, q queryRower, id string) (models.Note, error) {
	n, err := scanNote(q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, apperr.ErrNotFound
	}
	if err != nil {
		return models.Note{}, fmt.Errorf("repository: get %s: %w", id, err)
	}
	return n, nil
}

// Update writes only the fields set in patch and bumps updated_at.
func (db *DB) Update(ctx context.Context, id string, patch models.Patch) (models.Note, error) {
	if patch.IsEmpty() {
		return models.Note{}, apperr.ErrNoFields
	}

	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Content != nil {
		set("content", *patch.Content)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Tags != nil {
		tagsJSON, err := json.Marshal(patch.Tags)
		if err != nil {
			return models.Note{}, fmt.Errorf("repository: encode tags: %w", err)
		}
		set("tags", string(tagsJSON))
	}
	if patch.Drawing != nil {
		set("drawing", *patch.Drawing)
	}
	if patch.Pinned != nil {
		set("pinned", *patch.Pinned)
	}
	if patch.Favorite != nil {
		set("favorite", *patch.Favorite)
	}
	set("updated_at", db.now().UTC())
	args = append(args, id)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return models.Note{}, fmt.Errorf("repository: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE notes SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return models.Note{}, fmt.Errorf("repository: update %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return models.Note{}, apperr.ErrNotFound
	}
	n, err := getNote(ctx, tx, id)
	if err != nil {
		return models.Note{}, err
	}
	if err := ftsUpsert(tx, n); err != nil {
		return models.Note{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Note{}, fmt.Errorf("repository: commit: %w", err)
	}
	return n, nil
}

// Delete removes a note and its search entry.
func (db *DB) Delete(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("repository: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("repository: delete %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperr.ErrNotFound
	}
	ftsDelete(tx, id)
	return tx.Commit()
}

// Owners returns the distinct owner ids that have at least one note.
func (db *DB) Owners(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT owner_id FROM notes ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("repository: owners: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
