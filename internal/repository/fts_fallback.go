//go:build !sqlite_fts5

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/auralis/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE over the notes table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Note) error {
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns free text into a substring LIKE pattern with the
// wildcard characters matched literally.
func likePattern(query string) string {
	return "%" + likeEscaper.Replace(query) + "%"
}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
// Tags are matched one element at a time, never against the raw JSON.
func (db *DB) Search(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	out := []SearchResult{}
	query = strings.TrimSpace(query)
	if query == "" {
		return out, nil
	}
	like := likePattern(query)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, substr(content, 1, 200)
		FROM notes
		WHERE owner_id = ?
		  AND (title LIKE ? ESCAPE '\'
		       OR content LIKE ? ESCAPE '\'
		       OR EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value LIKE ? ESCAPE '\'))
		ORDER BY created_at DESC
		LIMIT ?
	`, ownerID, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("repository: search: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
