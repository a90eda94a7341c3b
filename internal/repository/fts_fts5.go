//go:build sqlite_fts5

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/auralis/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			id UNINDEXED,
			owner_id UNINDEXED,
			title,
			content,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, n models.Note) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, n.ID)
	_, err := tx.Exec(`INSERT INTO notes_fts (id, owner_id, title, content, tags) VALUES (?, ?, ?, ?, ?)`,
		n.ID, n.OwnerID, n.Title, n.Content, strings.Join(n.Tags, " "))
	if err != nil {
		return fmt.Errorf("repository: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE id = ?`, id)
}

// matchQuery turns free text into an FTS5 query: every word becomes a quoted
// string, so operators and punctuation in user input are never parsed as
// query syntax. Words without any letter or digit are dropped.
func matchQuery(query string) string {
	var terms []string
	for _, w := range strings.Fields(query) {
		if strings.IndexFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}

// Search performs an FTS5 full-text search over one owner's notes.
func (db *DB) Search(ctx context.Context, ownerID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	out := []SearchResult{}
	match := matchQuery(query)
	if match == "" {
		return out, nil
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id,
		       title,
		       snippet(notes_fts, 3, '<b>', '</b>', '...', 32)
		FROM notes_fts
		WHERE notes_fts MATCH ? AND owner_id = ?
		ORDER BY rank
		LIMIT ?
	`, match, ownerID, limit)
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
