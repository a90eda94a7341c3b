package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/auralis/internal/ai"
	"github.com/starford/auralis/internal/auth"
	"github.com/starford/auralis/internal/export"
	"github.com/starford/auralis/internal/insights"
	"github.com/starford/auralis/internal/mcpserver"
	"github.com/starford/auralis/internal/notelist"
	"github.com/starford/auralis/internal/repository"
	"github.com/starford/auralis/internal/storage"
)

// RunMCP serves the notes of ownerID over MCP on stdin/stdout. Logs go to
// stderr because stdout carries the protocol.
func RunMCP(ctx context.Context, ownerID string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if ownerID == "" {
		ownerID = cfg.Auth.DefaultOwner
	}

	logger, _ := newLogger(os.Stderr, cfg.App.LogLevel)

	db, err := repository.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer db.Close()

	cache, closeCache, err := newInsightsCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init insights cache: %w", err)
	}
	defer closeCache()

	aiClient := ai.New(cfg.AI.Client())
	state := notelist.New(db, aiClient, notelist.WithLogger(logger))
	if err := state.Load(ctx, ownerID); err != nil {
		return fmt.Errorf("load notes: %w", err)
	}
	tracker := insights.NewTracker(insights.NewService(aiClient, cache, logger))

	logger.Info("MCP server starting", slog.String("owner", ownerID), slog.Int("notes", state.Len()))
	return mcpserver.New(state, tracker, db, app.version).ServeStdio()
}

// RunExport writes the notes of ownerID, or of every owner when ownerID is
// empty, as Markdown files below cfg.Export.Dir/<owner>/.
func RunExport(ctx context.Context, ownerID string, prune bool, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger, _ := newLogger(os.Stderr, cfg.App.LogLevel)

	db, err := repository.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer db.Close()

	store, err := storage.NewFS(cfg.Export.Dir)
	if err != nil {
		return fmt.Errorf("init export dir: %w", err)
	}

	owners := []string{ownerID}
	if ownerID == "" {
		if owners, err = db.Owners(ctx); err != nil {
			return fmt.Errorf("list owners: %w", err)
		}
	}

	for _, owner := range owners {
		notes, err := db.List(ctx, owner)
		if err != nil {
			return fmt.Errorf("list notes of %s: %w", owner, err)
		}
		res, err := export.Dir(store, owner, notes, prune)
		if err != nil {
			return err
		}
		logger.Info("notes exported",
			slog.String("owner", owner),
			slog.Int("written", res.Written),
			slog.Int("unchanged", res.Unchanged),
			slog.Int("pruned", res.Pruned))
	}
	return nil
}

// IssueToken prints a bearer token for ownerID signed with the configured secret.
func IssueToken(w io.Writer, ownerID string, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	tok, err := auth.GenerateToken(ownerID, cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, tok)
	return err
}
