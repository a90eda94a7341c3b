// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes one owner's notes as tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/auralis/internal/export"
	"github.com/starford/auralis/internal/insights"
	"github.com/starford/auralis/internal/notelist"
	"github.com/starford/auralis/internal/repository"
)

const insightsURI = "auralis://insights"

// Searcher runs full-text queries over an owner's notes.
type Searcher interface {
	Search(ctx context.Context, ownerID, query string, limit int) ([]repository.SearchResult, error)
}

// Server wraps the MCP server with Auralis tools.
type Server struct {
	mcp      *server.MCPServer
	notes    *notelist.State
	insights *insights.Tracker
	search   Searcher
}

// New creates a new MCP server with all tools registered. notes must already
// be loaded for the owner the server acts as.
func New(notes *notelist.State, tracker *insights.Tracker, search Searcher, version string) *Server {
	s := &Server{notes: notes, insights: tracker, search: search}

	s.mcp = server.NewMCPServer(
		"Auralis",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, pinned first then newest first. Optionally filter by a case-insensitive query over title, content and tags."),
		mcp.WithString("query", mcp.Description("Optional filter text")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note as Markdown, including its AI summary and tags."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. Both title and content are required."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Note body")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("summarize_note",
		mcp.WithDescription("Generate and store an AI summary and tags for a note."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.summarizeNote)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, content and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("get_insights",
		mcp.WithDescription("Categories across all notes and the list of summarized notes."),
	), s.getInsights)

	s.mcp.AddResource(
		mcp.NewResource(insightsURI, "Note insights",
			mcp.WithResourceDescription("Categories across all notes and the summarized notes, as JSON."),
			mcp.WithMIMEType("application/json"),
		),
		s.readInsightsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes := s.notes.VisibleNotes(req.GetString("query", ""))
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes"), nil
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		line := n.ID + "\t" + n.Title
		if n.Pinned {
			line += "\t(pinned)"
		}
		lines = append(lines, line)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, ok := s.notes.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(export.Markdown(n)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.notes.Create(ctx, title, content)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) summarizeNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, changed, err := s.notes.Summarize(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if n.ID == "" {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if !changed {
		return mcp.NewToolResultText("nothing to add"), nil
	}
	return jsonResult(n), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.search.Search(ctx, s.notes.Owner(), query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getInsights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.insights.View(ctx, s.notes)), nil
}

func (s *Server) readInsightsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.Marshal(s.insights.View(ctx, s.notes))
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      insightsURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
