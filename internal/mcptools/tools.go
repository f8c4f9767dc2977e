// Package mcptools exposes the transcript history as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jwulff/speakify/internal/history"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const defaultLimit = 20

// Tools serves the history of one owner.
type Tools struct {
	store  history.Store
	owner  string
	logger *slog.Logger
}

// New returns Tools for owner.
func New(store history.Store, owner string, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{store: store, owner: owner, logger: logger}
}

// NewServer returns an MCP server with the transcript tools registered.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("speakify", version, server.WithToolCapabilities(false))
	t.Register(s)
	return s
}

// Register adds the tools to s.
func (t *Tools) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("list_transcripts",
		mcp.WithDescription("List saved transcripts, most recent first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of transcripts to return (default 20)."),
			mcp.Min(1),
		),
	), t.ListTranscripts)

	s.AddTool(mcp.NewTool("delete_transcript",
		mcp.WithDescription("Delete a saved transcript by ID."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Transcript ID as returned by list_transcripts."),
		),
	), t.DeleteTranscript)
}

type transcriptView struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
	Duration  int    `json:"duration_seconds"`
	Language  string `json:"language,omitempty"`
}

// ListTranscripts handles list_transcripts.
func (t *Tools) ListTranscripts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	records, err := t.store.List(ctx, t.owner)
	if err != nil {
		t.logger.Error("list transcripts failed", "owner_id", t.owner, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("list transcripts: %v", err)), nil
	}
	history.SortNewestFirst(records)
	if len(records) > limit {
		records = records[:limit]
	}

	views := make([]transcriptView, 0, len(records))
	for _, r := range records {
		views = append(views, transcriptView{
			ID:        r.ID,
			Text:      r.Text,
			CreatedAt: r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			Duration:  r.DurationSeconds,
			Language:  r.Language,
		})
	}
	out, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcripts: %w", err)
	}
	return mcp.NewToolResultText(string(out)), nil
}

// DeleteTranscript handles delete_transcript.
func (t *Tools) DeleteTranscript(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetInt("id", 0)
	if id <= 0 {
		return mcp.NewToolResultError("id must be a positive integer"), nil
	}

	err := t.store.Delete(ctx, t.owner, int64(id))
	switch {
	case errors.Is(err, history.ErrNotFoundOrForbidden):
		return mcp.NewToolResultError(fmt.Sprintf("transcript %d not found", id)), nil
	case err != nil:
		t.logger.Error("delete transcript failed", "owner_id", t.owner, "record_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("delete transcript: %v", err)), nil
	}

	t.logger.Info("transcript deleted", "owner_id", t.owner, "record_id", id)
	return mcp.NewToolResultText(fmt.Sprintf("deleted transcript %d", id)), nil
}
