package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mkravets/vetriq/internal/interview"
	"github.com/mkravets/vetriq/internal/scorecard"
	"github.com/mkravets/vetriq/internal/session"
	"github.com/mkravets/vetriq/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store     *storage.Store
	Sessions  *session.Store
	Retriever interview.Retriever
}

// NewMCPServer creates an MCP server exposing the interview data to agent
// clients: fused résumé search, scorecard lookup, and a recent-sessions
// resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"vetriq",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vetriq — automated technical interviews with résumé-grounded questions and scored answers."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_resume",
			mcp.WithDescription("Semantically search an interview session's résumé and return relevant excerpts."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of excerpts (default 5)")),
		),
		mcpSearchResume(deps),
	)

	s.AddTool(
		mcp.NewTool("get_scorecard",
			mcp.WithDescription("Fetch the scorecard for an interview session. Running interviews return a partial scorecard."),
			mcp.WithString("session_id", mcp.Description("Interview session id"), mcp.Required()),
		),
		mcpGetScorecard(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"interview://sessions",
			"Recent Interview Sessions",
			mcp.WithResourceDescription("The 10 most recently active interview sessions"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSessions(deps),
	)

	return s
}

func mcpSearchResume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		limit := req.GetInt("limit", 5)
		if limit <= 0 {
			limit = 5
		}
		if limit > 50 {
			limit = 50
		}

		sess, err := deps.Sessions.Get(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("session lookup failed: %v", err)), nil
		}

		docs, err := deps.Retriever.Retrieve(ctx, sess.ResumeID, query)
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if len(docs) > limit {
			docs = docs[:limit]
		}

		type excerpt struct {
			Text  string  `json:"text"`
			Score float64 `json:"score"`
		}
		results := make([]excerpt, len(docs))
		for i, d := range docs {
			results[i] = excerpt{Text: d.Text, Score: d.Score}
		}

		b, err := json.Marshal(results)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetScorecard(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		sess, err := deps.Sessions.Get(sessionID)
		if err != nil {
			return mcpError(fmt.Sprintf("session lookup failed: %v", err)), nil
		}

		report := sess.Report
		if report == nil {
			partial := scorecard.Aggregate(sess.Evaluations, sess.MaxQuestions, sess.Role)
			report = &partial
		}

		b, err := json.Marshal(report)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal scorecard: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSessions(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		infos, err := deps.Store.ListSessions(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}

		type sessionSummary struct {
			ID        string `json:"id"`
			UpdatedAt string `json:"updated_at"`
		}
		summaries := make([]sessionSummary, len(infos))
		for i, info := range infos {
			summaries[i] = sessionSummary{
				ID:        info.ID,
				UpdatedAt: info.UpdatedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sessions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
