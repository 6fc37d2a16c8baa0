package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps carries what the MCP server needs to answer tool calls.
type MCPDeps struct {
	Agent   Agent
	Version string
}

// NewMCPServer creates an MCP server with all vitae tools and resources
// registered. Tool handlers report failures as tool errors so a misbehaving
// query never kills the stdio session.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"vitae",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("vitae answers questions about one person's professional background, grounded in their resume and supporting documents."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("query_resume",
			mcp.WithDescription("Ask a natural-language question about the person's professional background. Returns a grounded answer with a confidence score and source documents."),
			mcp.WithString("query", mcp.Description("The question to ask"), mcp.Required()),
		),
		mcpQueryResume(deps),
	)

	s.AddTool(
		mcp.NewTool("match_skills",
			mcp.WithDescription("Check which of the given skills appear in the resume. Returns matched and missing skills plus a match percentage."),
			mcp.WithString("skills", mcp.Description("Comma-separated skill names, e.g. \"python, docker, react\""), mcp.Required()),
		),
		mcpMatchSkills(deps),
	)

	s.AddTool(
		mcp.NewTool("reindex",
			mcp.WithDescription("Re-scan the documents directory and rebuild the index."),
			mcp.WithString("directory", mcp.Description("Directory to index instead of the configured one")),
		),
		mcpReindex(deps),
	)

	s.AddTool(
		mcp.NewTool("resume_summary",
			mcp.WithDescription("Summarize the indexed corpus: document and chunk counts, categories, skills, and sources."),
		),
		mcpResumeSummary(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"resume://summary",
			"Resume Summary",
			mcp.WithResourceDescription("Current corpus summary as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSummary(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"resume://recent-queries",
			"Recent Queries",
			mcp.WithResourceDescription("Last 10 answered queries with categories and confidence"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentQueries(deps),
	)

	return s
}

func mcpQueryResume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		ans, err := deps.Agent.Query(ctx, query)
		if err != nil {
			return mcpError(fmt.Sprintf("query failed: %v", err)), nil
		}

		b, err := json.Marshal(answerJSON(ans))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal answer: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpMatchSkills(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("skills")
		if err != nil {
			return mcpError("skills is required"), nil
		}

		requested := splitSkillList(raw)
		if len(requested) == 0 {
			return mcpError("skills must contain at least one skill name"), nil
		}

		result := deps.Agent.SkillMatch(requested)

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpReindex(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dir := req.GetString("directory", "")

		report, err := deps.Agent.Ingest(ctx, dir)
		if err != nil {
			return mcpError(fmt.Sprintf("reindex failed: %v", err)), nil
		}

		b, err := json.Marshal(ingestReportJSON(report))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal report: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResumeSummary(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(summaryJSON(deps.Agent.Summary()))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal summary: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceSummary(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(summaryJSON(deps.Agent.Summary()))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal summary: %w", err)
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

func mcpResourceRecentQueries(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		records, err := deps.Agent.RecentQueries(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list queries: %w", err)
		}

		b, err := json.Marshal(queryLogJSON(records))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal queries: %w", err)
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

// splitSkillList parses a comma-separated skill string, dropping empties.
func splitSkillList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
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
