package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/identity"
	"github.com/ziadkadry99/econsult/internal/search"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

func (s *Server) handleMedicalSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	req := search.Request{
		Query:              query,
		DoctorInstructions: request.GetString("doctor_instructions", ""),
	}
	resp, err := s.searcher.Search(ctx, identity.Context{UserIdentity: Identity}, req)
	if err != nil {
		_, detail := search.HTTPError(err)
		s.logger.Warn("mcp medical_search failed", zap.Error(err))
		return mcp.NewToolResultError(detail), nil
	}
	if !resp.Success {
		return mcp.NewToolResultText(resp.ErrorMessage), nil
	}
	return mcp.NewToolResultText(formatAnswer(resp.LLMOutput)), nil
}

func (s *Server) handleVectorSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}

	results, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The vector store may be empty. Run `econsult ingest` to load documents."), nil
	}
	return mcp.NewToolResultText(vectordb.FormatResults(results)), nil
}

func (s *Server) handleDefaultPrompts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompts, err := s.settings.DefaultSystemPrompts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read settings: %v", err)), nil
	}
	if prompts == "" {
		return mcp.NewToolResultText("No default system prompts are configured."), nil
	}
	return mcp.NewToolResultText(prompts), nil
}

// formatAnswer renders a summary and its sources as markdown.
func formatAnswer(out search.LLMOutput) string {
	var sb strings.Builder
	sb.WriteString(out.Summary)
	if len(out.SourcesUsed) > 0 {
		sb.WriteString("\n\nBronnen:\n")
		for _, src := range out.SourcesUsed {
			fmt.Fprintf(&sb, "- [%s](%s)\n", src.Title, src.URL)
		}
	}
	return sb.String()
}
