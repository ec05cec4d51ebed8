// Package mcp exposes the medical search pipeline as Model Context Protocol
// tools over stdio.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/identity"
	"github.com/ziadkadry99/econsult/internal/search"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Identity is the caller recorded in search history for MCP requests.
const Identity = "mcp"

// Searcher runs the full search pipeline.
type Searcher interface {
	Search(ctx context.Context, ident identity.Context, req search.Request) (*search.Response, error)
}

// SettingsSource supplies the stored default system prompts.
type SettingsSource interface {
	DefaultSystemPrompts(ctx context.Context) (string, error)
}

// Server wraps an MCP server that exposes medical search tools.
type Server struct {
	searcher Searcher
	store    vectordb.VectorStore
	settings SettingsSource
	logger   *zap.Logger
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(searcher Searcher, store vectordb.VectorStore, settings SettingsSource, logger *zap.Logger) *Server {
	s := &Server{
		searcher: searcher,
		store:    store,
		settings: settings,
		logger:   logger,
	}

	s.mcp = server.NewMCPServer(
		"econsult",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

func (s *Server) registerTools() {
	s.mcp.AddTool(medicalSearchTool, s.handleMedicalSearch)
	s.mcp.AddTool(vectorSearchTool, s.handleVectorSearch)
	s.mcp.AddTool(defaultPromptsTool, s.handleDefaultPrompts)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
