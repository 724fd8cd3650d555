// Package mcp exposes the code-validation tools over the Model Context
// Protocol so AI coding agents can call them via stdio.
package mcp

import (
	"context"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/codevet/codevet/internal/service"
)

// Validator is the checker surface the tools dispatch to.
type Validator interface {
	CheckDirectory(ctx context.Context, dir, language string) (*service.DirectoryReport, error)
	CheckCodeContent(ctx context.Context, content, language, filePath string) (*service.ContentReport, error)
	UpdateAndCheck(ctx context.Context, filePath, content, language string) (string, error)
}

// ServerConfig holds MCP server identity.
type ServerConfig struct {
	Name    string
	Version string
}

// ServerDeps holds the dependencies injected into tool handlers.
type ServerDeps struct {
	Validator Validator
}

// Server wraps the MCP protocol server and its tool handlers.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	log       *slog.Logger
	mcpServer *mcpserver.MCPServer
}

// NewServer creates an MCP server with all validation tools registered.
func NewServer(cfg ServerConfig, deps ServerDeps, log *slog.Logger) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(true),
		),
	}
	s.registerTools()
	return s
}

// MCPServer exposes the underlying protocol server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Serve runs the stdio transport until the client disconnects. Stdout
// belongs to the protocol from here on; all logging goes to stderr.
func (s *Server) Serve() error {
	s.log.Info("mcp server serving on stdio", "name", s.cfg.Name, "version", s.cfg.Version)
	return mcpserver.ServeStdio(s.mcpServer)
}

func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
