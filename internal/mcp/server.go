// Package mcp exposes the optimization service over the Model Context
// Protocol on stdio.
package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/queryopt/queryopt-mcp/internal/embedder"
	"github.com/queryopt/queryopt-mcp/internal/engine"
	"github.com/queryopt/queryopt-mcp/internal/index"
	"github.com/queryopt/queryopt-mcp/internal/orchestrator"
	"github.com/queryopt/queryopt-mcp/internal/resolver"
	"github.com/queryopt/queryopt-mcp/internal/storage"
	"github.com/queryopt/queryopt-mcp/internal/trust"
)

const (
	// ServerName is the MCP server name
	ServerName = "queryopt-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the database
	DefaultDBPath = "~/.queryopt"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp          *server.MCPServer
	storage      storage.Storage
	orchestrator *orchestrator.Orchestrator
	embedder     embedder.Embedder
	engine       engine.Engine
}

// NewServer creates a new MCP server instance
func NewServer(dbPath string) (*Server, error) {
	// Expand home directory if needed
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".queryopt")
	}

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	dbFile := filepath.Join(dbPath, "queryopt.db")

	store, err := storage.NewSQLiteStorage(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	eng, err := engine.NewOpenAIEngine("")
	if err != nil {
		_ = store.Close()
		_ = emb.Close()
		return nil, fmt.Errorf("failed to initialize optimization engine: %w", err)
	}

	ix := index.New(store, emb)
	gate := trust.NewGate(store)
	res := resolver.New(store, ix, gate, resolver.DefaultOptions())
	orch := orchestrator.New(store, res, eng, ix)

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:          mcpServer,
		storage:      store,
		orchestrator: orch,
		embedder:     emb,
		engine:       eng,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until ctx is
// cancelled or stdin closes. Background work drains before it returns.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.orchestrator.Close()
		_ = s.engine.Close()
		_ = s.embedder.Close()
		_ = s.storage.Close()
	}()
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(optimizeQueryTool(), s.handleOptimizeQuery)
	s.mcp.AddTool(recordFeedbackTool(), s.handleRecordFeedback)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	return nil
}
