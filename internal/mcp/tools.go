package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/queryopt/queryopt-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeResultNotFound = -32001 // Feedback references an unknown result
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
)

// handleOptimizeQuery handles the optimize_query tool invocation
func (s *Server) handleOptimizeQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	reqCtx := &types.RequestContext{
		TableStructure:   getStringDefault(args, "table_structure", ""),
		ExistingIndexes:  getStringDefault(args, "existing_indexes", ""),
		PerformanceIssue: getStringDefault(args, "performance_issue", ""),
		ExplainResults:   getStringDefault(args, "explain_results", ""),
		ServerInfo:       getStringDefault(args, "server_info", ""),
	}

	resp := s.orchestrator.Handle(ctx, query, reqCtx)

	response := map[string]interface{}{
		"source":                resp.Source,
		"request_id":            resp.RequestID,
		"result_id":             resp.ResultID,
		"optimized_query":       resp.OptimizedQuery,
		"explanation":           resp.Explanation,
		"estimated_improvement": resp.EstimatedImprovement,
		"index_suggestions":     resp.IndexSuggestions,
		"schema_suggestions":    resp.SchemaSuggestions,
		"server_suggestions":    resp.ServerSuggestions,
		"model":                 resp.Model,
	}
	if resp.OriginatingScore != nil {
		response["originating_score"] = *resp.OriginatingScore
	}
	if resp.Source != types.SourceError {
		response["feedback_hint"] = fmt.Sprintf(
			"Call record_feedback with result_id=%d to rate this optimization", resp.ResultID)
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRecordFeedback handles the record_feedback tool invocation
func (s *Server) handleRecordFeedback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	resultID, ok := getInt64(args, "result_id")
	if !ok || resultID <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "result_id parameter is required and must be a positive integer", map[string]interface{}{
			"param": "result_id",
		})
	}

	useful, ok := args["useful"].(bool)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "useful parameter is required", map[string]interface{}{
			"param":  "useful",
			"reason": "missing or not a boolean",
		})
	}

	feedbackID, err := s.orchestrator.RecordFeedback(ctx, resultID, useful)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, newMCPError(ErrorCodeResultNotFound, "result not found", map[string]interface{}{
				"result_id": resultID,
			})
		}
		if errors.Is(err, types.ErrValidation) {
			return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
		}
		return nil, newMCPError(ErrorCodeInternalError, "failed to record feedback", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"feedback_id": feedbackID,
		"result_id":   resultID,
		"useful":      useful,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.orchestrator.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"requests":          status.Stats.Requests,
			"results":           status.Stats.Results,
			"feedback":          status.Stats.Feedback,
			"positive_feedback": status.Stats.PositiveCount,
			"embeddings":        status.Stats.Embeddings,
			"similarity_links":  status.Stats.SimilarityLinks,
			"database_size_mb":  fmt.Sprintf("%.2f", status.Stats.DatabaseSizeMB),
		},
		"configuration": map[string]interface{}{
			"embedding_provider": status.EmbeddingProvider,
			"engine_model":       status.EngineModel,
			"build_mode":         status.BuildMode,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getInt64 extracts an integer parameter. JSON numbers arrive as
// float64; fractional values are rejected rather than truncated.
func getInt64(args map[string]interface{}, key string) (int64, bool) {
	switch val := args[key].(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	case int:
		return int64(val), true
	case int64:
		return val, true
	default:
		return 0, false
	}
}
