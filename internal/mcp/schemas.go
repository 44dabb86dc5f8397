package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// optimizeQueryTool returns the tool definition for optimize_query
func optimizeQueryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "optimize_query",
		Description: "Optimize a SQL query, reusing trusted past optimizations when a similar query has already been answered",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The SQL query to optimize",
				},
				"table_structure": map[string]interface{}{
					"type":        "string",
					"description": "Table definitions and approximate row counts (CREATE TABLE statements)",
				},
				"existing_indexes": map[string]interface{}{
					"type":        "string",
					"description": "Indexes already present on the involved tables",
				},
				"performance_issue": map[string]interface{}{
					"type":        "string",
					"description": "Description of the observed performance problem",
				},
				"explain_results": map[string]interface{}{
					"type":        "string",
					"description": "EXPLAIN output for the query",
				},
				"server_info": map[string]interface{}{
					"type":        "string",
					"description": "Database server version and configuration details",
				},
			},
			Required: []string{"query"},
		},
	}
}

// recordFeedbackTool returns the tool definition for record_feedback
func recordFeedbackTool() mcp.Tool {
	return mcp.Tool{
		Name:        "record_feedback",
		Description: "Record whether an optimization result was useful. Positive feedback makes the result eligible for reuse on similar future queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"result_id": map[string]interface{}{
					"type":        "integer",
					"description": "ID of the optimization result being rated (from an optimize_query response)",
				},
				"useful": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether the optimization was useful",
				},
			},
			Required: []string{"result_id", "useful"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report stored request, result, and feedback counts plus runtime configuration",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
