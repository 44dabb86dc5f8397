package types

// Source identifies where an optimization response came from.
type Source string

const (
	// SourceHistory means a previously validated result was reused.
	SourceHistory Source = "history"
	// SourceEngine means the optimization engine produced a fresh result.
	SourceEngine Source = "engine"
	// SourceError means a critical-path failure occurred.
	SourceError Source = "error"
)

// RequestContext carries the optional structured context submitted with a
// query: schema information, existing indexes, execution-plan output and
// server details. All fields may be empty.
type RequestContext struct {
	TableStructure   string `json:"tableStructure,omitempty"`
	ExistingIndexes  string `json:"existingIndexes,omitempty"`
	PerformanceIssue string `json:"performanceIssue,omitempty"`
	ExplainResults   string `json:"explainResults,omitempty"`
	ServerInfo       string `json:"serverInfo,omitempty"`
}

// Response is the single response contract for all outcomes of an
// optimization request. On SourceError the Explanation carries the
// diagnostic message and all suggestion lists are empty.
type Response struct {
	Source               Source   `json:"source"`
	RequestID            int64    `json:"requestId,omitempty"`
	ResultID             int64    `json:"resultId,omitempty"`
	OptimizedQuery       string   `json:"optimizedQuery"`
	Explanation          string   `json:"explanation"`
	EstimatedImprovement float64  `json:"estimatedImprovement"`
	IndexSuggestions     []string `json:"indexSuggestions"`
	SchemaSuggestions    []string `json:"schemaSuggestions"`
	ServerSuggestions    []string `json:"serverSuggestions"`
	CostMetric           float64  `json:"costMetric,omitempty"`
	Model                string   `json:"model,omitempty"`

	// OriginatingScore is the similarity score of the reuse decision.
	// Only set when Source is SourceHistory.
	OriginatingScore *float64 `json:"originatingScore,omitempty"`
}
