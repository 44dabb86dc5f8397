package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	// Environment variables
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvEngineModel   = "QUERYOPT_ENGINE_MODEL"
	EnvEngineTimeout = "QUERYOPT_ENGINE_TIMEOUT"

	DefaultModel = "gpt-4o"

	// Model calls routinely take tens of seconds on large schemas.
	DefaultTimeout = 90 * time.Second

	openAIChatEndpoint = "https://api.openai.com/v1/chat/completions"

	systemPrompt = "You are a database optimization expert with deep knowledge of MySQL performance tuning. Respond only with valid JSON."
)

// OpenAIEngine implements Engine using the OpenAI chat completions API
type OpenAIEngine struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
}

// NewOpenAIEngine creates an engine backed by the OpenAI API. Model and
// timeout come from the environment when not set explicitly.
func NewOpenAIEngine(apiKey string) (*OpenAIEngine, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoAPIKey, EnvOpenAIAPIKey)
	}

	model := os.Getenv(EnvEngineModel)
	if model == "" {
		model = DefaultModel
	}

	timeout := DefaultTimeout
	if raw := os.Getenv(EnvEngineTimeout); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	return &OpenAIEngine{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIChatEndpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (e *OpenAIEngine) Model() string {
	return e.model
}

func (e *OpenAIEngine) Close() error {
	e.httpClient.CloseIdleConnections()
	return nil
}

// optimizationReply is the JSON shape the model is instructed to emit.
type optimizationReply struct {
	OptimizedQuery         string   `json:"optimizedQuery"`
	Analysis               string   `json:"analysis"`
	PerformanceImprovement string   `json:"performanceImprovement"`
	IndexSuggestions       []string `json:"indexSuggestions"`
	StructureSuggestions   []string `json:"structureSuggestions"`
	ServerSuggestions      []string `json:"serverSuggestions"`
}

func (e *OpenAIEngine) Optimize(ctx context.Context, queryText string, details *Details) (*Optimization, error) {
	prompt := buildPrompt(queryText, details)

	reqBody := map[string]interface{}{
		"model": e.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		// Low temperature keeps optimization verdicts reproducible.
		"temperature": 0.1,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: api error %d: %s", ErrEngineFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrEngineFailed, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrEngineFailed)
	}

	content := StripMarkdownFences(apiResp.Choices[0].Message.Content)

	var reply optimizationReply
	if err := json.Unmarshal([]byte(content), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEngineJSON, err)
	}

	model := apiResp.Model
	if model == "" {
		model = e.model
	}

	return &Optimization{
		OptimizedQuery:       reply.OptimizedQuery,
		Explanation:          reply.Analysis,
		EstimatedImprovement: ParseImprovement(reply.PerformanceImprovement),
		IndexSuggestions:     emptyIfNil(reply.IndexSuggestions),
		SchemaSuggestions:    emptyIfNil(reply.StructureSuggestions),
		ServerSuggestions:    emptyIfNil(reply.ServerSuggestions),
		CostMetric:           float64(apiResp.Usage.TotalTokens),
		Model:                model,
	}, nil
}

// buildPrompt assembles the optimization prompt, including only the
// context sections the caller actually provided.
func buildPrompt(queryText string, details *Details) string {
	var b strings.Builder

	b.WriteString("I need to optimize the following MySQL query:\n\n")
	b.WriteString("```sql\n")
	b.WriteString(queryText)
	b.WriteString("\n```\n")

	if details != nil {
		if details.TableStructure != "" {
			b.WriteString("\nTable structure and record counts:\n" + details.TableStructure + "\n")
		}
		if details.ExistingIndexes != "" {
			b.WriteString("\nExisting indexes:\n" + details.ExistingIndexes + "\n")
		}
		if details.PerformanceIssue != "" {
			b.WriteString("\nCurrent performance issues:\n" + details.PerformanceIssue + "\n")
		}
		if details.ExplainResults != "" {
			b.WriteString("\nEXPLAIN results:\n" + details.ExplainResults + "\n")
		}
		if details.ServerInfo != "" {
			b.WriteString("\nDatabase server information:\n" + details.ServerInfo + "\n")
		}
	}

	b.WriteString(`
Please provide a complete response in JSON format with the following fields:
1. "optimizedQuery": The optimized SQL query
2. "analysis": Detailed analysis of performance issues in the original query
3. "performanceImprovement": Estimated performance improvement (e.g., "Up to 75% faster")
4. "indexSuggestions": Array of suggested indexes to add
5. "structureSuggestions": Array of suggested table structure improvements
6. "serverSuggestions": Array of server configuration suggestions

Format your response as a valid JSON object.`)

	return b.String()
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
