package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"fence with preamble", "Here you go:\n```json\n{\"a\": 1}\n```\nenjoy", `{"a": 1}`},
		{"surrounding whitespace", "  {\"a\": 1}\n", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripMarkdownFences(tt.input))
		})
	}
}

func TestParseImprovement(t *testing.T) {
	tests := []struct {
		input    string
		expected float64
	}{
		{"Up to 75% faster", 75},
		{"approximately 12.5% improvement", 12.5},
		{"2x faster", 0},
		{"Unknown", 0},
		{"", 0},
		{"between 30% and 50% faster", 30},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseImprovement(tt.input))
		})
	}
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) *OpenAIEngine {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &OpenAIEngine{
		apiKey:   "test-key",
		model:    DefaultModel,
		endpoint: server.URL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func chatResponse(content string, totalTokens int) map[string]interface{} {
	return map[string]interface{}{
		"model": DefaultModel,
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
		"usage": map[string]int{"total_tokens": totalTokens},
	}
}

func TestOptimize(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Model       string  `json:"model"`
			Temperature float64 `json:"temperature"`
			Messages    []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, 0.1, req.Temperature)
		require.Len(t, req.Messages, 2)
		assert.Contains(t, req.Messages[1].Content, "SELECT * FROM users")
		assert.Contains(t, req.Messages[1].Content, "Existing indexes:")

		content := "```json\n" + `{
			"optimizedQuery": "SELECT id, name FROM users WHERE active = 1",
			"analysis": "The original query scans all columns.",
			"performanceImprovement": "Up to 60% faster",
			"indexSuggestions": ["CREATE INDEX idx_users_active ON users(active)"],
			"structureSuggestions": [],
			"serverSuggestions": ["increase innodb_buffer_pool_size"]
		}` + "\n```"
		_ = json.NewEncoder(w).Encode(chatResponse(content, 1234))
	})

	opt, err := eng.Optimize(context.Background(), "SELECT * FROM users", &Details{
		ExistingIndexes: "PRIMARY KEY (id)",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT id, name FROM users WHERE active = 1", opt.OptimizedQuery)
	assert.Equal(t, "The original query scans all columns.", opt.Explanation)
	assert.Equal(t, 60.0, opt.EstimatedImprovement)
	assert.Equal(t, []string{"CREATE INDEX idx_users_active ON users(active)"}, opt.IndexSuggestions)
	assert.Equal(t, []string{}, opt.SchemaSuggestions)
	assert.Equal(t, 1234.0, opt.CostMetric)
	assert.Equal(t, DefaultModel, opt.Model)
}

func TestOptimizeAPIError(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := eng.Optimize(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrEngineFailed)
}

func TestOptimizeUnparseableContent(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse("I cannot produce JSON today.", 10))
	})

	_, err := eng.Optimize(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrBadEngineJSON)
}

func TestOptimizeNoChoices(t *testing.T) {
	eng := newTestEngine(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
	})

	_, err := eng.Optimize(context.Background(), "SELECT 1", nil)
	assert.ErrorIs(t, err, ErrEngineFailed)
}

func TestNewOpenAIEngineMissingKey(t *testing.T) {
	t.Setenv(EnvOpenAIAPIKey, "")

	_, err := NewOpenAIEngine("")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestNewOpenAIEngineEnvConfig(t *testing.T) {
	t.Setenv(EnvEngineModel, "gpt-4o-mini")
	t.Setenv(EnvEngineTimeout, "30s")

	eng, err := NewOpenAIEngine("test-key")
	require.NoError(t, err)
	defer func() { _ = eng.Close() }()

	assert.Equal(t, "gpt-4o-mini", eng.Model())
	assert.Equal(t, 30*time.Second, eng.httpClient.Timeout)
}
