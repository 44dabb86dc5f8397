package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderLocal  = "local"

	// Environment variables
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvProvider     = "QUERYOPT_EMBEDDING_PROVIDER"

	// Default models
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultJinaModel   = "jina-embeddings-v3"

	// Dimensions
	OpenAIDimension = 1536
	JinaDimension   = 1024
	LocalDimension  = 384

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// apiProvider is the shared HTTP implementation behind the OpenAI and
// Jina providers. Both speak the same embeddings request/response shape.
type apiProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates an embedder backed by the OpenAI API
func NewOpenAIProvider(apiKey string, cache *Cache) (Embedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvOpenAIAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvOpenAIAPIKey)
	}

	return &apiProvider{
		name:      ProviderOpenAI,
		endpoint:  "https://api.openai.com/v1/embeddings",
		apiKey:    apiKey,
		model:     DefaultOpenAIModel,
		dimension: OpenAIDimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}, nil
}

// NewJinaProvider creates an embedder backed by the Jina AI API
func NewJinaProvider(apiKey string, cache *Cache) (Embedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv(EnvJinaAPIKey)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, EnvJinaAPIKey)
	}

	return &apiProvider{
		name:      ProviderJina,
		endpoint:  "https://api.jina.ai/v1/embeddings",
		apiKey:    apiKey,
		model:     DefaultJinaModel,
		dimension: JinaDimension,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}, nil
}

func (p *apiProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if p.cache != nil {
		if emb, ok := p.cache.Get(hash); ok {
			return emb, nil
		}
	}

	config := DefaultRetryConfig()
	emb, err := retryWithBackoff(ctx, config, func() (*Embedding, error) {
		return p.callAPI(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, MaxRetries, err)
	}

	emb.Hash = hash
	if p.cache != nil {
		p.cache.Set(hash, emb)
	}
	return emb, nil
}

func (p *apiProvider) callAPI(ctx context.Context, text string) (*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": p.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	model := apiResp.Model
	if model == "" {
		model = p.model
	}

	return &Embedding{
		Vector:    apiResp.Data[0].Embedding,
		Dimension: len(apiResp.Data[0].Embedding),
		Provider:  p.name,
		Model:     model,
	}, nil
}

func (p *apiProvider) Dimension() int {
	return p.dimension
}

func (p *apiProvider) Provider() string {
	return p.name
}

func (p *apiProvider) Model() string {
	return p.model
}

func (p *apiProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider derives a deterministic pseudo-embedding from the text
// hash. It exists so the service works without any API key; matches
// produced with it only find byte-identical query text, which is still
// correct, just less useful.
type LocalProvider struct {
	model string
	cache *Cache
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		model: "local-hash-v1",
		cache: cache,
	}, nil
}

func (l *LocalProvider) Embed(ctx context.Context, text string) (*Embedding, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	hash := ComputeHash(text)
	if l.cache != nil {
		if emb, ok := l.cache.Get(hash); ok {
			return emb, nil
		}
	}

	vector := make([]float32, LocalDimension)
	textHash := sha256.Sum256([]byte(text))
	for i := 0; i < LocalDimension && i < len(textHash); i++ {
		vector[i] = float32(textHash[i]) / 255.0
	}

	emb := &Embedding{
		Vector:    vector,
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     l.model,
		Hash:      hash,
	}

	if l.cache != nil {
		l.cache.Set(hash, emb)
	}
	return emb, nil
}

func (l *LocalProvider) Dimension() int {
	return LocalDimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Model() string {
	return l.model
}

func (l *LocalProvider) Close() error {
	return nil
}
