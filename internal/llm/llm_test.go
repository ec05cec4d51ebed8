package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/apperr"
	"github.com/ziadkadry99/econsult/internal/config"
)

// MockProvider is a test provider that records calls and returns canned responses.
type MockProvider struct {
	mu       sync.Mutex
	Calls    []CompletionRequest
	Response *CompletionResponse
	Err      error
	ProvName string
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		ProvName: name,
		Response: &CompletionResponse{
			Content:      "mock response",
			InputTokens:  10,
			OutputTokens: 20,
			Model:        "mock-model",
			FinishReason: "stop",
		},
	}
}

func (m *MockProvider) Name() string {
	return m.ProvName
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Response, nil
}

func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- Tests ---

func TestMockProviderRecordsCalls(t *testing.T) {
	mock := NewMockProvider("test")
	ctx := context.Background()

	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := mock.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if resp.TotalTokens() != 30 {
		t.Errorf("expected 30 total tokens, got %d", resp.TotalTokens())
	}

	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
}

func clearKeys(t *testing.T) {
	t.Helper()
	t.Setenv("AZURE_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("HELICONE_API_KEY", "")
	t.Setenv("OLLAMA_HOST", "")
}

func TestFactoryReturnsErrorForMissingAPIKey(t *testing.T) {
	clearKeys(t)

	for _, p := range []config.ProviderType{config.ProviderAzure, config.ProviderOpenAI} {
		cfg := config.DefaultConfig().LLM
		cfg.Provider = p
		cfg.Endpoint = "https://example.openai.azure.com"
		if _, err := NewProvider(cfg, zap.NewNop()); err == nil {
			t.Errorf("expected error for provider %q with missing API key", p)
		}
	}
}

func TestFactoryAzureRequiresEndpoint(t *testing.T) {
	clearKeys(t)
	t.Setenv("AZURE_API_KEY", "k")

	cfg := config.DefaultConfig().LLM
	_, err := NewProvider(cfg, zap.NewNop())
	assert.ErrorContains(t, err, "endpoint")
}

func TestFactoryReturnsErrorForUnknownProvider(t *testing.T) {
	cfg := config.DefaultConfig().LLM
	cfg.Provider = "unknown"
	if _, err := NewProvider(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryWrapsAzureProvider(t *testing.T) {
	clearKeys(t)
	t.Setenv("AZURE_API_KEY", "k")

	cfg := config.DefaultConfig().LLM
	cfg.Endpoint = "https://example.openai.azure.com"
	p, err := NewProvider(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "azure", p.Name())

	bp, ok := p.(*BreakerProvider)
	require.True(t, ok, "expected breaker as outermost wrapper")
	_, ok = bp.provider.(*RateLimitedProvider)
	assert.True(t, ok, "expected rate limiter under the breaker")
}

func TestFactoryCreatesOllamaWithDefaultHost(t *testing.T) {
	clearKeys(t)
	cfg := config.DefaultConfig().LLM
	cfg.Provider = config.ProviderOllama
	cfg.RequestsPerMinute = 0
	cfg.Breaker.Enabled = false

	provider, err := NewProvider(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ollamaP, ok := provider.(*OllamaProvider)
	if !ok {
		t.Fatal("expected *OllamaProvider")
	}
	if ollamaP.baseURL != "http://localhost:11434" {
		t.Errorf("expected default host, got %q", ollamaP.baseURL)
	}
}

func TestAzureClientThroughHelicone(t *testing.T) {
	var gotPath, gotVersion string
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotVersion = r.URL.Query().Get("api-version")
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"ok":true}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	client := NewOpenAIClient(ClientOptions{
		APIKey:          "azure-key",
		Endpoint:        "https://example.openai.azure.com/",
		APIVersion:      "2024-02-01",
		Deployment:      "gpt4o-prod",
		HeliconeKey:     "helicone-key",
		HeliconeBaseURL: srv.URL + "/",
		Model:           "gpt-4o-mini",
	})
	p := NewOpenAIProvider(client, "azure", "gpt-4o-mini")

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: "hoi"}},
		MaxTokens:   100,
		Temperature: 0.1,
		TopP:        1.0,
		JSONMode:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, 12, resp.InputTokens)

	assert.Equal(t, "/openai/deployments/gpt4o-prod/chat/completions", gotPath)
	assert.Equal(t, "2024-02-01", gotVersion)
	assert.Equal(t, "Bearer helicone-key", gotHeaders.Get("Helicone-Auth"))
	assert.Equal(t, "https://example.openai.azure.com/", gotHeaders.Get("Helicone-OpenAI-Api-Base"))
	assert.Equal(t, "gpt-4o-mini", gotHeaders.Get("Helicone-Model-Override"))
	assert.Equal(t, "azure-key", gotHeaders.Get("api-key"))
}

func TestOllamaProviderComplete(t *testing.T) {
	var got ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "antwoord"},
			Model:           "llama3",
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 7,
			EvalCount:       2,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3", zap.NewNop())
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "vraag"}},
		JSONMode: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "antwoord", resp.Content)
	assert.Equal(t, 7, resp.InputTokens)
	assert.Equal(t, "json", got.Format)
	assert.Equal(t, "llama3", got.Model)
	assert.Len(t, got.Messages, 2)
}

func TestOllamaProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "missing", zap.NewNop()).Complete(context.Background(), CompletionRequest{})
	assert.ErrorContains(t, err, "status 404")
	assert.True(t, apperr.IsKind(err, apperr.KindLLM))
}

func TestOllamaProviderJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"model 'llama9' not found, try pulling it first"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "llama9", zap.NewNop()).Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.ErrorContains(t, err, "model 'llama9' not found")
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Details["status"])
}

func TestOllamaProviderKeepsDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewOllamaProvider(srv.URL, "llama3", zap.NewNop()).Complete(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, apperr.IsLLM(err))
}

func TestOpenAIProviderWrapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	p := NewOpenAIProvider(openai.NewClientWithConfig(cfg), "openai", "gpt-4o-mini")

	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hoi"}}})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindLLM))
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusTooManyRequests, appErr.Details["status"])
	assert.Equal(t, "openai", appErr.Details["provider"])
}

func TestRateLimiterPassesThrough(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 60, zap.NewNop())

	ctx := context.Background()
	req := CompletionRequest{
		Model:    "test-model",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	}

	resp, err := rl.Complete(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "mock response" {
		t.Errorf("expected 'mock response', got %q", resp.Content)
	}
	if rl.Name() != "test" {
		t.Errorf("expected name 'test', got %q", rl.Name())
	}
}

func TestRateLimiterFailsFastPastDeadline(t *testing.T) {
	mock := NewMockProvider("test")
	// Two calls per minute: the third would wait 30s.
	rl := NewRateLimitedProvider(mock, 2, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req := CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hoi"}}}

	for i := 0; i < 2; i++ {
		_, err := rl.Complete(ctx, req)
		require.NoError(t, err, "request %d", i)
	}

	start := time.Now()
	_, err := rl.Complete(ctx, req)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "must not sit out the deadline")
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, apperr.IsKind(err, apperr.KindLLM))
	assert.Equal(t, 2, mock.CallCount())
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 2, zap.NewNop())
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.last = now

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		_, err := rl.Complete(ctx, CompletionRequest{})
		require.NoError(t, err)
	}
	_, err := rl.Complete(ctx, CompletionRequest{})
	require.ErrorIs(t, err, ErrRateLimited)

	// A rejected call gives its token back, so 30s buys exactly one call.
	now = now.Add(30 * time.Second)
	_, err = rl.Complete(ctx, CompletionRequest{})
	require.NoError(t, err)
	_, err = rl.Complete(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 3, mock.CallCount())
}

func TestRateLimiterWaitsWithinDeadline(t *testing.T) {
	mock := NewMockProvider("test")
	// 1200 per minute: one token every 50ms.
	rl := NewRateLimitedProvider(mock, 1200, zap.NewNop())
	rl.tokens = 0

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err := rl.Complete(ctx, CompletionRequest{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestRateLimiterHonoursCancel(t *testing.T) {
	mock := NewMockProvider("test")
	rl := NewRateLimitedProvider(mock, 1, zap.NewNop())
	rl.tokens = 0

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := rl.Complete(ctx, CompletionRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, mock.CallCount())
}

func testBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

func TestBreakerTripsAfterFailures(t *testing.T) {
	mock := NewMockProvider("azure")
	mock.Err = errors.New("upstream 500")
	bp := NewBreakerProvider(mock, testBreakerSettings(), zap.NewNop())
	gauge := bp.StateGauge("test")
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))

	for i := 0; i < 5; i++ {
		_, err := bp.Complete(context.Background(), CompletionRequest{})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrCircuitOpen), "call %d should reach the provider", i)
	}
	assert.Equal(t, "open", bp.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	_, err := bp.Complete(context.Background(), CompletionRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 5, mock.CallCount())
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	mock := NewMockProvider("azure")
	bp := NewBreakerProvider(mock, testBreakerSettings(), zap.NewNop())

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			mock.Err = errors.New("flaky")
		} else {
			mock.Err = nil
		}
		bp.Complete(context.Background(), CompletionRequest{})
	}
	assert.Equal(t, "closed", bp.State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	mock := NewMockProvider("azure")
	mock.Err = context.Canceled
	bp := NewBreakerProvider(mock, testBreakerSettings(), zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := bp.Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, "closed", bp.State())
}

func TestEstimateCost(t *testing.T) {
	// gpt-4o-mini: $0.15/1M input, $0.60/1M output
	cost := EstimateCost("gpt-4o-mini", 1_000_000, 1_000_000)
	assert.InDelta(t, 0.75, cost, 0.0001)
	assert.Zero(t, EstimateCost("unknown-model", 1000, 500))
}

func TestRoles(t *testing.T) {
	if RoleSystem != "system" {
		t.Errorf("RoleSystem = %q, want 'system'", RoleSystem)
	}
	if RoleUser != "user" {
		t.Errorf("RoleUser = %q, want 'user'", RoleUser)
	}
	if RoleAssistant != "assistant" {
		t.Errorf("RoleAssistant = %q, want 'assistant'", RoleAssistant)
	}
}
