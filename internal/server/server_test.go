package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/db"
	"github.com/ziadkadry99/econsult/internal/history"
	"github.com/ziadkadry99/econsult/internal/identity"
	"github.com/ziadkadry99/econsult/internal/llm"
	"github.com/ziadkadry99/econsult/internal/metrics"
	"github.com/ziadkadry99/econsult/internal/prompts"
	"github.com/ziadkadry99/econsult/internal/search"
	"github.com/ziadkadry99/econsult/internal/settings"
	"github.com/ziadkadry99/econsult/internal/vectordb"
)

type stubStore struct{}

func (stubStore) AddDocuments(context.Context, []vectordb.Document) error { return nil }
func (stubStore) DeleteBySource(context.Context, string) error            { return nil }
func (stubStore) Count(context.Context) (int, error)                      { return 1, nil }
func (stubStore) Name() string                                            { return "stub" }
func (stubStore) Close(context.Context) error                             { return nil }

func (stubStore) Search(context.Context, string, int) ([]vectordb.SearchResult, error) {
	return []vectordb.SearchResult{{Document: vectordb.Document{
		Title:   "Koorts",
		URL:     "https://www.thuisarts.nl/koorts",
		Content: "Koorts is een verhoogde lichaamstemperatuur.",
	}, Score: 0.8}}, nil
}

// stubLLM answers the relevancy prompt and then the summary prompt.
type stubLLM struct{ calls int }

func (s *stubLLM) Name() string { return "stub" }

func (s *stubLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	s.calls++
	if s.calls%2 == 1 {
		return &llm.CompletionResponse{Content: `{"relevant_content":[{"title":"Koorts","url":"https://www.thuisarts.nl/koorts","content":"Koorts is een verhoogde lichaamstemperatuur."}]}`}, nil
	}
	return &llm.CompletionResponse{Content: `{"summary":"Drink voldoende.","sources_used":[{"title":"Koorts","url":"https://www.thuisarts.nl/koorts"}]}`}, nil
}

type testServer struct {
	srv     *Server
	metrics *metrics.Collector
	history *history.Store
}

func setup(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	database, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	pm, err := prompts.NewManager("", zap.NewNop())
	require.NoError(t, err)

	collector := metrics.NewCollector("econsult")
	settingsStore := settings.NewStore(database)
	historyStore := history.NewStore(database)
	svc := search.NewService(search.Deps{
		Store:    stubStore{},
		LLM:      &stubLLM{},
		Prompts:  pm,
		Settings: settingsStore,
		History:  historyStore,
		Metrics:  collector,
	}, search.DefaultOptions(), zap.NewNop())

	cfg := Config{Port: 0, AppName: "vector-search-api", Version: "1.2.3"}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg, Deps{
		Settings:          settingsStore,
		SettingsMaxLength: settings.DefaultMaxLength,
		History:           historyStore,
		Search:            svc,
		Metrics:           collector,
	}, zap.NewNop())
	require.NoError(t, err)
	return &testServer{srv: srv, metrics: collector, history: historyStore}
}

func (ts *testServer) do(method, path, body string, header http.Header) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)
	return w
}

var withIdentity = http.Header{"Pp-Identity": []string{"huisarts-7"}, "Pp-Cluster": []string{"zuid"}}

func TestHealthEndpoints(t *testing.T) {
	ts := setup(t, nil)

	w := ts.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"vector-search-api"}`, w.Body.String())

	w = ts.do(http.MethodGet, "/actuator/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())

	w = ts.do(http.MethodGet, "/actuator/info", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"app":{"name":"vector-search-api","version":"1.2.3"}}`, w.Body.String())
}

func TestAPIRequiresIdentity(t *testing.T) {
	ts := setup(t, nil)

	for _, path := range []string{"/api/settings", "/api/search/history", "/api/performance"} {
		w := ts.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"), path)
	}

	w := ts.do(http.MethodGet, "/api/settings", "", withIdentity)
	assert.Equal(t, http.StatusOK, w.Code)

	// The UI itself is public.
	w = ts.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDevelopmentModeDefaultsIdentity(t *testing.T) {
	ts := setup(t, func(c *Config) { c.Development = true })

	w := ts.do(http.MethodGet, "/api/settings", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSearchRecordsHistory(t *testing.T) {
	ts := setup(t, nil)

	w := ts.do(http.MethodPost, "/api/search", `{"query":"Wat te doen bij koorts?"}`, withIdentity)
	require.Equal(t, http.StatusOK, w.Code)

	var resp search.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Drink voldoende.", resp.LLMOutput.Summary)

	w = ts.do(http.MethodGet, "/api/search/history", "", withIdentity)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Wat te doen bij koorts?")

	entries, err := ts.history.List(context.Background(), "huisarts-7", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "zuid", entries[0].ClusterID)
}

func TestPrometheusEndpoint(t *testing.T) {
	ts := setup(t, nil)

	ts.do(http.MethodGet, "/health", "", nil)
	w := ts.do(http.MethodGet, "/actuator/prometheus", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `econsult_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	ts := setup(t, nil)

	w := ts.do(http.MethodOptions, "/api/settings", "", http.Header{
		"Origin":                         []string{"http://example.com"},
		"Access-Control-Request-Method":  []string{"POST"},
		"Access-Control-Request-Headers": []string{identity.HeaderIdentity},
	})
	assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	ts := setup(t, func(c *Config) { c.AllowedOrigins = []string{"https://portal.example"} })

	w := ts.do(http.MethodGet, "/health", "", http.Header{"Origin": []string{"https://evil.example"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(http.MethodGet, "/health", "", http.Header{"Origin": []string{"https://portal.example"}})
	assert.Equal(t, "https://portal.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownAndRunsHooks(t *testing.T) {
	ts := setup(t, nil)

	var order []string
	ts.srv.OnShutdown("eureka", func(context.Context) error {
		order = append(order, "eureka")
		return nil
	})
	ts.srv.OnShutdown("store", func(context.Context) error {
		order = append(order, "store")
		return assert.AnError
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.srv.Serve(ctx, ln, 5*time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, []string{"eureka", "store"}, order)
}
