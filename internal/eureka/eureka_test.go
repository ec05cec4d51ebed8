package eureka

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/config"
)

type recorded struct {
	method string
	path   string
	user   string
	pass   string
	body   map[string]Instance
}

// fakeEureka records requests and answers heartbeats with heartbeatStatus.
// Registrations are answered from postStatuses in order, then with 204.
type fakeEureka struct {
	mu              sync.Mutex
	requests        []recorded
	heartbeatStatus int
	postStatuses    []int
}

func (f *fakeEureka) handler(w http.ResponseWriter, r *http.Request) {
	rec := recorded{method: r.Method, path: r.URL.Path}
	rec.user, rec.pass, _ = r.BasicAuth()
	if r.Method == http.MethodPost {
		json.NewDecoder(r.Body).Decode(&rec.body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	hb := f.heartbeatStatus
	post := http.StatusNoContent
	if r.Method == http.MethodPost && len(f.postStatuses) > 0 {
		post = f.postStatuses[0]
		f.postStatuses = f.postStatuses[1:]
	}
	f.mu.Unlock()

	switch r.Method {
	case http.MethodPost:
		w.WriteHeader(post)
	case http.MethodPut:
		if hb == 0 {
			hb = http.StatusOK
		}
		w.WriteHeader(hb)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (f *fakeEureka) all() []recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recorded(nil), f.requests...)
}

func setup(t *testing.T, mutate func(*config.EurekaConfig)) (*Client, *fakeEureka) {
	t.Helper()
	fake := &fakeEureka{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	cfg := config.EurekaConfig{
		Enabled:      true,
		ServerURL:    srv.URL + "/eureka/",
		AppName:      "vector-search-api",
		InstanceHost: "10.0.0.5",
		InstancePort: 8000,
		Username:     "eureka",
		Password:     "secret",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewClient(cfg, zap.NewNop()), fake
}

func TestRegister(t *testing.T) {
	c, fake := setup(t, nil)

	require.NoError(t, c.Register(context.Background()))
	assert.True(t, c.Registered())

	reqs := fake.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/eureka/apps/VECTOR-SEARCH-API", reqs[0].path)
	assert.Equal(t, "eureka", reqs[0].user)
	assert.Equal(t, "secret", reqs[0].pass)

	inst := reqs[0].body["instance"]
	assert.Equal(t, "10.0.0.5", inst.HostName)
	assert.Equal(t, "VECTOR-SEARCH-API", inst.App)
	assert.Equal(t, "UP", inst.Status)
	assert.Equal(t, 8000, inst.Port.Port)
	assert.Equal(t, "http://10.0.0.5:8000/actuator/health", inst.HealthCheckURL)
	assert.Equal(t, "http://10.0.0.5:8000/actuator/info", inst.StatusPageURL)
	assert.Equal(t, "http://10.0.0.5:8000/", inst.HomePageURL)
	assert.Equal(t, "MyOwn", inst.DataCenterInfo.Name)

	// Second registration is ignored.
	require.NoError(t, c.Register(context.Background()))
	assert.Len(t, fake.all(), 1)
}

func TestNoAuthWithoutPassword(t *testing.T) {
	c, fake := setup(t, func(cfg *config.EurekaConfig) { cfg.Password = "" })

	require.NoError(t, c.Register(context.Background()))
	assert.Empty(t, fake.all()[0].user)
}

func TestHeartbeatAndDeregister(t *testing.T) {
	c, fake := setup(t, nil)
	ctx := context.Background()

	// Not registered yet: nothing to remove.
	require.NoError(t, c.Deregister(ctx))
	assert.Empty(t, fake.all())

	require.NoError(t, c.Register(ctx))
	require.NoError(t, c.Heartbeat(ctx))
	require.NoError(t, c.Deregister(ctx))
	assert.False(t, c.Registered())

	reqs := fake.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodPut, reqs[1].method)
	assert.Equal(t, "/eureka/apps/VECTOR-SEARCH-API/10.0.0.5:vector-search-api:8000", reqs[1].path)
	assert.Equal(t, http.MethodDelete, reqs[2].method)
	assert.Equal(t, reqs[1].path, reqs[2].path)
	assert.Equal(t, "eureka", reqs[2].user)
}

func TestHeartbeatNotFoundReregisters(t *testing.T) {
	c, fake := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx))
	fake.mu.Lock()
	fake.heartbeatStatus = http.StatusNotFound
	fake.mu.Unlock()

	require.NoError(t, c.Heartbeat(ctx))
	reqs := fake.all()
	require.Len(t, reqs, 3)
	assert.Equal(t, http.MethodPut, reqs[1].method)
	assert.Equal(t, http.MethodPost, reqs[2].method)
	assert.True(t, c.Registered())
}

func TestHeartbeatServerError(t *testing.T) {
	c, fake := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx))
	fake.mu.Lock()
	fake.heartbeatStatus = http.StatusInternalServerError
	fake.mu.Unlock()

	err := c.Heartbeat(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}

func TestRegisterFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(config.EurekaConfig{Enabled: true, ServerURL: srv.URL, AppName: "x", InstanceHost: "h", InstancePort: 1}, zap.NewNop())
	err := c.Register(context.Background())
	require.Error(t, err)
	assert.False(t, c.Registered())
}

func TestDisabledClientNoops(t *testing.T) {
	c, fake := setup(t, func(cfg *config.EurekaConfig) { cfg.Enabled = false })
	ctx := context.Background()

	require.NoError(t, c.Register(ctx))
	require.NoError(t, c.Heartbeat(ctx))
	require.NoError(t, c.Deregister(ctx))
	assert.False(t, c.Registered())
	assert.Empty(t, fake.all())

	r := NewRegistrar(c, "", zap.NewNop())
	require.NoError(t, r.Start(ctx))
	require.NoError(t, r.Stop(ctx))
	assert.Empty(t, fake.all())
}

func TestRegistrarHeartbeats(t *testing.T) {
	c, fake := setup(t, nil)
	r := NewRegistrar(c, "@every 1s", zap.NewNop())

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool {
		for _, req := range fake.all() {
			if req.method == http.MethodPut {
				return true
			}
		}
		return false
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	reqs := fake.all()
	assert.Equal(t, http.MethodDelete, reqs[len(reqs)-1].method)
	assert.False(t, c.Registered())
}

func TestRegistrarRejectsBadSchedule(t *testing.T) {
	c, _ := setup(t, nil)
	r := NewRegistrar(c, "every now and then", zap.NewNop())

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule eureka heartbeat")
	assert.False(t, c.Registered())
}

func TestHeartbeatRegistersWhenNotRegistered(t *testing.T) {
	c, fake := setup(t, nil)
	ctx := context.Background()

	require.NoError(t, c.Heartbeat(ctx))
	assert.True(t, c.Registered())

	reqs := fake.all()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
}

func TestRegistrarRetriesFailedRegistration(t *testing.T) {
	c, fake := setup(t, nil)
	fake.postStatuses = []int{http.StatusServiceUnavailable}
	r := NewRegistrar(c, "@every 1s", zap.NewNop())

	err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
	assert.False(t, c.Registered())

	assert.Eventually(t, c.Registered, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))

	var posts int
	for _, req := range fake.all() {
		if req.method == http.MethodPost {
			posts++
		}
	}
	assert.Equal(t, 2, posts)
}
