package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]float32{}}
}

func (m *memoryCache) GetEmbedding(_ context.Context, model, text string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[model+"|"+text]
	return v, ok, nil
}

func (m *memoryCache) SetEmbedding(_ context.Context, model, text string, vec []float32, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[model+"|"+text] = vec
	return nil
}

func testConfig(url string) Config {
	return Config{
		APIURL:       url,
		APIKey:       "test-key",
		Model:        "test-model",
		Dimension:    3,
		Timeout:      time.Second,
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
	}
}

func embeddingServer(t *testing.T, vec []float32, calls *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": vec}},
		})
	}))
}

func TestEmbedSuccess(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, []float32{0.1, 0.2, 0.3}, &calls)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	vec, degraded := c.Embed(context.Background(), "Ancient Egypt Explorer")

	assert.False(t, degraded)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedUsesCache(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, []float32{1, 2, 3}, &calls)
	defer srv.Close()

	cache := newMemoryCache()
	c := NewClient(testConfig(srv.URL), cache)

	first, _ := c.Embed(context.Background(), "same text")
	second, degraded := c.Embed(context.Background(), "same text")

	assert.False(t, degraded)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedFallsBackToZeroVectorOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream down"}}`))
	}))
	defer srv.Close()

	cache := newMemoryCache()
	c := NewClient(testConfig(srv.URL), cache)
	vec, degraded := c.Embed(context.Background(), "text")

	assert.True(t, degraded)
	assert.Equal(t, []float32{0, 0, 0}, vec)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "initial attempt plus two retries")
	assert.Empty(t, cache.data, "fallback vectors are not cached")
}

func TestEmbedDoesNotRetryAuthFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	vec, degraded := c.Embed(context.Background(), "text")

	assert.True(t, degraded)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	var calls int32
	srv := embeddingServer(t, []float32{0.5, 0.5}, &calls)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	vec, degraded := c.Embed(context.Background(), "text")

	assert.True(t, degraded)
	assert.Equal(t, []float32{0, 0, 0}, vec)
}

func TestEmbedMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": "nope"}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, degraded := c.Embed(context.Background(), "text")

	assert.True(t, degraded)
}

func TestEmbedTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	cfg.MaxRetries = 0
	c := NewClient(cfg, nil)

	start := time.Now()
	vec, degraded := c.Embed(context.Background(), "slow")

	assert.True(t, degraded)
	assert.Len(t, vec, 3)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmbedWithoutAPIKey(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:0")
	cfg.APIKey = ""
	c := NewClient(cfg, nil)

	vec, degraded := c.Embed(context.Background(), "text")

	assert.True(t, degraded)
	assert.Len(t, vec, 3)
}

func TestEmbedStopsRetryingBeforeCallerDeadline(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 150 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.InitialDelay = 5 * time.Millisecond
	c := NewClient(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	vec, degraded := c.Embed(ctx, "never answered")

	assert.True(t, degraded)
	assert.Len(t, vec, 3)
	assert.NoError(t, ctx.Err(), "caller keeps time for its own work")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "third attempt would overrun the deadline")
}
