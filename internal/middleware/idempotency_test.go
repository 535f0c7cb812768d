package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// memoryStore is an in-memory idempotencyStore.
type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = toString(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryStore) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = toString(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newIdempotentRouter(store idempotencyStore, h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), idempotency(store))
	r.POST("/v1/rides", h)
	return r
}

func postWithKey(r *gin.Engine, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/rides", nil)
	req.Header.Set(idempotencyHeader, key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysSuccessfulResponse(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	calls := 0
	r := newIdempotentRouter(store, func(c *gin.Context) {
		calls++
		c.JSON(http.StatusAccepted, gin.H{"call": calls})
	})

	first := postWithKey(r, "abc")
	second := postWithKey(r, "abc")

	if calls != 1 {
		t.Errorf("expected handler to run once, got %d", calls)
	}
	if second.Code != http.StatusAccepted {
		t.Errorf("expected replayed status 202, got %d", second.Code)
	}
	if second.Body.String() != first.Body.String() {
		t.Errorf("expected replayed body %s, got %s", first.Body.String(), second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected Idempotent-Replayed header")
	}
}

func TestIdempotency_InFlightRequestConflicts(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.data[idempotencyKeyPrefix+"/v1/rides:abc"] = reservedMarker
	r := newIdempotentRouter(store, func(c *gin.Context) {
		t.Error("handler must not run while the key is reserved")
	})

	w := postWithKey(r, "abc")
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestIdempotency_FailedResponseFreesKey(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	calls := 0
	r := newIdempotentRouter(store, func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusBadGateway, gin.H{"error": "chain"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{})
	})

	if w := postWithKey(r, "abc"); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	if w := postWithKey(r, "abc"); w.Code != http.StatusAccepted {
		t.Errorf("expected retry to run, got %d", w.Code)
	}
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}

func TestIdempotency_PanicFreesKey(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	calls := 0
	r := newIdempotentRouter(store, func(c *gin.Context) {
		calls++
		if calls == 1 {
			panic("boom")
		}
		c.JSON(http.StatusAccepted, gin.H{})
	})

	if w := postWithKey(r, "abc"); w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 from recovery, got %d", w.Code)
	}
	if store.len() != 0 {
		t.Errorf("expected reservation to be released, got %d keys", store.len())
	}

	if w := postWithKey(r, "abc"); w.Code != http.StatusAccepted {
		t.Errorf("expected retry to run, got %d", w.Code)
	}
}

func TestIdempotency_NilClientPassesThrough(t *testing.T) {
	t.Parallel()

	r := gin.New()
	r.Use(IdempotencyMiddleware(nil))
	calls := 0
	r.POST("/v1/rides", func(c *gin.Context) {
		calls++
		c.Status(http.StatusAccepted)
	})

	postWithKey(r, "abc")
	postWithKey(r, "abc")
	if calls != 2 {
		t.Errorf("expected 2 handler calls, got %d", calls)
	}
}
