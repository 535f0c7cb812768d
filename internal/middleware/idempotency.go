package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour

	// A request holding a reservation longer than this is assumed dead.
	idempotencyReservationTTL = 5 * time.Minute

	idempotencyKeyPrefix = "idempotency:"
	reservedMarker       = "reserved"
)

// idempotencyStore is the part of *redis.Client the middleware uses.
type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	Headers    http.Header     `json:"headers"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware returns middleware that replays the stored response for a
// repeated Idempotency-Key, so a retried ride request is never paid twice.
// A retry that arrives while the first request is still running gets 409.
// A nil client disables it.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	if redisClient == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return idempotency(redisClient)
}

func idempotency(redisClient idempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyKeyPrefix + c.FullPath() + ":" + key

		reserved, err := redisClient.SetNX(ctx, cacheKey, reservedMarker, idempotencyReservationTTL).Result()
		if err != nil {
			// Redis error - proceed without idempotency.
			c.Next()
			return
		}

		if !reserved {
			replay(c, redisClient, cacheKey)
			return
		}

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		stored := false
		// Runs even when the handler panics, so a retry is not locked out.
		defer func() {
			if !stored {
				releaseReservation(redisClient, cacheKey)
			}
		}()

		c.Next()

		// Only successful responses are kept; a failed request may be retried.
		if status := c.Writer.Status(); status >= 200 && status < 300 {
			storeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			stored = setCachedResponse(storeCtx, redisClient, cacheKey, &cachedResponse{
				StatusCode: status,
				Body:       w.body.Bytes(),
				Headers:    extractResponseHeaders(c),
			}, idempotencyTTL) == nil
		}
	}
}

// releaseReservation frees cacheKey. It uses its own context because the
// client may already have gone away.
func releaseReservation(client idempotencyStore, cacheKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = client.Del(ctx, cacheKey).Err()
}

// replay writes the stored response for cacheKey, or 409 while the first
// request is still in flight.
func replay(c *gin.Context, client idempotencyStore, cacheKey string) {
	data, err := client.Get(c.Request.Context(), cacheKey).Bytes()
	if err != nil {
		// Expired between SETNX and GET; let the request through.
		c.Next()
		return
	}

	if string(data) == reservedMarker {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error": "a request with this Idempotency-Key is still in progress",
			"code":  "conflict",
		})
		return
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		c.Next()
		return
	}

	for k, v := range cached.Headers {
		for _, val := range v {
			c.Header(k, val)
		}
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(cached.StatusCode, "application/json", cached.Body)
	c.Abort()
}

// setCachedResponse stores a response in Redis.
func setCachedResponse(ctx context.Context, client idempotencyStore, key string, response *cachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}

	return client.Set(ctx, key, data, ttl).Err()
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	// Only cache Content-Type header.
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
