package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cmlabs-hris/hris-leave-ledger/internal/handler/http/response"
	"github.com/redis/go-redis/v9"
)

const (
	IdempotencyHeader  = "Idempotency-Key"
	idempotencyLockTTL = 30 * time.Second
)

type cachedResponse struct {
	Status      int             `json:"status"`
	ContentType string          `json:"content_type"`
	Body        json.RawMessage `json:"body"`
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func idempotencyKeys(r *http.Request, actorID, key string) (string, string) {
	cacheKey := fmt.Sprintf("idemp:%s:%s:%s:%s", r.Method, r.URL.Path, actorID, key)
	return cacheKey, cacheKey + ":lock"
}

func encodeCachedResponse(status int, contentType string, body []byte) ([]byte, error) {
	return json.Marshal(cachedResponse{Status: status, ContentType: contentType, Body: body})
}

// Idempotency replays the stored response for a repeated POST carrying the
// same Idempotency-Key from the same caller. A second request arriving while
// the first is still running gets 409 PROCESSING. When redis is unreachable
// requests pass through unprotected.
func Idempotency(rdb redis.Cmdable, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempKey := r.Header.Get(IdempotencyHeader)
			if idempKey == "" || r.Method != http.MethodPost || rdb == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			actorID := ""
			if actor, ok := ActorFromContext(ctx); ok {
				actorID = actor.ID()
			}
			cacheKey, lockKey := idempotencyKeys(r, actorID, idempKey)

			val, err := rdb.Get(ctx, cacheKey).Bytes()
			switch {
			case err == nil:
				var cached cachedResponse
				if jsonErr := json.Unmarshal(val, &cached); jsonErr == nil {
					w.Header().Set("Content-Type", cached.ContentType)
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(cached.Status)
					_, _ = w.Write(cached.Body)
					return
				}
			case !errors.Is(err, redis.Nil):
				slog.WarnContext(ctx, "Idempotency cache unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			isNew, err := rdb.SetNX(ctx, lockKey, "locked", idempotencyLockTTL).Result()
			if err != nil {
				slog.WarnContext(ctx, "Idempotency lock unavailable", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !isNew {
				response.Conflict(w, "Request with this Idempotency-Key is still being processed", map[string]string{
					"code": "PROCESSING",
				})
				return
			}

			// Released even when next panics.
			defer func() {
				if err := rdb.Del(context.WithoutCancel(ctx), lockKey).Err(); err != nil {
					slog.WarnContext(ctx, "Failed to release idempotency lock", "error", err)
				}
			}()

			rec := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// Server errors are not cached so the client can retry them.
			if rec.status > 0 && rec.status < http.StatusInternalServerError {
				payload, err := encodeCachedResponse(rec.status, rec.Header().Get("Content-Type"), rec.body.Bytes())
				if err == nil {
					err = rdb.Set(ctx, cacheKey, string(payload), ttl).Err()
				}
				if err != nil {
					slog.WarnContext(ctx, "Failed to cache idempotent response", "error", err)
				}
			}
		})
	}
}
