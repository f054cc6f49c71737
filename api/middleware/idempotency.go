package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/clubemecanico/courses-backend/api/responses"
	pkgerrors "github.com/clubemecanico/courses-backend/pkg/errors"
	"github.com/clubemecanico/courses-backend/pkg/logger"
	pkgredis "github.com/clubemecanico/courses-backend/pkg/redis"
)

const (
	// IdempotencyHeader carries the client-chosen key on cart and checkout writes.
	IdempotencyHeader = "Idempotency-Key"
	// ReplayedHeader is set on responses served from a stored record.
	ReplayedHeader = "Idempotent-Replayed"

	cartIdempotencyTTL     = 24 * time.Hour
	checkoutIdempotencyTTL = 7 * 24 * time.Hour
	inFlightTTL            = 2 * time.Minute
)

// idempotentRoutes maps "METHOD pattern" to how long a completed response is replayed.
// A checkout replay returns the same order instead of opening a second one.
var idempotentRoutes = map[string]time.Duration{
	http.MethodPost + " /api/v1/cart":     cartIdempotencyTTL,
	http.MethodPost + " /api/v1/checkout": checkoutIdempotencyTTL,
}

const (
	stateInFlight  = "in_flight"
	stateCompleted = "completed"
)

// storedResponse is the redis value under an idempotency key. While the first request runs
// the key holds an in_flight marker, so a concurrent duplicate is refused instead of
// creating a second order.
type storedResponse struct {
	State       string `json:"state"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency guards the routes in idempotentRoutes. Other routes pass through untouched.
// Responses with status 5xx or 429 are not stored, so the client may retry with the same key.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, guarded := idempotentRoutes[r.Method+" "+routePattern(r)]
			if !guarded || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(body)
			key := store.IdempotencyKey(idempotencyScope(r), clientKey)

			marker, _ := json.Marshal(storedResponse{State: stateInFlight, RequestHash: hash})
			reserved, err := store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayOrRefuse(ctx, store, key, hash, logg, w)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			finish(ctx, store, key, hash, ttl, capture, logg)
		})
	}
}

// replayOrRefuse answers a request whose key is already taken.
func replayOrRefuse(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, logg *logger.Logger, w http.ResponseWriter) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// the first request failed or its marker expired between SetNX and Get
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this "+IdempotencyHeader+" is being processed; retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, IdempotencyHeader+" reused with a different request body"))
	case stored.State != stateCompleted:
		w.Header().Set("Retry-After", "1")
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this "+IdempotencyHeader+" is being processed; retry"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set(ReplayedHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

// finish swaps the in_flight marker for the completed response, or drops it on 5xx and 429.
func finish(ctx context.Context, store pkgredis.IdempotencyStore, key, hash string, ttl time.Duration, capture *responseCapture, logg *logger.Logger) {
	// the client may have gone away; the record must still be settled
	ctx = context.WithoutCancel(ctx)

	if err := store.Del(ctx, key); err != nil {
		logError(ctx, logg, "release idempotency key", err)
		return
	}
	if status := capture.statusCode(); status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return
	}

	record, err := json.Marshal(storedResponse{
		State:       stateCompleted,
		RequestHash: hash,
		Status:      capture.statusCode(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
	})
	if err != nil {
		logError(ctx, logg, "encode idempotency record", err)
		return
	}
	if _, err := store.SetNX(ctx, key, string(record), ttl); err != nil {
		logError(ctx, logg, "store idempotency record", err)
	}
}

// idempotencyScope ties a key to the caller and route, so two students may pick the same key.
func idempotencyScope(r *http.Request) string {
	return strings.Join([]string{strconv.FormatInt(UserIDFromContext(r.Context()), 10), r.Method, r.URL.Path}, "|")
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(bytes.TrimSpace(body))
	return hex.EncodeToString(sum[:])
}

// routePattern prefers the matched chi pattern. Group middleware runs before the final
// route is matched and sees a wildcard, so it falls back to the path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" && !strings.HasSuffix(pattern, "*") {
			return trimSlash(pattern)
		}
	}
	return trimSlash(r.URL.Path)
}

func trimSlash(p string) string {
	if p == "/" {
		return p
	}
	return strings.TrimSuffix(p, "/")
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
