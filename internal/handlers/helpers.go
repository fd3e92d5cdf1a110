package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/ratelimit"
)

// RateLimiter consumes tokens from named buckets. Handlers depend on
// this so tests can substitute fakes.
type RateLimiter interface {
	Allow(ctx context.Context, bucket, key string) (*ratelimit.Result, error)
}

var _ RateLimiter = (*ratelimit.Limiter)(nil)

// respondJSON sends a success envelope with the given payload
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage caps error messages so internal detail does not
// leak to clients through overly long driver errors
func sanitizeErrorMessage(message string) string {
	sanitized := message
	if len(sanitized) > 200 {
		sanitized = sanitized[:200] + "..."
	}
	return sanitized
}

// respondJSONError sends an error envelope with a sanitized message
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondRateLimited sends a 429 with a Retry-After header. retryAfter is
// already rounded up to whole seconds by the limiter.
func respondRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	seconds := int(retryAfter / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	respondJSONError(w, http.StatusTooManyRequests, "Too Many Requests",
		fmt.Sprintf("Rate limit exceeded, try again in %ds", seconds))
}

// allowRate consumes one token from the bucket, writing the 429 response
// when it is exhausted. Returns false when the request must stop. A nil
// limiter never limits, and limiter backend errors fail open so a Redis
// outage does not take requests down with it.
func allowRate(w http.ResponseWriter, r *http.Request, l RateLimiter, logger *zap.Logger, bucket, key string) bool {
	if l == nil {
		return true
	}
	res, err := l.Allow(r.Context(), bucket, key)
	if err != nil {
		if logger != nil {
			logger.Warn("rate_limit_check_failed",
				zap.String("bucket", bucket),
				zap.Error(err),
			)
		}
		return true
	}
	if !res.Allowed {
		respondRateLimited(w, res.RetryAfter)
		return false
	}
	return true
}

// parsePagination reads page and page_size query parameters, applying the
// default and cap. Absent or malformed values fall back silently.
func parsePagination(r *http.Request) (page, pageSize int) {
	page = 1
	if p := r.URL.Query().Get("page"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			page = parsed
		}
	}

	pageSize = DefaultPageSize
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if parsed, err := strconv.Atoi(ps); err == nil && parsed > 0 {
			if parsed > MaxPageSize {
				pageSize = MaxPageSize
			} else {
				pageSize = parsed
			}
		}
	}
	return page, pageSize
}
