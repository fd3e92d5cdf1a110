package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/request"
)

// DefaultTouchInterval is the minimum gap between last-active writes for
// one user. Anything finer is churn the product never reads.
const DefaultTouchInterval = time.Minute

// ActivityTracker stamps users.last_active_at for authenticated requests,
// throttled per user so a busy client does not turn every request into a
// write.
type ActivityTracker struct {
	users    database.UserStore
	logger   *zap.Logger
	interval time.Duration

	mu        sync.Mutex
	lastTouch map[uuid.UUID]time.Time
}

// NewActivityTracker creates a new activity tracker
func NewActivityTracker(users database.UserStore, logger *zap.Logger, interval time.Duration) *ActivityTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultTouchInterval
	}
	return &ActivityTracker{
		users:     users,
		logger:    logger,
		interval:  interval,
		lastTouch: make(map[uuid.UUID]time.Time),
	}
}

// Middleware returns the tracking middleware. It only acts on requests
// that already carry a user, so it must sit after Auth in the chain.
func (t *ActivityTracker) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := request.UserFromContext(r); user != nil && t.shouldTouch(user.ID) {
				if err := t.users.TouchLastActive(r.Context(), user.ID); err != nil {
					// Tracking failures never fail the request
					t.logger.Warn("failed_to_touch_last_active",
						zap.String("user_id", user.ID.String()),
						zap.Error(err),
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (t *ActivityTracker) shouldTouch(userID uuid.UUID) bool {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.lastTouch[userID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastTouch[userID] = now
	return true
}
