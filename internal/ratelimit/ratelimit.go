package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Bucket names for the write operations that are throttled. Reads are
// never rate limited.
const (
	BucketCreateTask   = "create_task"
	BucketUpdateTask   = "update_task"
	BucketDeleteTask   = "delete_task"
	BucketCreateThread = "create_thread"
	BucketSendMessage  = "send_message"
	BucketSignup       = "signup"
	BucketLogin        = "login"
)

// DefaultRates maps each bucket to its rate in ulule's "<count>-<period>"
// notation. The database config, when present, overrides these.
func DefaultRates() map[string]string {
	return map[string]string{
		BucketCreateTask:   "30-M",
		BucketUpdateTask:   "60-M",
		BucketDeleteTask:   "30-M",
		BucketCreateThread: "2-M",
		BucketSendMessage:  "10-M",
		BucketSignup:       "5-H",
		BucketLogin:        "10-M",
	}
}

// Result reports the outcome of a single Allow call. When Allowed is
// false, RetryAfter is the wait until the window resets, rounded up to
// whole seconds.
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter tracks one ulule limiter instance per named bucket, all
// sharing a single store. Buckets can be retuned at runtime via SetRate
// and Remove, so a reloader can apply database config without restarts.
type Limiter struct {
	store limiter.Store

	mu      sync.RWMutex
	buckets map[string]*limiter.Limiter
}

// New builds a Limiter over the given store with one bucket per entry
// in rates.
func New(store limiter.Store, rates map[string]string) (*Limiter, error) {
	l := &Limiter{
		store:   store,
		buckets: make(map[string]*limiter.Limiter, len(rates)),
	}
	for bucket, rateStr := range rates {
		rate, err := limiter.NewRateFromFormatted(rateStr)
		if err != nil {
			return nil, fmt.Errorf("parse rate %q for bucket %s: %w", rateStr, bucket, err)
		}
		l.buckets[bucket] = limiter.New(store, rate)
	}
	return l, nil
}

// NewRedis builds a Limiter backed by Redis so counters survive restarts
// and are shared across replicas.
func NewRedis(client *redis.Client, rates map[string]string) (*Limiter, error) {
	store, err := redisstore.NewStore(client)
	if err != nil {
		return nil, fmt.Errorf("create redis rate limit store: %w", err)
	}
	return New(store, rates)
}

// Allow consumes one token from the bucket for the given key. Unknown
// buckets are not limited. Tokens are consumed even when the guarded
// operation later fails; they are not refunded.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) (*Result, error) {
	l.mu.RLock()
	instance, ok := l.buckets[bucket]
	l.mu.RUnlock()
	if !ok {
		return &Result{Allowed: true, Remaining: -1}, nil
	}

	lctx, err := instance.Get(ctx, bucket+":"+key)
	if err != nil {
		return nil, fmt.Errorf("rate limit check for bucket %s: %w", bucket, err)
	}

	res := &Result{
		Allowed:   !lctx.Reached,
		Remaining: lctx.Remaining,
	}
	if lctx.Reached {
		res.RetryAfter = ceilSeconds(time.Until(time.Unix(lctx.Reset, 0)))
	}
	return res, nil
}

// SetRate replaces the bucket's rate, creating the bucket if needed.
func (l *Limiter) SetRate(bucket, rateStr string) error {
	rate, err := limiter.NewRateFromFormatted(rateStr)
	if err != nil {
		return fmt.Errorf("parse rate %q for bucket %s: %w", rateStr, bucket, err)
	}
	l.mu.Lock()
	l.buckets[bucket] = limiter.New(l.store, rate)
	l.mu.Unlock()
	return nil
}

// Remove drops the bucket so its operations are no longer limited.
func (l *Limiter) Remove(bucket string) {
	l.mu.Lock()
	delete(l.buckets, bucket)
	l.mu.Unlock()
}

// Rate returns the bucket's current formatted rate and whether the
// bucket exists.
func (l *Limiter) Rate(bucket string) (string, bool) {
	l.mu.RLock()
	instance, ok := l.buckets[bucket]
	l.mu.RUnlock()
	if !ok {
		return "", false
	}
	return instance.Rate.Formatted, true
}

// ceilSeconds rounds d up to whole seconds, never below one second.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Second
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return time.Duration(secs) * time.Second
}
