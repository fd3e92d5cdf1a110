package ratelimit

import (
	"context"
	"time"

	"github.com/taskdeck/taskdeck/internal/models"
	"go.uber.org/zap"
)

// ConfigStore is the slice of the database layer the reloader needs.
type ConfigStore interface {
	GetAll(ctx context.Context) ([]*models.RatelimitConfig, error)
}

// Reloader periodically applies rate limit config from the database to
// a Limiter, so operators can retune buckets without restarts.
type Reloader struct {
	limiter  *Limiter
	repo     ConfigStore
	log      *zap.Logger
	interval time.Duration
}

func NewReloader(l *Limiter, repo ConfigStore, log *zap.Logger, reloadInterval time.Duration) *Reloader {
	return &Reloader{
		limiter:  l,
		repo:     repo,
		log:      log,
		interval: reloadInterval,
	}
}

// Start applies the config once, then keeps reapplying it on the
// reload interval until ctx is cancelled.
func (r *Reloader) Start(ctx context.Context) {
	r.load(ctx)
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.load(ctx)
		}
	}
}

func (r *Reloader) load(ctx context.Context) {
	configs, err := r.repo.GetAll(ctx)
	if err != nil {
		r.log.Warn("failed_to_load_ratelimit_config_keeping_current_rates",
			zap.Error(err),
		)
		return
	}

	for _, cfg := range configs {
		if !cfg.Enabled {
			r.limiter.Remove(cfg.Bucket)
			continue
		}
		current, ok := r.limiter.Rate(cfg.Bucket)
		if ok && current == cfg.Rate {
			continue
		}
		if err := r.limiter.SetRate(cfg.Bucket, cfg.Rate); err != nil {
			r.log.Error("failed_to_apply_ratelimit_config_keeping_current_rate",
				zap.Error(err),
				zap.String("bucket", cfg.Bucket),
				zap.String("rate", cfg.Rate),
			)
			continue
		}
		r.log.Info("ratelimit_bucket_updated",
			zap.String("bucket", cfg.Bucket),
			zap.String("rate", cfg.Rate),
		)
	}
}
