package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/taskdeck/taskdeck/internal/models"
)

// RatelimitConfigRepository handles per-bucket rate limit configuration in
// the database.
type RatelimitConfigRepository struct {
	db *DB
}

// NewRatelimitConfigRepository creates a new ratelimit config repository.
func NewRatelimitConfigRepository(db *DB) *RatelimitConfigRepository {
	return &RatelimitConfigRepository{db: db}
}

// Get retrieves the config for one bucket. Returns nil when the bucket has
// no stored config.
func (r *RatelimitConfigRepository) Get(ctx context.Context, bucket string) (*models.RatelimitConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT bucket, rate, enabled, created_at, updated_at
		FROM ratelimit_config WHERE bucket = $1
	`, bucket)
	c := &models.RatelimitConfig{}
	err := row.Scan(&c.Bucket, &c.Rate, &c.Enabled, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ratelimit config: %w", err)
	}
	return c, nil
}

// GetAll retrieves every stored bucket config.
func (r *RatelimitConfigRepository) GetAll(ctx context.Context) ([]*models.RatelimitConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT bucket, rate, enabled, created_at, updated_at
		FROM ratelimit_config
		ORDER BY bucket
	`)
	if err != nil {
		return nil, fmt.Errorf("list ratelimit config: %w", err)
	}
	defer rows.Close()

	var configs []*models.RatelimitConfig
	for rows.Next() {
		c := &models.RatelimitConfig{}
		if err := rows.Scan(&c.Bucket, &c.Rate, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ratelimit config: %w", err)
		}
		configs = append(configs, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ratelimit config: %w", err)
	}

	return configs, nil
}

// Set upserts one bucket's config. Rate format: e.g. "2-M", "10-S".
func (r *RatelimitConfigRepository) Set(ctx context.Context, c *models.RatelimitConfig) error {
	bucket := strings.TrimSpace(c.Bucket)
	rate := strings.TrimSpace(c.Rate)
	if bucket == "" {
		return fmt.Errorf("bucket cannot be empty")
	}
	if rate == "" {
		return fmt.Errorf("rate cannot be empty")
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ratelimit_config (bucket, rate, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (bucket) DO UPDATE SET
			rate = EXCLUDED.rate,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`, bucket, rate, c.Enabled, now, now)
	if err != nil {
		return fmt.Errorf("set ratelimit config: %w", err)
	}
	return nil
}
