package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/models"
	"github.com/taskdeck/taskdeck/internal/ratelimit"
	"github.com/ulule/limiter/v3"
)

// NewRatelimitCmd creates the ratelimit configuration command with list,
// set and disable subcommands.
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage per-bucket rate limits",
		Long:  "List or update rate limits per bucket (e.g. send_message 10-M). Overrides are stored in the database and picked up by running servers without a restart.",
	}
	cmd.AddCommand(newRatelimitListCmd())
	cmd.AddCommand(newRatelimitSetCmd())
	cmd.AddCommand(newRatelimitDisableCmd())
	return cmd
}

func newRatelimitListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List effective rate limits per bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			stored, err := repo.GetAll(context.Background())
			if err != nil {
				return fmt.Errorf("list ratelimit config: %w", err)
			}
			printEffectiveRates(stored)
			return nil
		},
	}
}

// printEffectiveRates merges stored overrides over the built-in defaults
// and prints one line per bucket.
func printEffectiveRates(stored []*models.RatelimitConfig) {
	overrides := make(map[string]*models.RatelimitConfig, len(stored))
	for _, c := range stored {
		overrides[c.Bucket] = c
	}

	fmt.Println("Effective rate limits:")
	for _, bucket := range knownBuckets() {
		if c, ok := overrides[bucket]; ok {
			delete(overrides, bucket)
			if !c.Enabled {
				fmt.Printf("  %-14s unlimited (disabled in database)\n", bucket)
				continue
			}
			fmt.Printf("  %-14s %s (database override)\n", bucket, c.Rate)
			continue
		}
		fmt.Printf("  %-14s %s (default)\n", bucket, ratelimit.DefaultRates()[bucket])
	}
	for bucket, c := range overrides {
		// Stored for a bucket no handler consults. Possibly a typo,
		// possibly config staged ahead of a deploy.
		if !c.Enabled {
			fmt.Printf("  %-14s disabled (unknown bucket)\n", bucket)
			continue
		}
		fmt.Printf("  %-14s %s (unknown bucket)\n", bucket, c.Rate)
	}
}

func newRatelimitSetCmd() *cobra.Command {
	var bucket string
	var rate string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set the rate for one bucket",
		Long:  "Store a rate override for one bucket (e.g. 5-S, 100-M, 1000-H). Running servers apply it on their next reload.",
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket = strings.TrimSpace(bucket)
			rate = strings.TrimSpace(rate)
			if bucket == "" {
				return fmt.Errorf("--bucket is required (e.g. %s)", ratelimit.BucketSendMessage)
			}
			if rate == "" {
				return fmt.Errorf("--rate is required (e.g. 5-S, 100-M)")
			}
			if _, err := limiter.NewRateFromFormatted(rate); err != nil {
				return fmt.Errorf("invalid rate %q: %w", rate, err)
			}
			if !isKnownBucket(bucket) {
				fmt.Printf("Warning: %q is not a bucket any handler consults (known: %s)\n",
					bucket, strings.Join(knownBuckets(), ", "))
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			c := &models.RatelimitConfig{Bucket: bucket, Rate: rate, Enabled: true}
			if err := repo.Set(context.Background(), c); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Printf("Rate limit for %s set to %s.\n", bucket, rate)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name (required)")
	cmd.Flags().StringVar(&rate, "rate", "", "Rate (e.g. 5-S, 100-M, 1000-H) (required)")
	return cmd
}

func newRatelimitDisableCmd() *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "disable",
		Short: "Disable limiting for one bucket",
		Long:  "Mark one bucket disabled so its operations run unlimited. Running servers apply it on their next reload.",
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket = strings.TrimSpace(bucket)
			if bucket == "" {
				return fmt.Errorf("--bucket is required (e.g. %s)", ratelimit.BucketSendMessage)
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer func() { _ = db.Close() }()
			repo := database.NewRatelimitConfigRepository(db)
			ctx := context.Background()

			// The schema stores a rate alongside the flag, so keep the
			// existing one (or the default) for when the bucket is
			// re-enabled.
			rate := ratelimit.DefaultRates()[bucket]
			if existing, err := repo.Get(ctx, bucket); err != nil {
				return fmt.Errorf("get ratelimit config: %w", err)
			} else if existing != nil {
				rate = existing.Rate
			}
			if rate == "" {
				return fmt.Errorf("unknown bucket %q has no stored rate to disable (known: %s)",
					bucket, strings.Join(knownBuckets(), ", "))
			}

			c := &models.RatelimitConfig{Bucket: bucket, Rate: rate, Enabled: false}
			if err := repo.Set(ctx, c); err != nil {
				return fmt.Errorf("set ratelimit config: %w", err)
			}
			fmt.Printf("Rate limiting for %s disabled.\n", bucket)
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Bucket name (required)")
	return cmd
}

// knownBuckets returns every bucket the handlers consult, in a stable
// order for printing.
func knownBuckets() []string {
	return []string{
		ratelimit.BucketSignup,
		ratelimit.BucketLogin,
		ratelimit.BucketCreateTask,
		ratelimit.BucketUpdateTask,
		ratelimit.BucketDeleteTask,
		ratelimit.BucketCreateThread,
		ratelimit.BucketSendMessage,
	}
}

func isKnownBucket(bucket string) bool {
	for _, b := range knownBuckets() {
		if b == bucket {
			return true
		}
	}
	return false
}
