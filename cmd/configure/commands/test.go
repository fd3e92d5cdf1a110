package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/database"
	"github.com/taskdeck/taskdeck/internal/queue"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	var publishThread string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test backing service connectivity",
		Long:  "Test connectivity to PostgreSQL, Redis and RabbitMQ using the current configuration, and optionally publish a title job to exercise the worker end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			fmt.Println("Testing PostgreSQL connection...")
			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}
			fmt.Println("✓ PostgreSQL is reachable")

			fmt.Println("\nTesting Redis connection...")
			redisOpts, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				return fmt.Errorf("invalid redis URL: %w", err)
			}
			redisClient := redis.NewClient(redisOpts)
			defer func() {
				if err := redisClient.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close redis client: %v\n", err)
				}
			}()
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("failed to ping redis: %w", err)
			}
			fmt.Println("✓ Redis is reachable")

			fmt.Println("\nTesting RabbitMQ connection...")
			jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
			if err != nil {
				return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
			}
			defer func() {
				if err := jobQueue.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close RabbitMQ connection: %v\n", err)
				}
			}()
			if err := jobQueue.HealthCheck(ctx); err != nil {
				return fmt.Errorf("RabbitMQ health check failed: %w", err)
			}
			fmt.Println("✓ RabbitMQ is reachable")

			fmt.Println("\n✓ All backing services are reachable")

			if publishThread != "" {
				threadID, err := uuid.Parse(publishThread)
				if err != nil {
					return fmt.Errorf("invalid thread ID %q: %w", publishThread, err)
				}
				thread, err := database.NewThreadRepository(db).GetByID(ctx, threadID)
				if err != nil {
					return fmt.Errorf("failed to load thread: %w", err)
				}
				job := queue.NewJob(queue.JobTypeThreadTitle, thread.UserID, &threadID)
				if err := jobQueue.Enqueue(ctx, job); err != nil {
					return fmt.Errorf("failed to publish title job: %w", err)
				}
				fmt.Printf("\n✓ Published title job %s for thread %s\n", job.ID, threadID)
				fmt.Println("  Watch the worker logs to confirm it was consumed")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&publishThread, "publish-title-job", "", "publish a title job for this thread ID after the connectivity checks")

	return cmd
}
