package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck/internal/config"
	"github.com/taskdeck/taskdeck/internal/database"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show all runtime configuration",
		Long:  "Show the effective rate limits and CORS configuration in one view",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			db, err := database.New(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			ctx := context.Background()

			stored, err := database.NewRatelimitConfigRepository(db).GetAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to list ratelimit config: %w", err)
			}
			printEffectiveRates(stored)

			fmt.Println()

			cors, err := database.NewCorsConfigRepository(db).Get(ctx)
			if err != nil {
				return fmt.Errorf("failed to get cors config: %w", err)
			}
			if cors == nil {
				fmt.Printf("CORS: no database configuration, servers fall back to FRONTEND_URL (%s)\n", cfg.FrontendURL)
				return nil
			}
			fmt.Println("CORS configuration:")
			for _, origin := range database.AllowedOriginsSlice(cors.AllowedOrigins) {
				fmt.Printf("  Allowed origin: %s\n", origin)
			}
			fmt.Printf("  Allow credentials: %v\n", cors.AllowCredentials)
			fmt.Printf("  Max-Age: %d\n", cors.MaxAge)

			return nil
		},
	}

	return cmd
}
