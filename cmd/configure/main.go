package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taskdeck/taskdeck/cmd/configure/commands"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "taskdeck-configure",
		Short: "Configuration tool for TaskDeck API",
		Long:  "CLI tool for managing rate limits, CORS and other runtime settings",
	}

	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewCorsCmd())
	rootCmd.AddCommand(commands.NewListCmd())
	rootCmd.AddCommand(commands.NewTestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
