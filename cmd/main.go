package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"posbridge/config"
	"posbridge/pkg/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "posbridge",
		Short:   "Storefront webhook to iiko POS order bridge",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(workerCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
