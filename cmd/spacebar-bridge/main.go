package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sparklost/spacebar-bridge/internal/config"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "spacebar-bridge",
		Short: "Bidirectional message bridge between Discord and Spacebar",
		Long: `spacebar-bridge mirrors messages, edits and deletions between a
Discord deployment and a Spacebar-compatible deployment, preserving
reply threading across the bridge.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		runCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd validates and prints the effective configuration.
func configCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate and show the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			fmt.Println("Endpoints:")
			fmt.Printf("  Discord:  %s (cdn %s) token %s\n", cfg.Discord.Host, cfg.Discord.CDNHost, maskSecret(cfg.Discord.Token))
			fmt.Printf("  Spacebar: %s (cdn %s) token %s\n", cfg.Spacebar.Host, cfg.Spacebar.CDNHost, maskSecret(cfg.Spacebar.Token))
			fmt.Println()

			fmt.Println("Bridges:")
			for _, b := range cfg.Bridges {
				fmt.Printf("  %s <-> %s\n", b.DiscordChannelID, b.SpacebarChannelID)
			}
			fmt.Println()

			fmt.Println("Database:")
			if cfg.UsePostgres() {
				fmt.Printf("  PostgreSQL at %s (user %s)\n", cfg.Database.PostgresqlHost, cfg.Database.PostgresqlUser)
			} else {
				fmt.Printf("  SQLite under %s\n", cfg.Database.DirPath)
			}
			fmt.Printf("  Cleanup every %d day(s), pairs kept %d day(s)\n",
				cfg.Database.CleanupDays, cfg.Database.PairLifetimeDays)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "path to config file")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("spacebar-bridge %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
