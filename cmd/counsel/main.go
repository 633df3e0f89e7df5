package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/longregen/counsel/internal/config"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "counsel",
		Short: "Counsel - legal intake chat server",
		Long: `Counsel runs the real-time chat that takes in new legal clients:
an AI assistant interviews them, verifies their contact and hands
cases that need a lawyer to the firm's staff.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return setupLogging(cfg.Log)
		},
	}

	rootCmd.AddCommand(
		serveCmd(),
		migrateCmd(),
		tokenCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// configCmd prints the effective configuration with secrets redacted
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg.Redacted())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "Counsel %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Commit:     %s\n", commit)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build Date: %s\n", buildDate)
		},
	}
}
