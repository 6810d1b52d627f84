package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bsget",
		Short: "Download books from a bSmart account as PDFs",
		Long: `bsget logs into your bSmart account, lists the books on it, and
downloads a selected book as a single PDF, one page image per page.

Credentials are read from BSGET_EMAIL and BSGET_PASSWORD (a .env file in
the working directory is honored) or from the config file. Nothing is
persisted between runs.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	// Add subcommands
	cmd.AddCommand(newBooksCmd(&configPath))
	cmd.AddCommand(newDownloadCmd(&configPath))

	return cmd
}
