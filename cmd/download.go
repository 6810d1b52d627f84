package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lvicentini/bsget/internal/app"
	"github.com/lvicentini/bsget/internal/config"
	"github.com/lvicentini/bsget/internal/download"
	"github.com/lvicentini/bsget/internal/notify"
)

func newDownloadCmd(configPath *string) *cobra.Command {
	var (
		startPage  int
		endPage    int
		sequential bool
		staging    string
		outputDir  string
	)

	cmd := &cobra.Command{
		Use:   "download <book_id>",
		Short: "Download one book as a PDF",
		Long: `Downloads every page image of the given book and assembles them, in
page order, into a single PDF in the output directory.

Page fetches run up to 10 at a time by default; a failed page fetch is
retried until it succeeds. Use --staging disk to bound memory use on
large books.`,
		Example: `  # Download a whole book
  bsget download 123456

  # Download pages 10-25 only, staging pages on disk
  bsget download 123456 --start 10 --end 25 --staging disk`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bookID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid book id %q", args[0])
			}

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if outputDir != "" {
				cfg.OutputDir = outputDir
			}
			mode := download.StagingMode(cfg.Staging)
			if staging != "" {
				mode = download.StagingMode(staging)
			}

			a := app.New(cfg, notify.Slog())
			if !a.Login(cmd.Context(), cfg.Email, cfg.Password) {
				return fmt.Errorf("login failed")
			}

			return a.Download(cmd.Context(), bookID, app.DownloadOptions{
				StartPage: startPage,
				EndPage:   endPage,
				Parallel:  !sequential,
				Staging:   mode,
			})
		},
	}

	cmd.Flags().IntVar(&startPage, "start", 0, "First page to download (default: first page)")
	cmd.Flags().IntVar(&endPage, "end", 0, "Last page to download (default: last page)")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "Fetch pages one at a time instead of in parallel")
	cmd.Flags().StringVar(&staging, "staging", "", "Where fetched pages wait for assembly: memory or disk")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default from config, downloads/)")

	return cmd
}
