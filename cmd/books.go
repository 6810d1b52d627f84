package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lvicentini/bsget/internal/app"
	"github.com/lvicentini/bsget/internal/config"
	"github.com/lvicentini/bsget/internal/notify"
)

func newBooksCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the books on the account",
		Long: `Logs in with the configured credentials and lists every book on the
account with the id to pass to "bsget download".`,
		Example: `  bsget books`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			a := app.New(cfg, notify.Slog())
			if !a.Login(cmd.Context(), cfg.Email, cfg.Password) {
				return fmt.Errorf("login failed")
			}

			books, err := a.ListBooks(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list books: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPAGES\tTITLE")
			for _, b := range books {
				fmt.Fprintf(w, "%d\t%d\t%s\n", b.ID, b.PageCount, b.Title)
			}
			return w.Flush()
		},
	}

	return cmd
}
