// Package app owns the process-wide application state: the single active
// platform session plus account credentials, and the operations the
// command layer calls. Every operation converts its failures into
// notification lines, so no error escapes to the UI layer unhandled and
// the process stays usable after a failed download.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lvicentini/bsget/internal/bsmart"
	"github.com/lvicentini/bsget/internal/config"
	"github.com/lvicentini/bsget/internal/download"
	"github.com/lvicentini/bsget/internal/notify"
)

// App holds the one live session. Login replaces any previous session;
// nothing is ever persisted across runs.
type App struct {
	cfg      config.Config
	notifier notify.Notifier

	mu      sync.Mutex
	client  *bsmart.Client
	account *bsmart.Account

	// downloading enforces single-flight downloads per process. The
	// staging and output naming are collision safe regardless, but the
	// platform session is not meant to serve two books at once.
	downloading sync.Mutex
}

// New builds the application with its injected notification sink.
func New(cfg config.Config, notifier notify.Notifier) *App {
	if notifier == nil {
		notifier = notify.Slog()
	}
	return &App{cfg: cfg, notifier: notifier}
}

// newClient builds a platform client honoring configured base URL
// overrides.
func (a *App) newClient() *bsmart.Client {
	c := bsmart.NewClient()
	if a.cfg.WebBaseURL != "" {
		c.WebBaseURL = a.cfg.WebBaseURL
	}
	if a.cfg.ReaderBaseURL != "" {
		c.ReaderBaseURL = a.cfg.ReaderBaseURL
	}
	if a.cfg.ImageBaseURL != "" {
		c.ImageBaseURL = a.cfg.ImageBaseURL
	}
	return c
}

// Login performs the login handshake and stores the resulting session as
// the process-wide one, discarding any previous session. Returns false
// with an explanatory notification on any failure; the previous state is
// only replaced on success.
func (a *App) Login(ctx context.Context, email, password string) bool {
	if email == "" || password == "" {
		a.notifier.Notify("Error: email and password are required")
		return false
	}

	a.notifier.Notify("Creating session...")
	client := a.newClient()

	a.notifier.Notify("Logging in...")
	account, err := client.Login(ctx, email, password)
	if err != nil {
		a.notifier.Notify("Error: login failed: " + err.Error())
		return false
	}

	a.mu.Lock()
	a.client = client
	a.account = account
	a.mu.Unlock()

	a.notifier.Notify("Logged in!")
	slog.Debug("login complete", "auth_token_len", len(account.AuthToken))
	return true
}

// session returns the current client and credentials, or
// ErrNotAuthenticated before the first successful login.
func (a *App) session() (*bsmart.Client, *bsmart.Account, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client == nil || a.account == nil {
		return nil, nil, bsmart.ErrNotAuthenticated
	}
	return a.client, a.account, nil
}

// ListBooks returns the account's book list.
func (a *App) ListBooks(ctx context.Context) ([]bsmart.BookSummary, error) {
	client, account, err := a.session()
	if err != nil {
		return nil, err
	}
	a.notifier.Notify("Getting books...")
	return client.ListBooks(ctx, account.AuthToken)
}

// DownloadOptions carry the per-download knobs from the command layer.
type DownloadOptions struct {
	StartPage int
	EndPage   int
	Parallel  bool
	Staging   download.StagingMode
}

// Download runs the whole acquisition pipeline for one book. All terminal
// failures are reported through the notification sink; on failure no
// output file exists. Only one download may run at a time.
func (a *App) Download(ctx context.Context, bookID int, opts DownloadOptions) error {
	if !a.downloading.TryLock() {
		err := fmt.Errorf("another download is already in progress")
		a.notifier.Notify("Error: " + err.Error())
		return err
	}
	defer a.downloading.Unlock()

	path, err := a.download(ctx, bookID, opts)
	if err != nil {
		a.notifier.Notify("Error: download failed: " + err.Error())
		return err
	}
	a.notifier.Notify("Download completed! File saved as " + path)
	return nil
}

func (a *App) download(ctx context.Context, bookID int, opts DownloadOptions) (string, error) {
	client, account, err := a.session()
	if err != nil {
		return "", err
	}

	a.notifier.Notify(fmt.Sprintf("Starting download for book %d...", bookID))

	a.notifier.Notify("Getting book info...")
	info, err := client.GetBookInfo(ctx, account.AuthToken, bookID)
	if err != nil {
		return "", err
	}
	a.notifier.Notify(fmt.Sprintf("Book %q has %d pages", info.Title, info.PageCount))

	a.notifier.Notify("Calculating password...")
	password, err := bsmart.DerivePassword(info)
	if err != nil {
		return "", err
	}

	// The signing key must be recovered fresh for every download: the
	// asset URL changes on every frontend deploy.
	a.notifier.Notify("Locating script asset...")
	scriptURL, err := client.ScriptURL(ctx)
	if err != nil {
		return "", err
	}

	a.notifier.Notify("Extracting signing key...")
	signingKey, err := client.ExtractSigningKey(ctx, scriptURL)
	if err != nil {
		return "", err
	}

	a.notifier.Notify("Creating authorization token...")
	token, err := bsmart.BuildToken(signingKey, info.ID, password)
	if err != nil {
		return "", err
	}

	a.notifier.Notify("Authorizing book access...")
	creds, err := client.ExchangeImageAuth(ctx, info.ID, token)
	if err != nil {
		return "", err
	}

	fetcher := download.FetcherFunc(func(ctx context.Context, page int) ([]byte, error) {
		return client.FetchPage(ctx, info.ID, creds, page)
	})

	op := download.NewOperation(fetcher, a.notifier)
	a.notifier.Notify(fmt.Sprintf("Downloading to %s...", a.cfg.OutputDir))
	return op.Run(ctx, info.Title, info.PageCount, opts.StartPage, opts.EndPage, download.Options{
		Parallel:  opts.Parallel,
		Workers:   a.cfg.Workers,
		Staging:   opts.Staging,
		OutputDir: a.cfg.OutputDir,
	})
}
