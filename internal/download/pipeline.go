// Package download implements the page fetch and assembly pipeline: a
// bounded worker pool that pulls page images with unconditional
// retry-until-success, stages them in memory or on disk, and assembles
// them in strict page order into a single PDF.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/lvicentini/bsget/internal/notify"
)

// DefaultWorkers bounds in-flight page fetches in parallel mode.
const DefaultWorkers = 10

// State tracks one download operation through its lifecycle. Failed is
// reachable from any state on a terminal upstream error; per-page fetch
// errors never fail an operation, they are retried until they succeed.
type State int

const (
	StateInitializing State = iota
	StateFetching
	StateAssembling
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateFetching:
		return "fetching"
	case StateAssembling:
		return "assembling"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PageRange is an inclusive, 1-based page interval.
type PageRange struct {
	Start int
	End   int
}

// Pages returns the number of pages in the range.
func (r PageRange) Pages() int { return r.End - r.Start + 1 }

// NormalizeRange clamps a requested interval into [1, pageCount]. Zero or
// negative bounds select the corresponding extreme. A range that is still
// inverted after clamping is rejected rather than swapped: swapping would
// fetch pages the caller did not ask for.
func NormalizeRange(start, end, pageCount int) (PageRange, error) {
	if pageCount < 1 {
		return PageRange{}, fmt.Errorf("book has no pages")
	}
	if start < 1 {
		start = 1
	}
	if start > pageCount {
		start = pageCount
	}
	if end < 1 || end > pageCount {
		end = pageCount
	}
	if start > end {
		return PageRange{}, fmt.Errorf("invalid page range %d-%d", start, end)
	}
	return PageRange{Start: start, End: end}, nil
}

// PageFetcher retrieves the raw image bytes of one page. Implementations
// report transport and status errors; the pipeline owns the retry policy.
type PageFetcher interface {
	FetchPage(ctx context.Context, page int) ([]byte, error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc func(ctx context.Context, page int) ([]byte, error)

func (f FetcherFunc) FetchPage(ctx context.Context, page int) ([]byte, error) {
	return f(ctx, page)
}

// Options configure one download operation.
type Options struct {
	// Parallel fetches up to Workers pages concurrently; otherwise pages
	// are fetched one at a time in order.
	Parallel bool
	Workers  int
	Staging  StagingMode
	// StagingDir is the base directory for disk staging (os.TempDir()
	// when empty).
	StagingDir string
	OutputDir  string
	// NewDocument overrides the assembly target; defaults to the PDF
	// implementation.
	NewDocument func() Document
}

// Operation is a single-flight book download. The caller must not run two
// operations for the same book concurrently.
type Operation struct {
	fetcher  PageFetcher
	notifier notify.Notifier
	state    State
}

// NewOperation builds an operation around a page source and a progress
// sink.
func NewOperation(fetcher PageFetcher, notifier notify.Notifier) *Operation {
	if notifier == nil {
		notifier = notify.Discard()
	}
	return &Operation{fetcher: fetcher, notifier: notifier}
}

// State reports the operation's current lifecycle state.
func (o *Operation) State() State { return o.state }

func (o *Operation) setState(s State) {
	o.state = s
	slog.Debug("download state", "state", s.String())
}

// Run fetches the requested pages of a book and assembles them, in
// ascending page order regardless of fetch completion order, into a
// uniquely named PDF under opts.OutputDir. It returns the output path.
func (o *Operation) Run(ctx context.Context, title string, pageCount, start, end int, opts Options) (string, error) {
	o.setState(StateInitializing)

	r, err := NormalizeRange(start, end, pageCount)
	if err != nil {
		o.setState(StateFailed)
		return "", err
	}

	store, err := NewStore(opts.Staging, opts.StagingDir)
	if err != nil {
		o.setState(StateFailed)
		return "", err
	}
	defer store.Close()

	o.setState(StateFetching)
	if err := o.fetchAll(ctx, r, store, opts); err != nil {
		o.setState(StateFailed)
		return "", err
	}

	o.setState(StateAssembling)
	newDoc := opts.NewDocument
	if newDoc == nil {
		newDoc = NewPDFDocument
	}
	doc := newDoc()
	if err := Assemble(doc, store, r); err != nil {
		o.setState(StateFailed)
		return "", err
	}

	o.setState(StateFinalizing)
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = "downloads"
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		o.setState(StateFailed)
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := UniquePath(outDir, SanitizeTitle(title), ".pdf")
	if err := doc.WriteFile(path); err != nil {
		o.setState(StateFailed)
		return "", err
	}

	o.setState(StateDone)
	return path, nil
}

// fetchAll downloads every page in the range into the store. In parallel
// mode completion order is arbitrary; the store keys results by page
// number so assembly order is unaffected.
func (o *Operation) fetchAll(ctx context.Context, r PageRange, store Store, opts Options) error {
	total := r.Pages()

	if !opts.Parallel {
		for page := r.Start; page <= r.End; page++ {
			if err := o.fetchOne(ctx, page, r, total, store); err != nil {
				return err
			}
		}
		return nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for page := r.Start; page <= r.End; page++ {
		g.Go(func() error {
			return o.fetchOne(ctx, page, r, total, store)
		})
	}
	return g.Wait()
}

func (o *Operation) fetchOne(ctx context.Context, page int, r PageRange, total int, store Store) error {
	data, err := o.fetchWithRetry(ctx, page)
	if err != nil {
		return err
	}
	if err := store.Put(page, data); err != nil {
		return err
	}
	o.notifier.Notify(fmt.Sprintf("Downloaded page %d/%d", page-r.Start+1, total))
	return nil
}

// fetchWithRetry retries one page immediately and without limit until it
// succeeds. Deliberate policy for a low-stakes personal tool: eventual
// completion is preferred over bounded latency. The context check between
// attempts keeps a dead network path from blocking shutdown.
func (o *Operation) fetchWithRetry(ctx context.Context, page int) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		data, err := o.fetcher.FetchPage(ctx, page)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("page fetch failed, retrying", "page", page, "attempt", attempt, "error", err)
	}
}

// Assemble appends the staged pages to doc in strictly ascending page
// order. A page absent from the store is unreachable under the fetch
// contract; it is skipped with a warning rather than aborting a download
// that is otherwise complete.
func Assemble(doc Document, store Store, r PageRange) error {
	for page := r.Start; page <= r.End; page++ {
		data, ok, err := store.Get(page)
		if err != nil {
			return err
		}
		if !ok {
			slog.Warn("page missing from staging, skipping", "page", page)
			continue
		}
		if err := doc.AddImagePage(data); err != nil {
			return err
		}
	}
	return nil
}
