package download

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lvicentini/bsget/internal/notify"
)

func TestNormalizeRange(t *testing.T) {
	tests := []struct {
		name      string
		start     int
		end       int
		pageCount int
		want      PageRange
		wantErr   bool
	}{
		{"full range from zeros", 0, 0, 5, PageRange{1, 5}, false},
		{"oversized request clamped", 0, 100, 5, PageRange{1, 5}, false},
		{"exact range", 2, 4, 5, PageRange{2, 4}, false},
		{"single page", 3, 3, 5, PageRange{3, 3}, false},
		{"negative bounds", -7, -1, 5, PageRange{1, 5}, false},
		{"start beyond count clamped", 9, 0, 5, PageRange{5, 5}, false},
		{"inverted after clamping", 4, 2, 5, PageRange{}, true},
		{"empty book", 1, 1, 0, PageRange{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeRange(tt.start, tt.end, tt.pageCount)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeRange: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeRange = %+v, want %+v", got, tt.want)
			}
			if got.Start < 1 || got.Start > got.End || got.End > tt.pageCount {
				t.Errorf("normalized range %+v violates 1 <= start <= end <= %d", got, tt.pageCount)
			}
		})
	}
}

// recordingDocument captures page payloads in append order.
type recordingDocument struct {
	mu      sync.Mutex
	pages   []string
	written string
}

func (d *recordingDocument) AddImagePage(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages = append(d.pages, string(data))
	return nil
}

func (d *recordingDocument) WriteFile(path string) error {
	d.written = path
	return os.WriteFile(path, []byte("pdf"), 0644)
}

// jitterFetcher serves deterministic per-page payloads after a random
// delay, so parallel completion order is effectively shuffled.
func jitterFetcher() PageFetcher {
	return FetcherFunc(func(ctx context.Context, page int) ([]byte, error) {
		time.Sleep(time.Duration(rand.Intn(20)) * time.Millisecond)
		return []byte(fmt.Sprintf("payload-%d", page)), nil
	})
}

func TestRunAssemblesInPageOrder(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			doc := &recordingDocument{}
			op := NewOperation(jitterFetcher(), notify.Discard())

			path, err := op.Run(context.Background(), "My Book", 30, 0, 0, Options{
				Parallel:    parallel,
				Workers:     10,
				OutputDir:   t.TempDir(),
				NewDocument: func() Document { return doc },
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if op.State() != StateDone {
				t.Errorf("state = %v, want done", op.State())
			}
			if len(doc.pages) != 30 {
				t.Fatalf("assembled %d pages, want 30", len(doc.pages))
			}
			for i, got := range doc.pages {
				if want := fmt.Sprintf("payload-%d", i+1); got != want {
					t.Fatalf("page %d out of order: got %q, want %q", i+1, got, want)
				}
			}
			if filepath.Base(path) != "My Book.pdf" {
				t.Errorf("output path = %q", path)
			}
		})
	}
}

func TestRunSubrangeDiskStaging(t *testing.T) {
	doc := &recordingDocument{}
	op := NewOperation(jitterFetcher(), notify.Discard())

	staging := t.TempDir()
	_, err := op.Run(context.Background(), "My Book", 50, 10, 12, Options{
		Parallel:    true,
		Staging:     StageDisk,
		StagingDir:  staging,
		OutputDir:   t.TempDir(),
		NewDocument: func() Document { return doc },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"payload-10", "payload-11", "payload-12"}
	if len(doc.pages) != len(want) {
		t.Fatalf("assembled %d pages, want %d", len(doc.pages), len(want))
	}
	for i := range want {
		if doc.pages[i] != want[i] {
			t.Errorf("page %d = %q, want %q", i, doc.pages[i], want[i])
		}
	}

	// Staged files are removed after assembly.
	leftovers, err := filepath.Glob(filepath.Join(staging, "bsget-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftovers) != 0 {
		t.Errorf("staging directories not cleaned up: %v", leftovers)
	}
}

func TestRunCountsProgress(t *testing.T) {
	var mu sync.Mutex
	var lines []string
	sink := notify.Func(func(msg string) {
		mu.Lock()
		lines = append(lines, msg)
		mu.Unlock()
	})

	op := NewOperation(jitterFetcher(), sink)
	_, err := op.Run(context.Background(), "b", 5, 0, 0, Options{
		Parallel:    true,
		OutputDir:   t.TempDir(),
		NewDocument: func() Document { return &recordingDocument{} },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(lines) != 5 {
		t.Errorf("got %d progress lines, want 5: %v", len(lines), lines)
	}
}

func TestFetchWithRetryEventuallySucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	fetcher := FetcherFunc(func(ctx context.Context, page int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 4 {
			return nil, fmt.Errorf("transient failure %d", attempts)
		}
		return []byte("ok"), nil
	})

	op := NewOperation(fetcher, notify.Discard())
	data, err := op.fetchWithRetry(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetchWithRetry: %v", err)
	}
	if string(data) != "ok" {
		t.Errorf("data = %q", data)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestFetchWithRetryCancellation(t *testing.T) {
	fetcher := FetcherFunc(func(ctx context.Context, page int) ([]byte, error) {
		return nil, fmt.Errorf("always failing")
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	op := NewOperation(fetcher, notify.Discard())
	done := make(chan error, 1)
	go func() {
		_, err := op.fetchWithRetry(ctx, 1)
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected cancellation error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retry loop did not stop after cancellation")
	}
}

func TestAssembleSkipsMissingPage(t *testing.T) {
	store, err := NewStore(StageMemory, "")
	if err != nil {
		t.Fatal(err)
	}
	store.Put(1, []byte("one"))
	store.Put(3, []byte("three"))

	doc := &recordingDocument{}
	if err := Assemble(doc, store, PageRange{1, 3}); err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(doc.pages) != 2 || doc.pages[0] != "one" || doc.pages[1] != "three" {
		t.Errorf("assembled pages = %v", doc.pages)
	}
}

func TestRunFailsOnInvalidRange(t *testing.T) {
	op := NewOperation(jitterFetcher(), notify.Discard())
	_, err := op.Run(context.Background(), "b", 5, 4, 2, Options{OutputDir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
	if op.State() != StateFailed {
		t.Errorf("state = %v, want failed", op.State())
	}
}
