package download

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// StagingMode selects where fetched pages wait for assembly.
type StagingMode string

const (
	// StageMemory keeps raw page bytes resident until assembly.
	StageMemory StagingMode = "memory"
	// StageDisk writes each page to a per-operation temp directory,
	// trading disk I/O for bounded peak memory on large books.
	StageDisk StagingMode = "disk"
)

// Store holds fetched pages keyed by page number until assembly consumes
// them. Each page number is written by exactly one fetch task, so
// implementations only need safe concurrent insertion, not general
// read/write interleaving.
type Store interface {
	Put(page int, data []byte) error
	// Get returns the staged page, or ok=false if it was never stored.
	Get(page int) (data []byte, ok bool, err error)
	// Close releases staged resources after assembly. Safe to call on the
	// error path as well.
	Close() error
}

// NewStore builds a store for one download operation. Disk staging lives
// under baseDir (os.TempDir() when empty) in a directory named by a fresh
// UUID, so two operations can never collide on staging paths.
func NewStore(mode StagingMode, baseDir string) (Store, error) {
	switch mode {
	case StageDisk:
		if baseDir == "" {
			baseDir = os.TempDir()
		}
		dir := filepath.Join(baseDir, "bsget-"+uuid.NewString())
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create staging directory: %w", err)
		}
		return &diskStore{dir: dir}, nil
	case StageMemory, "":
		return &memoryStore{pages: make(map[int][]byte)}, nil
	default:
		return nil, fmt.Errorf("unknown staging mode %q", mode)
	}
}

type memoryStore struct {
	mu    sync.Mutex
	pages map[int][]byte
}

func (s *memoryStore) Put(page int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = data
	return nil
}

func (s *memoryStore) Get(page int) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pages[page]
	return data, ok, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[int][]byte)
	return nil
}

type diskStore struct {
	dir string
}

func (s *diskStore) pagePath(page int) string {
	return filepath.Join(s.dir, strconv.Itoa(page)+".jpg")
}

func (s *diskStore) Put(page int, data []byte) error {
	if err := os.WriteFile(s.pagePath(page), data, 0644); err != nil {
		return fmt.Errorf("failed to stage page %d: %w", page, err)
	}
	return nil
}

func (s *diskStore) Get(page int) ([]byte, bool, error) {
	data, err := os.ReadFile(s.pagePath(page))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read staged page %d: %w", page, err)
	}
	return data, true, nil
}

func (s *diskStore) Close() error {
	return os.RemoveAll(s.dir)
}
