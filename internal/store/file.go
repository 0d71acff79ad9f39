package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/matthewbaird/canvas/internal/types"
)

const (
	lockFile      = ".canvas.lock"
	lockRetry     = 25 * time.Millisecond
	fileExtension = ".json"
)

// FileStore implements Store as a directory of JSON files, one per
// document. An advisory lock file serializes writers across processes so
// canvasctl and the server can share a directory.
type FileStore struct {
	dir string
	// mu serializes access within the process; the flock only excludes
	// other processes.
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

// NewFileStore creates dir if needed and returns a store rooted at it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}
	return &FileStore{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFile)),
		now:  time.Now,
	}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExtension)
}

func (s *FileStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = s.lock.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = s.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("store: locking %s: %w", s.dir, err)
	}
	if !ok {
		return fmt.Errorf("store: locking %s: lock not acquired", s.dir)
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *FileStore) Save(ctx context.Context, doc types.Document) (types.Document, error) {
	err := s.withLock(ctx, true, func() error {
		var prev time.Time
		if doc.ID != "" && ValidID(doc.ID) {
			old, err := s.read(doc.ID)
			switch {
			case err == nil:
				prev = old.CreatedAt
			case !errors.Is(err, ErrNotFound):
				return err
			}
		}
		if err := stamp(&doc, prev, s.now()); err != nil {
			return err
		}
		return s.write(doc)
	})
	if err != nil {
		return types.Document{}, err
	}
	return doc, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (types.Document, error) {
	if !ValidID(id) {
		return types.Document{}, ErrNotFound
	}
	var doc types.Document
	err := s.withLock(ctx, false, func() error {
		var err error
		doc, err = s.read(id)
		return err
	})
	return doc, err
}

func (s *FileStore) List(ctx context.Context) ([]types.DocumentSummary, error) {
	out := []types.DocumentSummary{}
	err := s.withLock(ctx, false, func() error {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			return fmt.Errorf("store: listing %s: %w", s.dir, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, fileExtension) {
				continue
			}
			id := strings.TrimSuffix(name, fileExtension)
			if !ValidID(id) {
				continue
			}
			doc, err := s.read(id)
			if err != nil {
				return err
			}
			out = append(out, doc.Summary())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortSummaries(out)
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		return ErrNotFound
	}
	return s.withLock(ctx, true, func() error {
		err := os.Remove(s.path(id))
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: deleting document %s: %w", id, err)
		}
		return nil
	})
}

func (s *FileStore) read(id string) (types.Document, error) {
	b, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return types.Document{}, ErrNotFound
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("store: reading document %s: %w", id, err)
	}
	return decodeDocument(b)
}

// write replaces the document file atomically via a temp file and rename.
func (s *FileStore) write(doc types.Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode document %s: %w", doc.ID, err)
	}
	tmp, err := os.CreateTemp(s.dir, "."+doc.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: writing document %s: %w", doc.ID, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("store: writing document %s: %w", doc.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("store: writing document %s: %w", doc.ID, err)
	}
	if err := os.Rename(name, s.path(doc.ID)); err != nil {
		os.Remove(name)
		return fmt.Errorf("store: writing document %s: %w", doc.ID, err)
	}
	return nil
}
