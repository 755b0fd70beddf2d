package transcript

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/felixgeelhaar/mnemo/internal/fsutil"
)

// FileStore keeps one indented JSON file per session.
//
// Append is read-modify-write of the whole file; the write goes to a temp file
// that is renamed over the original, so a crash leaves either the old or the
// new transcript on disk. One FileStore must be the only writer of its dir.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the transcript directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create transcript directory: %w", err)
	}
	return &FileStore{
		dir:   dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Path returns the file holding the session's transcript.
func (s *FileStore) Path(sessionID string) string {
	return filepath.Join(s.dir, "memory_"+sessionID+".json")
}

func (s *FileStore) lock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *FileStore) Append(ctx context.Context, sessionID string, role Role, message string) error {
	if !role.Valid() {
		return ErrInvalidRole{Role: role}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	turns, err := s.read(sessionID)
	if err != nil {
		return err
	}
	turns = append(turns, Turn{Role: role, Message: message})
	return s.write(sessionID, turns)
}

func (s *FileStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	turns, err := s.LoadAll(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return Tail(turns, limit), nil
}

func (s *FileStore) LoadAll(ctx context.Context, sessionID string) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	return s.read(sessionID)
}

func (s *FileStore) Clear(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.lock(sessionID)
	l.Lock()
	defer l.Unlock()

	if err := fsutil.RemoveIfExists(s.Path(sessionID)); err != nil {
		return fmt.Errorf("failed to remove transcript: %w", err)
	}
	return nil
}

func (s *FileStore) read(sessionID string) ([]Turn, error) {
	data, err := os.ReadFile(s.Path(sessionID)) // #nosec G304
	if errors.Is(err, fs.ErrNotExist) {
		return []Turn{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	turns := []Turn{}
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode transcript %s: %w", sessionID, err)
	}
	return turns, nil
}

func (s *FileStore) write(sessionID string, turns []Turn) error {
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}
	return fsutil.WriteFileAtomic(s.Path(sessionID), data)
}
