package kv

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

const defaultStateDir = "./state"

// FileStore keeps all values in one JSON document, rewritten atomically via
// a temp file on every change.
type FileStore struct {
	path   string
	mu     sync.Mutex
	values map[string]string
	closed bool
}

// NewFileStore opens (or creates) the store file for namespace under dir.
func NewFileStore(dir, namespace string) (*FileStore, error) {
	if dir == "" {
		dir = defaultStateDir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}

	name := sanitizeNamespace(namespace)
	if name == "" {
		name = "session"
	}

	s := &FileStore{
		path:   filepath.Join(dir, fmt.Sprintf("%s.json", name)),
		values: make(map[string]string),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errors.Wrap(err, "read state file")
	}
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, &s.values); err != nil {
		return errors.Wrap(err, "decode state file")
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *FileStore) SetMany(_ context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	next := copyState(s.values)
	for k, v := range values {
		next[k] = v
	}
	return s.persist(next)
}

func (s *FileStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	next := copyState(s.values)
	for _, k := range keys {
		delete(next, k)
	}
	return s.persist(next)
}

// persist writes next to disk and swaps it in only after the rename succeeded.
func (s *FileStore) persist(next map[string]string) error {
	payload, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "write state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist state")
	}

	s.values = next
	return nil
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func sanitizeNamespace(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}

	var b strings.Builder

	prevUnderscore := false

	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)

			prevUnderscore = false

			continue
		}

		if !prevUnderscore {
			b.WriteByte('_')

			prevUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}
