// Package credential persists the bearer token and refresh token of the
// current session between process runs.
package credential

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Credentials is the persisted state of an authenticated session.
type Credentials struct {
	Token        string
	RefreshToken string
}

// Store provides access to the session credentials.
type Store interface {
	Load(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps credentials in process memory only.
type MemoryStore struct {
	mu sync.RWMutex
	c  Credentials
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store seeded with c.
func NewMemoryStore(c Credentials) *MemoryStore {
	return &MemoryStore{c: c}
}

func (s *MemoryStore) Load(context.Context) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.c, nil
}

func (s *MemoryStore) Save(_ context.Context, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = Credentials{}
	return nil
}

// FileStore keeps credentials in a JSON file readable only by the owner.
// A missing file is an empty credential set.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the credential file.
func (s *FileStore) Load(context.Context) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, nil
		}
		return Credentials{}, errors.Wrap(err, "read credentials")
	}

	c, err := decode(data)
	if err != nil {
		return Credentials{}, errors.Wrapf(err, "decode credentials %s", s.path)
	}
	return c, nil
}

// Save atomically replaces the credential file.
func (s *FileStore) Save(_ context.Context, c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "create credentials dir")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, encode(c), 0o600); err != nil {
		return errors.Wrap(err, "write credentials")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "replace credentials")
	}
	return nil
}

// Clear removes the credential file.
func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove credentials")
	}
	return nil
}

func encode(c Credentials) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("token")
	e.Str(c.Token)
	e.FieldStart("refreshToken")
	e.Str(c.RefreshToken)
	e.ObjEnd()
	return e.Bytes()
}

func decode(data []byte) (Credentials, error) {
	var c Credentials
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "token":
			c.Token, err = d.Str()
		case "refreshToken":
			c.RefreshToken, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	return c, err
}
