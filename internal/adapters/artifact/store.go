package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/okian/paycast/pkg/logger"
)

// FileName is the bundle file inside the artifact directory.
const FileName = "bundle.json"

// FileStore keeps the bundle as a single JSON file. Saves never modify the
// live file in place: the new bundle is written to a temp file, synced and
// renamed over it.
type FileStore struct {
	dir    string
	logger logger.Logger
}

// StoreOption configures a FileStore.
type StoreOption func(*FileStore)

// WithStoreLogger sets the store's logger.
func WithStoreLogger(l logger.Logger) StoreOption {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string, opts ...StoreOption) *FileStore {
	s := &FileStore{dir: dir}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	return s
}

// Path is the location of the live bundle file.
func (s *FileStore) Path() string { return filepath.Join(s.dir, FileName) }

// Save atomically replaces the stored bundle.
func (s *FileStore) Save(ctx context.Context, b *Bundle) (err error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp bundle: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp bundle: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp bundle: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp bundle: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.Path()); err != nil {
		return fmt.Errorf("swap bundle: %w", err)
	}
	syncDir(s.dir)

	s.logger.Info(ctx, "bundle saved",
		logger.String("version", b.Version),
		logger.String("path", s.Path()),
		logger.Int("bytes", len(raw)))
	return nil
}

// Load reads and validates the stored bundle.
func (s *FileStore) Load(ctx context.Context) (*Bundle, error) {
	raw, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoBundle
	}
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidBundle, err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "bundle loaded", logger.String("version", b.Version))
	return &b, nil
}

func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
