package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// LocalStore keeps assets in a directory that the HTTP router serves under publicPath.
type LocalStore struct {
	root       string
	publicPath string
	clock      func() time.Time
	logger     *zap.Logger
}

// LocalConfig configures a LocalStore.
type LocalConfig struct {
	Root       string
	PublicPath string
	Clock      func() time.Time
	Logger     *zap.Logger
}

// NewLocalStore creates the root directory when missing.
func NewLocalStore(cfg LocalConfig) (*LocalStore, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, errors.New("assets: local root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("assets: create root %s: %w", root, err)
	}
	publicPath := "/" + strings.Trim(cfg.PublicPath, "/")
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalStore{root: root, publicPath: publicPath, clock: clock, logger: logger}, nil
}

// Root returns the directory the store writes into.
func (s *LocalStore) Root() string {
	return s.root
}

// PublicPath returns the URL prefix the router must serve Root under.
func (s *LocalStore) PublicPath() string {
	return s.publicPath
}

func (s *LocalStore) Put(ctx context.Context, upload Upload) (Asset, error) {
	if err := Validate(upload); err != nil {
		return Asset{}, err
	}
	key, err := objectKey(upload.Kind, upload.Filename, s.clock())
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	written, copyErr := io.Copy(file, contextReader{ctx: ctx, reader: limitedBody(upload)})
	closeErr := file.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(target)
		if errors.Is(copyErr, ErrInvalidUpload) {
			return Asset{}, copyErr
		}
		return Asset{}, fmt.Errorf("%w: %v", ErrStorage, copyErr)
	}

	s.logger.Debug("asset stored", zap.String("key", key), zap.Int64("bytes", written))
	return Asset{
		Key:         key,
		URL:         path.Join(s.publicPath, key),
		ContentType: mediaType(upload.ContentType),
		Size:        written,
	}, nil
}

// Delete removes the file for key. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r contextReader) Read(buffer []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(buffer)
}
