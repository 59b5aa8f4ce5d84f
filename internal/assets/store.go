package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind names the category of an uploaded asset.
type Kind string

const (
	KindVideo   Kind = "video"
	KindPicture Kind = "picture"
	KindResume  Kind = "resume"
)

const megabyte = 1 << 20

var (
	// ErrInvalidUpload indicates the upload breaks the type or size rules for its kind.
	ErrInvalidUpload = errors.New("assets: invalid upload")
	// ErrStorage indicates the backend failed to store or delete an object.
	ErrStorage = errors.New("assets: storage failure")
)

type kindRule struct {
	directory   string
	maxBytes    int64
	contentType func(string) bool
}

var kindRules = map[Kind]kindRule{
	KindVideo: {
		directory:   "videos",
		maxBytes:    100 * megabyte,
		contentType: hasMediaPrefix("video/"),
	},
	KindPicture: {
		directory:   "pictures",
		maxBytes:    30 * megabyte,
		contentType: hasMediaPrefix("image/"),
	},
	KindResume: {
		directory: "resumes",
		maxBytes:  10 * megabyte,
		contentType: func(contentType string) bool {
			return mediaType(contentType) == "application/pdf"
		},
	},
}

// Upload is a binary asset submitted for storage.
type Upload struct {
	Kind        Kind
	Filename    string
	ContentType string
	// Size is the declared size; the body is still capped at the kind limit.
	Size int64
	Body io.Reader
}

// Asset describes a stored object.
type Asset struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Store persists and removes binary assets.
type Store interface {
	Put(ctx context.Context, upload Upload) (Asset, error)
	Delete(ctx context.Context, key string) error
}

// Validate checks the upload against the rules for its kind.
func Validate(upload Upload) error {
	rule, ok := kindRules[upload.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidUpload, upload.Kind)
	}
	if upload.Body == nil {
		return fmt.Errorf("%w: %s body is required", ErrInvalidUpload, upload.Kind)
	}
	if !rule.contentType(upload.ContentType) {
		return fmt.Errorf("%w: content type %q not allowed for %s", ErrInvalidUpload, upload.ContentType, upload.Kind)
	}
	if upload.Size > rule.maxBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidUpload, upload.Kind, rule.maxBytes)
	}
	return nil
}

// limitedBody wraps the upload body so reading more than the kind limit fails.
func limitedBody(upload Upload) io.Reader {
	limit := kindRules[upload.Kind].maxBytes
	return &capReader{reader: io.LimitReader(upload.Body, limit+1), remaining: limit, kind: upload.Kind}
}

type capReader struct {
	reader    io.Reader
	remaining int64
	kind      Kind
}

func (r *capReader) Read(buffer []byte) (int, error) {
	n, err := r.reader.Read(buffer)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		return n, fmt.Errorf("%w: %s exceeds %d bytes", ErrInvalidUpload, r.kind, kindRules[r.kind].maxBytes)
	}
	return n, err
}

// objectKey builds "<directory>/<kind>-<unixmillis>-<random>-<name>".
func objectKey(kind Kind, filename string, now time.Time) (string, error) {
	random, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	suffix := strings.ReplaceAll(random.String(), "-", "")[:10]
	name := fmt.Sprintf("%s-%d-%s-%s", kind, now.UnixMilli(), suffix, sanitizeFilename(filename))
	return path.Join(kindRules[kind].directory, name), nil
}

// sanitizeFilename keeps the base name with letters, digits, dot, dash and underscore.
func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	var builder strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteByte('_')
		}
	}
	cleaned := strings.Trim(builder.String(), "._")
	if cleaned == "" {
		return "upload"
	}
	if len(cleaned) > 100 {
		cleaned = cleaned[len(cleaned)-100:]
	}
	return cleaned
}

func hasMediaPrefix(prefix string) func(string) bool {
	return func(contentType string) bool {
		return strings.HasPrefix(mediaType(contentType), prefix)
	}
}

func mediaType(contentType string) string {
	value, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(value))
}

func validateKey(key string) error {
	cleaned := path.Clean(key)
	if key == "" || cleaned != key || strings.HasPrefix(cleaned, "/") || strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("%w: invalid key %q", ErrInvalidUpload, key)
	}
	return nil
}
