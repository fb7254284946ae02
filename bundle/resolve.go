package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aperturerobotics/go-jsdos/internal/logging"
	"github.com/bodgit/sevenzip"
	"github.com/cespare/xxhash/v2"
)

// ErrUnsupportedFormat is returned when a locator is neither a directory
// nor a recognized archive.
var ErrUnsupportedFormat = errors.New("unsupported bundle format")

var (
	zipMagic      = []byte("PK\x03\x04")
	sevenZipMagic = []byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}
)

type format int

const (
	formatUnknown format = iota
	formatZip
	format7z
)

// Resolver turns bundle locators into bundles.
type Resolver struct {
	client  *http.Client
	logger  *slog.Logger
	tempDir string
}

// Option configures the Resolver.
type Option func(*Resolver)

// WithHTTPClient sets the client used for http and https locators.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithLogger configures a logger for the Resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithTempDir sets the parent directory for extracted archives.
func WithTempDir(dir string) Option {
	return func(r *Resolver) {
		r.tempDir = dir
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		client: http.DefaultClient,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads the bundle named by locator: an http(s) URL, a
// directory, or a .zip/.jsdos/.7z archive on disk.
func (r *Resolver) Resolve(ctx context.Context, locator string) (*Bundle, error) {
	if isRemote(locator) {
		data, err := r.fetch(ctx, locator)
		if err != nil {
			return nil, err
		}
		u, _ := url.Parse(locator)
		return r.open(locator, path.Base(u.Path), data)
	}

	info, err := os.Stat(locator)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle: %w", err)
	}
	if info.IsDir() {
		id := strconv.FormatUint(xxhash.Sum64String(locator), 16)
		r.logger.Debug("bundle resolved", "locator", locator, "id", id, "format", "dir")
		return New(locator, id, os.DirFS(locator))
	}

	data, err := os.ReadFile(locator)
	if err != nil {
		return nil, fmt.Errorf("resolve bundle: %w", err)
	}
	return r.open(locator, filepath.Base(locator), data)
}

func isRemote(locator string) bool {
	return strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://")
}

func (r *Resolver) fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch bundle %s: %s", locator, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch bundle: %w", err)
	}
	return data, nil
}

// detect picks the archive format from the magic number, falling back
// to the file extension.
func detect(name string, data []byte) format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return formatZip
	case bytes.HasPrefix(data, sevenZipMagic):
		return format7z
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".zip", ".jsdos":
		return formatZip
	case ".7z":
		return format7z
	}
	return formatUnknown
}

func (r *Resolver) open(locator, name string, data []byte) (*Bundle, error) {
	id := strconv.FormatUint(xxhash.Sum64(data), 16)

	switch detect(name, data) {
	case formatZip:
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, fmt.Errorf("open zip bundle: %w", err)
		}
		r.logger.Debug("bundle resolved", "locator", locator, "id", id, "format", "zip", "size", len(data))
		return New(locator, id, zr)
	case format7z:
		dir, err := r.extract7z(data)
		if err != nil {
			return nil, err
		}
		b, err := New(locator, id, os.DirFS(dir))
		if err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
		b.cleanup = func() error { return os.RemoveAll(dir) }
		r.logger.Debug("bundle resolved", "locator", locator, "id", id, "format", "7z", "size", len(data))
		return b, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
}

// extract7z unpacks a 7z archive into a fresh temporary directory.
func (r *Resolver) extract7z(data []byte) (dir string, err error) {
	rd, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open 7z bundle: %w", err)
	}

	dir, err = os.MkdirTemp(r.tempDir, "jsdos-bundle-")
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	for _, f := range rd.File {
		dest := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(dest, dir+string(os.PathSeparator)) {
			return "", fmt.Errorf("7z entry %q escapes bundle root", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return "", err
			}
			continue
		}
		if err := extractFile(f, dest); err != nil {
			return "", fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return dir, nil
}

func extractFile(f *sevenzip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
