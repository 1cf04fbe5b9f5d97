// Package artwork loads album artwork and extracts role-keyed colours from it.
package artwork

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format
	_ "image/jpeg" // Register JPEG format
	_ "image/png"  // Register PNG format
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hashicorp/go-hclog"
	_ "golang.org/x/image/webp" // Register WebP format

	"github.com/jmylchreest/backdrop/internal/security"
	httputil "github.com/jmylchreest/backdrop/internal/util/http"
)

const (
	// DefaultMaxBytes caps artwork files and downloads.
	DefaultMaxBytes = 16 << 20

	// Remote artwork is fetched at most this often, with a small burst for
	// quick track skips.
	fetchRate  = 2
	fetchBurst = 4
)

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	Logger hclog.Logger

	// Cache stores remote artwork. Nil disables caching.
	Cache *Cache

	MaxBytes int64

	// ValidateURL vets remote sources before fetching. Defaults to
	// security.ValidateHTTPURL.
	ValidateURL func(string) error

	Fetch httputil.FetchOptions
}

// Loader loads images from local files and HTTP(S) URLs.
type Loader struct {
	opts   LoaderOptions
	client *httputil.Client
}

// NewLoader creates a loader.
func NewLoader(opts LoaderOptions) *Loader {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.ValidateURL == nil {
		opts.ValidateURL = security.ValidateHTTPURL
	}
	opts.Fetch.MaxBytes = opts.MaxBytes
	opts.Fetch.ImageOnly = true
	if opts.Fetch.Rate == 0 {
		opts.Fetch.Rate, opts.Fetch.Burst = fetchRate, fetchBurst
	}
	return &Loader{opts: opts, client: httputil.NewClient(opts.Fetch)}
}

// IsURL reports whether src names a remote image.
func IsURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// SupportedImageExtensions returns a list of supported image file extensions.
func SupportedImageExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
}

// IsImageFile checks if a file has a supported image extension.
func IsImageFile(path string) bool {
	return slices.Contains(SupportedImageExtensions(), strings.ToLower(filepath.Ext(path)))
}

// Load loads an image from either a local file path or HTTP(S) URL.
// Supported formats: JPEG, PNG, GIF, WebP.
func (l *Loader) Load(ctx context.Context, src string) (image.Image, error) {
	var data []byte
	var err error
	if IsURL(src) {
		data, err = l.fetch(ctx, src)
	} else {
		data, err = l.readFile(src)
	}
	if err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image (format: %s): %w", format, err)
	}
	l.opts.Logger.Debug("artwork loaded", "source", src, "format", format, "bounds", img.Bounds().Size())
	return img, nil
}

func (l *Loader) readFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("image path cannot be empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("image file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to stat image file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() > l.opts.MaxBytes {
		return nil, fmt.Errorf("image file %s is %d bytes: %w", path, info.Size(), security.ErrSizeLimit)
	}

	data, err := os.ReadFile(path) // #nosec G304 - User-specified image path, intended to be read
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	if err := l.opts.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("refusing artwork URL: %w", err)
	}

	if l.opts.Cache != nil {
		if data, ok := l.opts.Cache.Get(url); ok {
			l.opts.Logger.Trace("artwork cache hit", "url", url)
			return data, nil
		}
	}

	data, mediaType, err := l.client.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image from URL: %w", err)
	}
	l.opts.Logger.Trace("artwork fetched", "url", url, "type", mediaType, "bytes", len(data))

	if l.opts.Cache != nil {
		if err := l.opts.Cache.Put(url, data); err != nil {
			l.opts.Logger.Warn("failed to cache artwork", "url", url, "error", err)
		}
	}
	return data, nil
}
