// Package security provides validation helpers for untrusted artwork URLs and
// plugin paths.
package security

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ErrSizeLimit is returned by LimitedReader once its budget is spent.
var ErrSizeLimit = errors.New("size limit exceeded")

// ValidateHTTPURL validates an artwork URL before it is fetched.
// Only https URLs to public hosts are allowed.
func ValidateHTTPURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed (got %s)", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	// Block localhost and private IPs to prevent SSRF
	host := strings.ToLower(parsed.Hostname())
	if isLocalOrPrivateHost(host) {
		return fmt.Errorf("URL cannot point to local or private hosts: %s", host)
	}

	return nil
}

// ValidatePluginPath rejects plugin paths that are not strictly inside
// baseDir.
func ValidatePluginPath(pluginPath, baseDir string) error {
	if pluginPath == "" {
		return errors.New("empty plugin path")
	}
	abs, err := filepath.Abs(pluginPath)
	if err != nil {
		return fmt.Errorf("invalid plugin path: %w", err)
	}
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("invalid base directory: %w", err)
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New("plugin path must be within plugin directory (attempted path traversal)")
	}
	return nil
}

// ValidatePluginExecutable checks that pluginPath is a regular executable
// inside baseDir after symlinks are resolved, and that other users cannot
// rewrite it.
func ValidatePluginExecutable(pluginPath, baseDir string) error {
	if err := ValidatePluginPath(pluginPath, baseDir); err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(pluginPath)
	if err != nil {
		return fmt.Errorf("invalid plugin path: %w", err)
	}
	realBase, err := filepath.EvalSymlinks(baseDir)
	if err != nil {
		return fmt.Errorf("invalid base directory: %w", err)
	}
	if err := ValidatePluginPath(resolved, realBase); err != nil {
		return fmt.Errorf("plugin symlink escapes plugin directory: %w", err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("invalid plugin path: %w", err)
	}
	mode := info.Mode()
	switch {
	case !mode.IsRegular():
		return fmt.Errorf("plugin %s is not a regular file", pluginPath)
	case mode.Perm()&0o111 == 0:
		return fmt.Errorf("plugin %s is not executable", pluginPath)
	case mode.Perm()&0o022 != 0:
		return fmt.Errorf("plugin %s is writable by other users", pluginPath)
	}
	return nil
}

// LimitedReader wraps an io.Reader and fails once more than Remaining bytes
// have been read, so oversized downloads error out instead of truncating.
type LimitedReader struct {
	R         io.Reader
	Remaining int64
}

// Read implements io.Reader with size limits.
func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Remaining < 0 {
		return 0, ErrSizeLimit
	}
	// Read one byte past the budget to tell "exactly at the limit" from "over".
	if int64(len(p)) > l.Remaining+1 {
		p = p[:l.Remaining+1]
	}
	n, err := l.R.Read(p)
	l.Remaining -= int64(n)
	if l.Remaining < 0 {
		return n + int(l.Remaining), ErrSizeLimit
	}
	return n, err
}

// NewLimitedReader creates a new LimitedReader with the specified size limit.
func NewLimitedReader(r io.Reader, maxBytes int64) *LimitedReader {
	return &LimitedReader{
		R:         r,
		Remaining: maxBytes,
	}
}

// isLocalOrPrivateHost checks if a hostname is localhost or a private,
// loopback or link-local address.
func isLocalOrPrivateHost(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}

	addr, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
