package artwork

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, bands(2, []int{3, 1}, []string{"#1e3a8a", "#e11d48"})))
	return buf.Bytes()
}

func allowAll(string) error { return nil }

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t), 0o644))

	l := NewLoader(LoaderOptions{})
	img, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(4, 2), img.Bounds().Size())

	_, err = l.Load(context.Background(), filepath.Join(dir, "missing.png"))
	assert.ErrorContains(t, err, "not found")

	_, err = l.Load(context.Background(), dir)
	assert.ErrorContains(t, err, "directory")

	junk := filepath.Join(dir, "junk.png")
	require.NoError(t, os.WriteFile(junk, []byte("not an image"), 0o644))
	_, err = l.Load(context.Background(), junk)
	assert.ErrorContains(t, err, "failed to decode")

	_, err = NewLoader(LoaderOptions{MaxBytes: 8}).Load(context.Background(), path)
	assert.ErrorContains(t, err, "size limit")
}

func TestLoadURLUsesCache(t *testing.T) {
	data := encodePNG(t)
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	cache, err := NewCache(t.TempDir())
	require.NoError(t, err)
	l := NewLoader(LoaderOptions{Cache: cache, ValidateURL: allowAll})

	for range 2 {
		img, err := l.Load(context.Background(), srv.URL+"/cover.png?size=640")
		require.NoError(t, err)
		assert.Equal(t, image.Pt(4, 2), img.Bounds().Size())
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.FileExists(t, cache.Path(srv.URL+"/cover.png?size=640"))
}

func TestLoadURLValidation(t *testing.T) {
	l := NewLoader(LoaderOptions{})
	_, err := l.Load(context.Background(), "http://127.0.0.1/cover.png")
	assert.ErrorContains(t, err, "refusing artwork URL")
}

func TestCachePath(t *testing.T) {
	c := &Cache{dir: "/cache"}
	assert.Equal(t, ".png", filepath.Ext(c.Path("https://x/a.png?v=1")))
	assert.Equal(t, ".jpg", filepath.Ext(c.Path("https://i.scdn.co/image/ab67616d")))
	assert.NotEqual(t, c.Path("https://x/a.png"), c.Path("https://x/b.png"))
	assert.Equal(t, "/cache", filepath.Dir(c.Path("https://x/a.png")))
}

func TestIsImageFile(t *testing.T) {
	assert.True(t, IsImageFile("cover.WEBP"))
	assert.False(t, IsImageFile("notes.txt"))
	assert.True(t, IsURL("https://x/y"))
	assert.False(t, IsURL("/tmp/y.png"))
}
