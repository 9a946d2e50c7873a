package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioConfigEnabled(t *testing.T) {
	assert.False(t, MinioConfig{}.Enabled())
	assert.False(t, MinioConfig{Endpoint: "s3.local:9000"}.Enabled())
	assert.True(t, MinioConfig{Endpoint: "s3.local:9000", Bucket: "backups"}.Enabled())
}

func TestKeyUsesPrefix(t *testing.T) {
	s, err := NewMinioStore(MinioConfig{Endpoint: "s3.local:9000", Bucket: "b", Prefix: "/riderguard/"})
	require.NoError(t, err)
	assert.Equal(t, "riderguard/snap.db", s.Key("snap.db"))

	s, err = NewMinioStore(MinioConfig{Endpoint: "s3.local:9000", Bucket: "b"})
	require.NoError(t, err)
	assert.Equal(t, "snap.db", s.Key("snap.db"))
}

// fakeS3 answers just enough of the S3 API for a single part upload.
type fakeS3 struct {
	mu   sync.Mutex
	puts map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Query().Has("location"):
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><LocationConstraint xmlns="http://s3.amazonaws.com/doc/2006-03-01/">us-east-1</LocationConstraint>`)
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.puts[r.URL.Path] = body
		f.mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func TestUploadFile(t *testing.T) {
	fake := &fakeS3{puts: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	s, err := NewMinioStore(MinioConfig{Endpoint: u.Host, Bucket: "backups", Prefix: "nightly", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "riderguard_20260301_030000.db")
	require.NoError(t, os.WriteFile(p, []byte("SQLite format 3"), 0o644))

	key, err := s.UploadFile(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "nightly/riderguard_20260301_030000.db", key)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	var got []byte
	for path, body := range fake.puts {
		if strings.HasSuffix(path, key) {
			got = body
		}
	}
	assert.Contains(t, string(got), "SQLite format 3")
}
