package blob

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			info, err := s.Put(ctx, "u1.pdf", strings.NewReader("%PDF-1.4 first"), PutOptions{ContentType: "application/pdf"})
			require.NoError(t, err)
			assert.Equal(t, int64(len("%PDF-1.4 first")), info.Size)

			// Overwrite.
			_, err = s.Put(ctx, "u1.pdf", strings.NewReader("%PDF-1.4 second"), PutOptions{ContentType: "application/pdf"})
			require.NoError(t, err)

			got, rc, err := s.Get(ctx, "u1.pdf")
			require.NoError(t, err)
			body, _ := io.ReadAll(rc)
			rc.Close()
			assert.Equal(t, "%PDF-1.4 second", string(body))
			assert.Equal(t, "application/pdf", got.ContentType)

			existed, err := s.Delete(ctx, "u1.pdf")
			require.NoError(t, err)
			assert.True(t, existed)

			existed, err = s.Delete(ctx, "u1.pdf")
			require.NoError(t, err)
			assert.False(t, existed)

			_, _, err = s.Get(ctx, "u1.pdf")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStore_RejectsBadKeys(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"", "../escape.pdf", "/abs.pdf", `a\b.pdf`} {
				_, err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{})
				assert.Error(t, err, "key %q", key)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, s.Driver())

	s, err = Open(ctx, Config{Root: t.TempDir(), Bucket: "contracts"})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, s.Driver())

	_, err = Open(ctx, Config{Driver: "gcs"})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "s3"})
	assert.Error(t, err, "s3 needs a bucket")
}

// fakeS3 answers the handful of path-style object calls the S3 store makes.
type fakeS3 struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.URL.Path // "/bucket/key"
	switch r.Method {
	case http.MethodPut:
		b, _ := io.ReadAll(r.Body)
		f.objs[key] = b
		w.WriteHeader(http.StatusOK)
	case http.MethodHead, http.MethodGet:
		b, ok := f.objs[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Length", strconv.Itoa(len(b)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(b)
		}
	case http.MethodDelete:
		delete(f.objs, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3_AgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objs: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx := context.Background()
	s, err := NewS3(ctx, Config{
		Bucket:          "contracts",
		Endpoint:        srv.URL,
		PathStyle:       true,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	require.NoError(t, err)

	_, err = s.Put(ctx, "u1.pdf", strings.NewReader("%PDF"), PutOptions{ContentType: "application/pdf"})
	require.NoError(t, err)

	_, rc, err := s.Get(ctx, "u1.pdf")
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF", string(body))

	_, _, err = s.Get(ctx, "missing.pdf")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	existed, err := s.Delete(ctx, "u1.pdf")
	require.NoError(t, err)
	assert.True(t, existed)
}
