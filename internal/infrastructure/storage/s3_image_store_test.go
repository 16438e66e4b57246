package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/erp/importer/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewS3ImageStore_Validation(t *testing.T) {
	t.Run("nil config returns error", func(t *testing.T) {
		_, err := NewS3ImageStore(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "configuration is required")
	})

	t.Run("missing bucket returns error", func(t *testing.T) {
		_, err := NewS3ImageStore(&config.StorageConfig{AccessKey: "k", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket is required")
	})

	t.Run("missing access key returns error", func(t *testing.T) {
		_, err := NewS3ImageStore(&config.StorageConfig{Bucket: "b", SecretKey: "s"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access key is required")
	})

	t.Run("missing secret key returns error", func(t *testing.T) {
		_, err := NewS3ImageStore(&config.StorageConfig{Bucket: "b", AccessKey: "k"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "secret key is required")
	})

	t.Run("endpoint without scheme is accepted", func(t *testing.T) {
		store, err := NewS3ImageStore(&config.StorageConfig{
			Bucket:    "images",
			AccessKey: "k",
			SecretKey: "s",
			Endpoint:  "localhost:9000",
			UseSSL:    true,
		})
		require.NoError(t, err)
		assert.Equal(t, "images", store.Bucket())
	})
}

// fakeS3 answers the path-style requests the store issues
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]string
	requests []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	switch r.Method {
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPut:
		f.objects[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3Store(t *testing.T, prefix string) (*S3ImageStore, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string]string)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := NewS3ImageStore(&config.StorageConfig{
		Bucket:       "catalog",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		Endpoint:     server.URL,
		UsePathStyle: true,
		KeyPrefix:    prefix,
	}, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return store, fake
}

func TestS3ImageStore_PutImage(t *testing.T) {
	store, fake := newFakeS3Store(t, "/mirror/")
	ctx := context.Background()

	ref, err := store.PutImage(ctx, "products/7/71.jpg", "image/jpeg", []byte{0xff, 0xd8})

	require.NoError(t, err)
	assert.Equal(t, "s3://catalog/mirror/products/7/71.jpg", ref)
	assert.Equal(t, "image/jpeg", fake.objects["/catalog/mirror/products/7/71.jpg"])

	t.Run("existing object is not uploaded again", func(t *testing.T) {
		before := len(fake.requests)
		again, err := store.PutImage(ctx, "products/7/71.jpg", "image/jpeg", []byte{0xff, 0xd8})

		require.NoError(t, err)
		assert.Equal(t, ref, again)
		assert.Equal(t, []string{"HEAD /catalog/mirror/products/7/71.jpg"}, fake.requests[before:])
	})
}

func TestS3ImageStore_PutImageRequiresKey(t *testing.T) {
	store, _ := newFakeS3Store(t, "")
	_, err := store.PutImage(context.Background(), "", "image/png", nil)
	assert.Error(t, err)
}

func TestMemoryImageStore(t *testing.T) {
	store := NewMemoryImageStore()
	data := []byte("png")

	ref, err := store.PutImage(context.Background(), "products/1/2.png", "image/png", data)
	require.NoError(t, err)
	data[0] = 'x'

	assert.Equal(t, "memory://products/1/2.png", ref)
	img, ok := store.Get("products/1/2.png")
	require.True(t, ok)
	assert.Equal(t, "png", string(img.Data), "stored bytes are a copy")
	assert.Equal(t, 1, store.Len())

	_, err = store.PutImage(context.Background(), "", "image/png", data)
	assert.Error(t, err)
}
