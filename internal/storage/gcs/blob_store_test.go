package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	"github.com/JakeFAU/pagewatch/internal/page"
	"github.com/JakeFAU/pagewatch/internal/state"
)

func newOfflineClient(t *testing.T) *storage.Client {
	t.Helper()
	client, err := storage.NewClient(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint("http://127.0.0.1:0/storage/v1/"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "storage client is required")

	_, err = New(newOfflineClient(t), Config{Bucket: "  "})
	require.ErrorContains(t, err, "bucket name is required")
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	store, err := New(newOfflineClient(t), Config{Bucket: "b", Prefix: "/watchers/clarity/"})
	require.NoError(t, err)

	name, err := store.objectName("last_hash.txt")
	require.NoError(t, err)
	require.Equal(t, "watchers/clarity/last_hash.txt", name)

	bare, err := New(newOfflineClient(t), Config{Bucket: "b"})
	require.NoError(t, err)
	name, err = bare.objectName("/last_page.html")
	require.NoError(t, err)
	require.Equal(t, "last_page.html", name)
}

func TestEmptyPathRejected(t *testing.T) {
	t.Parallel()

	store, err := New(newOfflineClient(t), Config{Bucket: "b"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "", "text/plain", strings.NewReader("x"))
	require.ErrorContains(t, err, "path is required")

	_, err = store.GetObject(context.Background(), " ")
	require.ErrorContains(t, err, "path is required")
}

// fakeGCS serves the subset of the GCS JSON upload and XML download APIs the
// blob store uses.
type fakeGCS struct {
	bucket string

	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	denyGet bool
}

func newFakeGCS(t *testing.T, bucket string) (*fakeGCS, *storage.Client) {
	t.Helper()
	fake := &fakeGCS{bucket: bucket, objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return fake, client
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		f.upload(w, r)
	case http.MethodGet:
		f.download(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.URL.Path, "/upload/storage/v1/b/"+f.bucket+"/o") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	name := r.URL.Query().Get("name")
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	var data []byte
	reader := multipart.NewReader(r.Body, params["boundary"])
	for i := 0; ; i++ {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(part)
		if i == 0 {
			_ = json.Unmarshal(body, &meta)
			continue
		}
		data = body
	}
	if name == "" {
		name = meta.Name
	}

	f.mu.Lock()
	f.objects[name] = data
	f.types[name] = meta.ContentType
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"bucket":      f.bucket,
		"name":        name,
		"size":        len(data),
		"generation":  "1",
		"contentType": meta.ContentType,
	})
}

func (f *fakeGCS) download(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	var name string
	switch {
	case strings.Contains(path, "/b/"+f.bucket+"/o/"):
		name = path[strings.Index(path, "/b/"+f.bucket+"/o/")+len("/b/"+f.bucket+"/o/"):]
	case strings.HasPrefix(path, "/"+f.bucket+"/"):
		name = strings.TrimPrefix(path, "/"+f.bucket+"/")
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	f.mu.Lock()
	data, ok := f.objects[name]
	deny := f.denyGet
	f.mu.Unlock()

	if deny {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Goog-Generation", "1")
	w.Header().Set("X-Goog-Metageneration", "1")
	_, _ = w.Write(data)
}

func (f *fakeGCS) object(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	return data, ok
}

func TestPutGetRoundTripWithPrefix(t *testing.T) {
	t.Parallel()

	fake, client := newFakeGCS(t, "watch-bucket")
	store, err := New(client, Config{Bucket: "watch-bucket", Prefix: "clarity/"})
	require.NoError(t, err)
	ctx := context.Background()

	uri, err := store.PutObject(ctx, state.DigestObject, "text/plain; charset=utf-8", strings.NewReader("abc123"))
	require.NoError(t, err)
	assert.Equal(t, "gs://watch-bucket/clarity/last_hash.txt", uri)

	stored, ok := fake.object("clarity/last_hash.txt")
	require.True(t, ok, "object should be written under the prefix")
	assert.Equal(t, "abc123", string(stored))

	got, err := store.GetObject(ctx, state.DigestObject)
	require.NoError(t, err)
	assert.Equal(t, "abc123", string(got))
}

func TestGetMissingObjectIsNotFound(t *testing.T) {
	t.Parallel()

	_, client := newFakeGCS(t, "watch-bucket")
	store, err := New(client, Config{Bucket: "watch-bucket"})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), state.ContentObject)
	require.Error(t, err)
	assert.ErrorIs(t, err, page.ErrNotFound)
}

func TestGetForbiddenIsNotNotFound(t *testing.T) {
	t.Parallel()

	fake, client := newFakeGCS(t, "watch-bucket")
	fake.mu.Lock()
	fake.denyGet = true
	fake.mu.Unlock()
	store, err := New(client, Config{Bucket: "watch-bucket"})
	require.NoError(t, err)

	_, err = store.GetObject(context.Background(), state.ContentObject)
	require.Error(t, err)
	assert.NotErrorIs(t, err, page.ErrNotFound)
}

func TestStateOnEmptyBucketIsAbsent(t *testing.T) {
	t.Parallel()

	_, client := newFakeGCS(t, "watch-bucket")
	store, err := New(client, Config{Bucket: "watch-bucket", Prefix: "clarity"})
	require.NoError(t, err)
	st, err := state.New(store, sha256.New(), nil)
	require.NoError(t, err)
	ctx := context.Background()

	current, err := st.Read(ctx)
	require.NoError(t, err)
	assert.False(t, current.HasDigest)
	assert.False(t, current.HasContent)

	require.NoError(t, st.Write(ctx, sha256.FingerprintString("<p>Hello</p>"), "<p>Hello</p>"))
	current, err = st.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, sha256.FingerprintString("<p>Hello</p>"), current.Digest)
	assert.Equal(t, "<p>Hello</p>", current.Content)
}
