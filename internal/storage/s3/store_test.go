package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/askdb/askdb/internal/storage"
)

type fakeObjects struct {
	uploads map[string][]byte
	types   map[string]string
	removed []string

	removeErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{uploads: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) Upload(_ context.Context, _, key string, body io.Reader, _ int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.uploads[key] = data
	f.types[key] = contentType
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) Open(_ context.Context, _, key string) (io.ReadCloser, error) {
	data, ok := f.uploads[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeObjects) Describe(_ context.Context, _, key string) (storage.ObjectInfo, error) {
	data, ok := f.uploads[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeObjects) Remove(_ context.Context, _, key string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeObjects) EnsureBucket(context.Context, string, string) error { return nil }

func testStore(prefix string) (*Store, *fakeObjects) {
	fake := newFakeObjects()
	return &Store{objects: fake, bucket: "askdb-artifacts", prefix: cleanPrefix(prefix)}, fake
}

func TestPutPrefixesKeys(t *testing.T) {
	store, fake := testStore("askdb/prod")

	info, err := store.Put(context.Background(), "/snapshots/date=2025-06-15/product_total_sales-1.parquet",
		strings.NewReader("parquet-bytes"), 13, storage.PutOptions{ContentType: storage.ContentTypeParquet})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	want := "askdb/prod/snapshots/date=2025-06-15/product_total_sales-1.parquet"
	if info.Key != want {
		t.Fatalf("info key = %q, want %q", info.Key, want)
	}
	if string(fake.uploads[want]) != "parquet-bytes" {
		t.Fatalf("uploaded body = %q", fake.uploads[want])
	}
	if fake.types[want] != storage.ContentTypeParquet {
		t.Fatalf("content type = %q", fake.types[want])
	}
}

func TestKeyValidation(t *testing.T) {
	store, _ := testStore("")

	for _, key := range []string{"", "   ", "../secrets.txt", "a/../../outside"} {
		if _, err := store.Put(context.Background(), key, strings.NewReader("x"), 1, storage.PutOptions{}); err == nil {
			t.Fatalf("key %q accepted, want error", key)
		}
	}

	// A leading slash is trimmed rather than rejected.
	if _, err := store.Put(context.Background(), "/backups/askdb.db", strings.NewReader("x"), 1, storage.PutOptions{}); err != nil {
		t.Fatalf("leading slash: %v", err)
	}
}

func TestGetRoundTrip(t *testing.T) {
	store, _ := testStore("pfx")
	ctx := context.Background()

	if _, err := store.Put(ctx, "backups/askdb.db", strings.NewReader("sqlite-bytes"), 12, storage.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	body, err := store.Get(ctx, "backups/askdb.db")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "sqlite-bytes" {
		t.Fatalf("body = %q", data)
	}

	if _, err := store.Get(ctx, "backups/missing.db"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("missing object error = %v, want ErrObjectNotFound", err)
	}
}

func TestStatReportsSize(t *testing.T) {
	store, _ := testStore("")
	ctx := context.Background()

	if _, err := store.Put(ctx, "snapshots/t.parquet", strings.NewReader("12345"), 5, storage.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	info, err := store.Stat(ctx, "snapshots/t.parquet")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size != 5 {
		t.Fatalf("size = %d, want 5", info.Size)
	}

	if _, err := store.Stat(ctx, "snapshots/missing.parquet"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("missing stat error = %v, want ErrObjectNotFound", err)
	}
}

func TestDeleteIgnoresMissingObjects(t *testing.T) {
	store, fake := testStore("")
	ctx := context.Background()

	fake.removeErr = storage.ErrObjectNotFound
	if err := store.Delete(ctx, "snapshots/gone.parquet"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	fake.removeErr = errors.New("bucket unavailable")
	if err := store.Delete(ctx, "snapshots/gone.parquet"); err == nil {
		t.Fatal("expected delete error")
	}
}

func TestCleanPrefix(t *testing.T) {
	cases := map[string]string{
		"":             "",
		"/":            "",
		"  ":           "",
		"askdb/prod":   "askdb/prod",
		"/askdb/prod/": "askdb/prod",
		"a//b":         "a/b",
	}
	for in, want := range cases {
		if got := cleanPrefix(in); got != want {
			t.Fatalf("cleanPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseEndpoint(t *testing.T) {
	cases := []struct {
		raw      string
		useSSL   bool
		wantHost string
		wantTLS  bool
		wantErr  bool
	}{
		{raw: "localhost:9000", useSSL: false, wantHost: "localhost:9000", wantTLS: false},
		{raw: "localhost:9000", useSSL: true, wantHost: "localhost:9000", wantTLS: true},
		{raw: "https://minio.example.com", useSSL: false, wantHost: "minio.example.com", wantTLS: true},
		{raw: "http://minio.internal:9000", useSSL: false, wantHost: "minio.internal:9000", wantTLS: false},
		{raw: "", wantErr: true},
		{raw: "https://", wantErr: true},
	}
	for _, tc := range cases {
		host, tls, err := parseEndpoint(tc.raw, tc.useSSL)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseEndpoint(%q) succeeded, want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseEndpoint(%q): %v", tc.raw, err)
		}
		if host != tc.wantHost || tls != tc.wantTLS {
			t.Fatalf("parseEndpoint(%q, %v) = (%q, %v), want (%q, %v)", tc.raw, tc.useSSL, host, tls, tc.wantHost, tc.wantTLS)
		}
	}
}
