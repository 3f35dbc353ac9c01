package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"agrobridge/internal/blob/core"
)

func TestStore_MockedBasicFlow(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("driver = %v", store.Driver())
	}
	if _, err := store.Put(ctx, "snapshots/time/1", bytes.NewReader([]byte(`{"a":1}`)), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "snapshots/time/1", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}
	info, rc, err := store.Get(ctx, "snapshots/time/1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != `{"a":1}` {
		t.Fatalf("payload = %q", b)
	}
	if info.Key != "snapshots/time/1" {
		t.Fatalf("info = %+v", info)
	}
	list, err := store.List(ctx, "snapshots/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	existed, err := store.Delete(ctx, "snapshots/time/1")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.Head(ctx, "snapshots/time/1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head after delete: %v", err)
	}
}

func TestStore_OpenFromEnvMinimal(t *testing.T) {
	t.Setenv("AGROBRIDGE_BLOB_S3_BUCKET", "snapshots")
	t.Setenv("AGROBRIDGE_BLOB_S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	store, err := OpenFromEnv(context.Background())
	if err != nil {
		t.Fatalf("OpenFromEnv: %v", err)
	}
	if store.Driver() != core.DriverS3 {
		t.Fatalf("driver = %v", store.Driver())
	}
}

func TestDecodeChunkedHelper(t *testing.T) {
	if out, ok := decodeChunked([]byte("4\r\nwxyz\r\n0\r\n")); !ok || string(out) != "wxyz" {
		t.Fatalf("decodeChunked = %q ok=%v", out, ok)
	}
	if _, ok := decodeChunked([]byte("5\r\nwxyz\r\n0\r\n")); ok {
		t.Fatalf("size mismatch must not decode")
	}
	if _, ok := decodeChunked([]byte("plain")); ok {
		t.Fatalf("plain body must not decode as chunked")
	}
}
