package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"agrobridge/internal/blob/core"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("driver = %v", store.Driver())
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("abc")), core.PutOptions{Metadata: map[string]string{"a": "b"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), core.PutOptions{}); err == nil {
		t.Fatalf("expected duplicate put to fail")
	}
	info, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "abc" || info.Size != 3 {
		t.Fatalf("unexpected payload %q info %+v", b, info)
	}
	list, err := store.List(ctx, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	existed, err := store.Delete(ctx, "k")
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	if _, err := store.Head(ctx, "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("head after delete: %v", err)
	}
}

func TestStore_ReadIsolation(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("abc")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	b[0] = 'z'
	_, rc, err = store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	b2, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b2) != "abc" {
		t.Fatalf("stored payload mutated through returned copy: %q", b2)
	}
}

func TestStore_Corrupt(t *testing.T) {
	ctx := context.Background()
	store := New()
	if err := store.Corrupt("missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("corrupt missing: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("abcd")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Corrupt("k"); err != nil {
		t.Fatalf("corrupt: %v", err)
	}
	_, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if bytes.Equal(b, []byte("abcd")) {
		t.Fatalf("payload unchanged after corrupt")
	}
}
