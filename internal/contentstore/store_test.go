package contentstore

import (
	"context"
	"testing"

	"github.com/antigravity-dev/prospector/internal/corestore"
	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	core, err := corestore.Open(":memory:")
	if err != nil {
		t.Fatalf("open core store: %v", err)
	}
	t.Cleanup(func() { core.Close() })
	store, err := Open(core.DB())
	if err != nil {
		t.Fatalf("open content store: %v", err)
	}
	return store
}

func TestPutIsIdempotentByContentHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	payload := []byte("hello world")

	id1, hash1, created1, err := store.Put(ctx, uuid.NewString(), payload, "text/plain", "")
	if err != nil {
		t.Fatalf("first put: %v", err)
	}
	if !created1 {
		t.Fatal("expected the first put to create a new row")
	}

	id2, hash2, created2, err := store.Put(ctx, uuid.NewString(), payload, "text/plain", "")
	if err != nil {
		t.Fatalf("second put: %v", err)
	}
	if created2 {
		t.Fatal("expected the second put with identical bytes to reuse the existing blob")
	}
	if id1 != id2 || hash1 != hash2 {
		t.Fatalf("expected identical stored id/hash, got (%s,%s) vs (%s,%s)", id1, hash1, id2, hash2)
	}
}

func TestGetByHashAndHas(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	payload := []byte("evidence payload")

	hash := Hash(payload)
	has, err := store.Has(ctx, hash)
	if err != nil {
		t.Fatalf("has before put: %v", err)
	}
	if has {
		t.Fatal("expected Has to report false before any put")
	}

	if _, _, _, err := store.Put(ctx, uuid.NewString(), payload, "application/json", "raw"); err != nil {
		t.Fatalf("put: %v", err)
	}

	has, err = store.Has(ctx, hash)
	if err != nil {
		t.Fatalf("has after put: %v", err)
	}
	if !has {
		t.Fatal("expected Has to report true after put")
	}

	blob, err := store.GetByHash(ctx, hash)
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if string(blob.ContentBytes) != string(payload) {
		t.Fatalf("expected round-tripped bytes, got %q", blob.ContentBytes)
	}
}

func TestGetUnknownIDReturnsError(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected an error loading an unknown blob id")
	}
}
