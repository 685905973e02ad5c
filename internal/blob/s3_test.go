package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewS3MockForTests()

	info, err := store.Put(ctx, "runs/abc.json", strings.NewReader(`{"id":"abc"}`), PutOptions{
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "runs/abc.json" || info.Size != 12 {
		t.Fatalf("put info = %+v", info)
	}

	got, rc, err := store.Get(ctx, "runs/abc.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != `{"id":"abc"}` {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" {
		t.Fatalf("content type = %s", got.ContentType)
	}
}

func TestS3StorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := NewS3MockForTests()

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil ||
		!strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected create-only rejection, got %v", err)
	}
}

func TestS3StoreHeadMissingKey(t *testing.T) {
	store := NewS3MockForTests()
	if _, err := store.Head(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing object")
	}
}

func TestS3StoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewS3MockForTests()

	for _, key := range []string{"runs/b.json", "runs/a.json", "exports/x.csv"} {
		if _, err := store.Put(ctx, key, strings.NewReader("data"), PutOptions{}); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	infos, err := store.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "runs/a.json" || infos[1].Key != "runs/b.json" {
		t.Fatalf("List = %+v, want sorted runs/ keys", infos)
	}

	ok, err := store.Delete(ctx, "runs/a.json")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v", ok, err)
	}
	infos, err = store.List(ctx, "runs/")
	if err != nil || len(infos) != 1 {
		t.Fatalf("List after delete = %+v, %v", infos, err)
	}
}

func TestS3StorePresign(t *testing.T) {
	ctx := context.Background()
	store := NewS3MockForTests()

	url, err := store.PresignURL(ctx, "runs/abc.json", SignedURLOptions{})
	if err != nil {
		t.Fatalf("PresignURL: %v", err)
	}
	if !strings.Contains(url, "runs/abc.json") || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("presigned url = %s", url)
	}

	if _, err := store.PresignURL(ctx, "runs/abc.json", SignedURLOptions{Method: "delete"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for non-GET, got %v", err)
	}
}

func TestBlobOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("GROWTHCORE_BLOB_DRIVER", "memory")
	store, err := Open(ctx)
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("Open memory = %v, %v", store, err)
	}

	t.Setenv("GROWTHCORE_BLOB_DRIVER", "fs")
	t.Setenv("GROWTHCORE_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(ctx)
	if err != nil || store.Driver() != DriverFilesystem {
		t.Fatalf("Open fs = %v, %v", store, err)
	}

	t.Setenv("GROWTHCORE_BLOB_DRIVER", "bogus")
	if _, err := Open(ctx); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
