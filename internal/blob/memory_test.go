package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	info, err := store.Put(ctx, "runs/abc.json", strings.NewReader(`{"id":"abc"}`), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"scope_id": "cohort-1"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "runs/abc.json" || info.Size != 12 || info.ContentType != "application/json" {
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
	if got.Metadata["scope_id"] != "cohort-1" {
		t.Fatalf("metadata = %v", got.Metadata)
	}

	head, err := store.Head(ctx, "runs/abc.json")
	if err != nil || head.Size != info.Size {
		t.Fatalf("Head = %+v, %v", head, err)
	}
}

func TestMemoryStorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil ||
		!strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected create-only rejection, got %v", err)
	}
}

func TestMemoryStoreGetReturnsDetachedCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	if _, err := store.Put(ctx, "k", strings.NewReader("payload"), PutOptions{
		Metadata: map[string]string{"label": "baseline"},
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	first, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rc.Close()
	first.Metadata["label"] = "mutated"

	second, rc, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	rc.Close()
	if second.Metadata["label"] != "baseline" {
		t.Fatalf("stored metadata mutated through a returned copy: %v", second.Metadata)
	}
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

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
	ok, err = store.Delete(ctx, "runs/a.json")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v, want false", ok, err)
	}
}

func TestMemoryStorePresignUnsupported(t *testing.T) {
	_, err := NewMemory().PresignURL(context.Background(), "k", SignedURLOptions{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
