package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFilesystemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}

	payload := `{"id":"abc"}`
	sum := sha256.Sum256([]byte(payload))
	info, err := store.Put(ctx, "runs/2026/abc.json", strings.NewReader(payload), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"label": "baseline"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.ETag != hex.EncodeToString(sum[:]) {
		t.Fatalf("etag = %s, want content hash", info.ETag)
	}
	if info.URL != "http://local.blob/runs/2026/abc.json" {
		t.Fatalf("url = %s", info.URL)
	}

	if _, err := os.Stat(filepath.Join(root, "runs", "2026", "abc.json.meta")); err != nil {
		t.Fatalf("meta sidecar missing: %v", err)
	}

	got, rc, err := store.Get(ctx, "runs/2026/abc.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != payload {
		t.Fatalf("body = %q", body)
	}
	if got.ContentType != "application/json" || got.Metadata["label"] != "baseline" {
		t.Fatalf("info = %+v", got)
	}

	head, err := store.Head(ctx, "runs/2026/abc.json")
	if err != nil || head.Size != int64(len(payload)) {
		t.Fatalf("Head = %+v, %v", head, err)
	}
}

func TestFilesystemStorePutIsCreateOnly(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}

	if _, err := store.Put(ctx, "k", strings.NewReader("one"), PutOptions{}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if _, err := store.Put(ctx, "k", strings.NewReader("two"), PutOptions{}); err == nil ||
		!strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected create-only rejection, got %v", err)
	}
}

func TestFilesystemStoreRejectsUnsafeKeys(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}

	for _, key := range []string{"", "  ", "../escape", "/absolute", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted, want rejection", key)
		}
	}
}

func TestFilesystemStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}

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
	if _, err := os.Stat(filepath.Join(root, "runs", "a.json.meta")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("meta sidecar survived delete: %v", err)
	}
	ok, err = store.Delete(ctx, "runs/a.json")
	if err != nil || ok {
		t.Fatalf("second Delete = %v, %v, want false", ok, err)
	}
}

func TestFilesystemStorePresign(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}

	url, err := store.PresignURL(ctx, "runs/a.json", SignedURLOptions{Method: "GET"})
	if err != nil || url != "http://local.blob/runs/a.json" {
		t.Fatalf("PresignURL = %s, %v", url, err)
	}
	if _, err := store.PresignURL(ctx, "runs/a.json", SignedURLOptions{Method: "PUT"}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported for PUT, got %v", err)
	}
}
