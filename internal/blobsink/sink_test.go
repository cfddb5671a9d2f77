package blobsink

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func newMemSink(t *testing.T) *Sink {
	t.Helper()
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	if err != nil {
		t.Fatalf("open mem bucket: %v", err)
	}
	t.Cleanup(func() { _ = bucket.Close() })
	return NewWithBucket(bucket, "objects", time.Hour, nil)
}

func stageFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staged.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write staging file: %v", err)
	}
	return path
}

func TestUploadAndStream(t *testing.T) {
	ctx := context.Background()
	sink := newMemSink(t)
	staged := stageFile(t, "hello mediavault")

	remoteID, err := sink.Upload(ctx, staged, "ep01.mkv")
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if remoteID == "" {
		t.Fatalf("expected a remote id")
	}

	ok, err := sink.Exists(ctx, remoteID)
	if err != nil || !ok {
		t.Fatalf("expected object to exist, ok=%v err=%v", ok, err)
	}

	r, err := sink.Stream(ctx, remoteID)
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "hello mediavault" {
		t.Fatalf("unexpected content %q", data)
	}

	size, contentType, err := sink.Attributes(ctx, remoteID)
	if err != nil {
		t.Fatalf("attributes failed: %v", err)
	}
	if size != int64(len("hello mediavault")) {
		t.Fatalf("unexpected size %d", size)
	}
	if contentType == "" {
		t.Fatalf("expected a content type")
	}
}

func TestExistsUnknownID(t *testing.T) {
	sink := newMemSink(t)
	ok, err := sink.Exists(context.Background(), "nope")
	if err != nil {
		t.Fatalf("exists failed: %v", err)
	}
	if ok {
		t.Fatalf("unknown id must not exist")
	}
}

func TestUploadMissingStagingFile(t *testing.T) {
	sink := newMemSink(t)
	if _, err := sink.Upload(context.Background(), "/does/not/exist", "x.bin"); err == nil {
		t.Fatalf("expected error for missing staging file")
	}
}

func TestRemoteIDsAreOpaqueAndUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewRemoteID()
		if len(id) != 16 {
			t.Fatalf("expected 16-char id, got %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate remote id %q", id)
		}
		seen[id] = true
	}
}
