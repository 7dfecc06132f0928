package memory

import (
	"bytes"
	"context"
	"testing"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "backups/snap.json", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	if uri != "memory://backups/snap.json" {
		t.Fatalf("unexpected uri %s", uri)
	}
	payload[0] = 'C'
	stored, ok := store.Object("backups/snap.json")
	if !ok || string(stored) != "content" {
		t.Fatalf("expected stored copy to be immutable, got %q", stored)
	}
	stored[0] = 'X'
	again, _ := store.Object("backups/snap.json")
	if string(again) != "content" {
		t.Fatalf("expected Object to return a copy, got %q", again)
	}
	if paths := store.Paths(); len(paths) != 1 || paths[0] != "backups/snap.json" {
		t.Fatalf("unexpected paths %v", paths)
	}
}
