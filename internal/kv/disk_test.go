package kv

import (
	"bytes"
	"fmt"
	"math/rand"
	"strings"
	"testing"
)

func TestDiskStore_PutGetRoundTrip(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	value := []byte("some audio-ish payload bytes")
	if err := s.Put("chunk/item-1/0", value); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get("chunk/item-1/0")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get: key not found")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestDiskStore_MissingKey(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	_, ok, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get reported a missing key as present")
	}
}

func TestDiskStore_CompressionTransparent(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	// Highly repetitive data compresses; the caller must not notice.
	value := bytes.Repeat([]byte("la"), 8192)
	if err := s.Put("k", value); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if s.Size() >= int64(len(value)) {
		t.Errorf("stored size %d not smaller than payload %d", s.Size(), len(value))
	}

	got, ok, _ := s.Get("k")
	if !ok || !bytes.Equal(got, value) {
		t.Error("compressed value did not round-trip")
	}
}

func TestDiskStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	if err := s.Put("persist-key", []byte("persist-value")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewDiskStore(dir, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.Get("persist-key")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "persist-value" {
		t.Errorf("Get after reopen = %q", got)
	}
}

func TestDiskStore_EntriesByPrefix(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		s.Put(fmt.Sprintf("chunk/item-a/%d", i), []byte("x"))
	}
	s.Put("chunk/item-b/0", []byte("y"))
	s.Put("manifest/item-a", []byte("z"))

	entries, err := s.Entries("chunk/item-a/")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("Entries returned %d keys, want 3", len(entries))
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Key, "chunk/item-a/") {
			t.Errorf("unexpected key %q", e.Key)
		}
	}
}

func TestDiskStore_RecencyOrdering(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	s.Put("a", []byte("1"))
	s.Put("b", []byte("2"))
	s.Put("c", []byte("3"))

	entries, _ := s.Entries("")
	byKey := map[string]Entry{}
	for _, e := range entries {
		byKey[e.Key] = e
	}
	if !byKey["a"].StoredAt.Before(byKey["b"].StoredAt) || !byKey["b"].StoredAt.Before(byKey["c"].StoredAt) {
		t.Error("StoredAt timestamps not strictly increasing in write order")
	}
}

func TestDiskStore_EvictsOldestFirst(t *testing.T) {
	// Random payloads stay incompressible, so each entry occupies its full
	// 1KB on disk and the limit math is predictable.
	payload := func(seed int64) []byte {
		rng := rand.New(rand.NewSource(seed))
		b := make([]byte, 1024)
		rng.Read(b)
		return b
	}

	s, err := NewDiskStore(t.TempDir(), 4096)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	for i := 0; i < 8; i++ {
		if err := s.Put(fmt.Sprintf("k%d", i), payload(int64(i))); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if s.Size() > 4096 {
		t.Errorf("store size %d exceeds limit after eviction", s.Size())
	}
	if _, ok, _ := s.Get("k0"); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok, _ := s.Get("k7"); !ok {
		t.Error("newest entry was evicted")
	}
}

func TestDiskStore_Delete(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	defer s.Close()

	s.Put("gone", []byte("v"))
	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get("gone"); ok {
		t.Error("key still present after delete")
	}
	// Deleting again is fine.
	if err := s.Delete("gone"); err != nil {
		t.Errorf("Delete of absent key: %v", err)
	}
}

func TestMemoryStore_Basics(t *testing.T) {
	s := NewMemoryStore()

	s.Put("k1", []byte("v1"))
	s.Put("k2", []byte("v2"))

	got, ok, _ := s.Get("k1")
	if !ok || string(got) != "v1" {
		t.Errorf("Get k1 = %q, %v", got, ok)
	}

	entries, _ := s.Entries("k")
	if len(entries) != 2 {
		t.Errorf("Entries returned %d, want 2", len(entries))
	}

	s.Delete("k1")
	if _, ok, _ := s.Get("k1"); ok {
		t.Error("k1 present after delete")
	}
}
