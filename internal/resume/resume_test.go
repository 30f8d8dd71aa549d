package resume

import (
	"testing"
	"time"

	"github.com/marqueymarc/readflow/internal/kv"
)

func TestSaver_SaveLoadRoundTrip(t *testing.T) {
	store := kv.NewMemoryStore()
	s := NewSaver(store, 10*time.Millisecond)

	s.Save("item-1", State{ChunkIndex: 2, Offset: 12.5, Absolute: 140.5})
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	got, ok, err := s.Load("item-1")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.ChunkIndex != 2 || got.Offset != 12.5 || got.Absolute != 140.5 {
		t.Errorf("state = %+v", got)
	}

	id, ok, err := s.LastPlayed()
	if err != nil || !ok || id != "item-1" {
		t.Errorf("LastPlayed = %q %v %v", id, ok, err)
	}
}

func TestSaver_DebouncesWrites(t *testing.T) {
	store := kv.NewMemoryStore()
	s := NewSaver(store, 50*time.Millisecond)

	// A burst of position updates coalesces; only the last value lands.
	for i := 0; i < 20; i++ {
		s.Save("item-1", State{ChunkIndex: 0, Offset: float64(i)})
	}

	// Nothing durable yet inside the debounce window.
	if _, ok, _ := store.Get("resume/item-1"); ok {
		t.Error("write landed before the debounce window elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if data, ok, _ := store.Get("resume/item-1"); ok {
			if string(data) == "" {
				t.Fatal("empty record")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("debounced write never landed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	got, ok, err := s.Load("item-1")
	if err != nil || !ok || got.Offset != 19 {
		t.Errorf("Load after debounce = %+v %v %v, want offset 19", got, ok, err)
	}
}

func TestSaver_PendingWinsOverDurable(t *testing.T) {
	store := kv.NewMemoryStore()
	s := NewSaver(store, time.Hour) // never auto-flushes

	s.Save("item-1", State{ChunkIndex: 1, Offset: 3})
	got, ok, err := s.Load("item-1")
	if err != nil || !ok || got.ChunkIndex != 1 || got.Offset != 3 {
		t.Errorf("pending save not visible: %+v %v %v", got, ok, err)
	}
}

func TestSaver_Forget(t *testing.T) {
	store := kv.NewMemoryStore()
	s := NewSaver(store, 10*time.Millisecond)

	s.Save("item-1", State{ChunkIndex: 0, Offset: 1})
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := s.Forget("item-1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	if _, ok, _ := s.Load("item-1"); ok {
		t.Error("record survived Forget")
	}
}

func TestSaver_LoadMissingItem(t *testing.T) {
	s := NewSaver(kv.NewMemoryStore(), 10*time.Millisecond)
	if _, ok, err := s.Load("nope"); ok || err != nil {
		t.Errorf("Load(missing) = ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.LastPlayed(); ok || err != nil {
		t.Errorf("LastPlayed on empty store = ok=%v err=%v", ok, err)
	}
}
