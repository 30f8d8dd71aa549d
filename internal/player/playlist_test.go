package player

import (
	"testing"

	"github.com/marqueymarc/readflow/internal/feed"
)

func items(ids ...string) []feed.Item {
	out := make([]feed.Item, len(ids))
	for i, id := range ids {
		out[i] = feed.Item{ID: id, Title: "t-" + id}
	}
	return out
}

func TestPlaylist_NextEnabled(t *testing.T) {
	p := NewPlaylist(items("a", "b", "c", "d"))
	p.SetEnabled(1, false)

	if got := p.NextEnabled(0, nil); got != 2 {
		t.Errorf("NextEnabled(0) = %d, want 2 (b disabled)", got)
	}
	if got := p.NextEnabled(3, nil); got != -1 {
		t.Errorf("NextEnabled past end = %d, want -1", got)
	}

	onlyD := func(it feed.Item) bool { return it.ID == "d" }
	if got := p.NextEnabled(0, onlyD); got != 3 {
		t.Errorf("NextEnabled with accept = %d, want 3", got)
	}
}

func TestPlaylist_ReconcilePreservesFlags(t *testing.T) {
	p := NewPlaylist(items("a", "b", "c"))
	p.SetEnabled(1, false)

	p.Reconcile(items("b", "c", "e"))

	if p.Enabled(0) {
		t.Error("b lost its disabled flag across reconcile")
	}
	if !p.Enabled(1) || !p.Enabled(2) {
		t.Error("c or new item e not enabled")
	}
}

func TestPlaylist_ReconcileDuplicatesByOccurrence(t *testing.T) {
	// Two copies of "a": first enabled, second disabled. Removing an
	// unrelated item must not flip which copy is disabled.
	p := NewPlaylist(items("a", "x", "a"))
	p.SetEnabled(2, false)

	p.Reconcile(items("a", "a"))

	if !p.Enabled(0) {
		t.Error("first occurrence of a lost its enabled flag")
	}
	if p.Enabled(1) {
		t.Error("second occurrence of a lost its disabled flag")
	}
}

func TestPlaylist_IndexOf(t *testing.T) {
	p := NewPlaylist(items("a", "b"))
	if p.IndexOf("b") != 1 || p.IndexOf("zz") != -1 {
		t.Error("IndexOf wrong")
	}
}
