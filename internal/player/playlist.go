package player

import "github.com/marqueymarc/readflow/internal/feed"

// Playlist is the ordered listening queue with a per-position enabled flag.
// It is not safe for concurrent use; the session guards it.
type Playlist struct {
	items   []feed.Item
	enabled []bool
}

// NewPlaylist creates a playlist with every item enabled.
func NewPlaylist(items []feed.Item) *Playlist {
	p := &Playlist{}
	p.Reset(items)
	return p
}

// Reset replaces the playlist, enabling every item.
func (p *Playlist) Reset(items []feed.Item) {
	p.items = append([]feed.Item(nil), items...)
	p.enabled = make([]bool, len(items))
	for i := range p.enabled {
		p.enabled[i] = true
	}
}

// Len returns the number of items.
func (p *Playlist) Len() int { return len(p.items) }

// Item returns the item at index i.
func (p *Playlist) Item(i int) (feed.Item, bool) {
	if i < 0 || i >= len(p.items) {
		return feed.Item{}, false
	}
	return p.items[i], true
}

// Items returns a copy of the current items.
func (p *Playlist) Items() []feed.Item {
	return append([]feed.Item(nil), p.items...)
}

// IndexOf returns the first index of the item id, or -1.
func (p *Playlist) IndexOf(itemID string) int {
	for i, item := range p.items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// SetEnabled flags whether the item at i participates in auto-advance.
func (p *Playlist) SetEnabled(i int, enabled bool) {
	if i >= 0 && i < len(p.enabled) {
		p.enabled[i] = enabled
	}
}

// Enabled reports whether the item at i participates in auto-advance.
func (p *Playlist) Enabled(i int) bool {
	return i >= 0 && i < len(p.enabled) && p.enabled[i]
}

// NextEnabled returns the first enabled index after `after` for which
// accept returns true, or -1. A nil accept accepts everything.
func (p *Playlist) NextEnabled(after int, accept func(feed.Item) bool) int {
	for i := after + 1; i < len(p.items); i++ {
		if !p.enabled[i] {
			continue
		}
		if accept == nil || accept(p.items[i]) {
			return i
		}
	}
	return -1
}

// Reconcile replaces the items while carrying each identity's enabled
// flags over by occurrence, so removing or reordering duplicates of an id
// never flips a different copy's flag. New occurrences default to enabled.
func (p *Playlist) Reconcile(items []feed.Item) {
	flags := make(map[string][]bool)
	for i, item := range p.items {
		flags[item.ID] = append(flags[item.ID], p.enabled[i])
	}

	p.items = append([]feed.Item(nil), items...)
	p.enabled = make([]bool, len(items))
	for i, item := range items {
		if prev := flags[item.ID]; len(prev) > 0 {
			p.enabled[i] = prev[0]
			flags[item.ID] = prev[1:]
		} else {
			p.enabled[i] = true
		}
	}
}
