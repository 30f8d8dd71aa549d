// Package feed defines the queue items the playback engine consumes.
//
// Items are owned by the triage/queue layer; the engine treats them as
// read-only input keyed by ID.
package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Item is a single saved article in the listening queue.
type Item struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Author  string `json:"author,omitempty"`
	Source  string `json:"source,omitempty"`
	Text    string `json:"text"`
	Preview string `json:"preview,omitempty"`
}

// SpeechText returns the text to synthesize for the item. Items with no
// extractable text still yield something speakable.
func (it Item) SpeechText() string {
	if strings.TrimSpace(it.Text) != "" {
		return it.Text
	}
	if strings.TrimSpace(it.Preview) != "" {
		return it.Preview
	}
	return it.Title
}

// LoadFile reads a JSON snapshot of queue items, either a top-level array
// or an object with an "items" field.
func LoadFile(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed snapshot: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}

	var wrapped struct {
		Items []Item `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse feed snapshot %s: %w", path, err)
	}
	return wrapped.Items, nil
}
