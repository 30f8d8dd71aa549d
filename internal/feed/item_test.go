package feed

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSpeechTextFallsBack(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want string
	}{
		{"full text", Item{Title: "T", Preview: "P", Text: "body"}, "body"},
		{"preview only", Item{Title: "T", Preview: "P"}, "P"},
		{"title only", Item{Title: "T"}, "T"},
		{"whitespace text", Item{Title: "T", Text: "  \n\t "}, "T"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.item.SpeechText(); got != tc.want {
				t.Errorf("SpeechText() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestLoadFileShapes(t *testing.T) {
	dir := t.TempDir()

	array := filepath.Join(dir, "array.json")
	os.WriteFile(array, []byte(`[{"id":"a","title":"A","text":"body"}]`), 0o644)

	wrapped := filepath.Join(dir, "wrapped.json")
	os.WriteFile(wrapped, []byte(`{"items":[{"id":"b","title":"B","text":"body"}]}`), 0o644)

	items, err := LoadFile(array)
	if err != nil || len(items) != 1 || items[0].ID != "a" {
		t.Errorf("array shape: %v %v", items, err)
	}

	items, err = LoadFile(wrapped)
	if err != nil || len(items) != 1 || items[0].ID != "b" {
		t.Errorf("wrapped shape: %v %v", items, err)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("missing file did not error")
	}
}
