package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t  "} {
		chunks := Split(text, DefaultLimits())
		if len(chunks) != 1 {
			t.Fatalf("Split(%q) returned %d chunks, want 1", text, len(chunks))
		}
		if chunks[0] != "" {
			t.Errorf("Split(%q)[0] = %q, want empty chunk", text, chunks[0])
		}
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	text := "A short note about nothing in particular."
	chunks := Split(text, DefaultLimits())
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("chunk = %q, want %q", chunks[0], text)
	}
}

func TestSplit_RespectsCaps(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 120)
	limits := Limits{First: 400, Second: 800, Max: 1500}

	chunks := Split(text, limits)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		chunkCap := limits.Max
		if i == 0 {
			chunkCap = limits.First
		} else if i == 1 {
			chunkCap = limits.Second
		}
		if len(chunk) > chunkCap {
			t.Errorf("chunk %d length %d exceeds cap %d", i, len(chunk), chunkCap)
		}
	}
}

func TestSplit_ReconstructsText(t *testing.T) {
	// Concatenation modulo boundary whitespace must reproduce the input.
	text := strings.Repeat("One sentence here. Another follows it. ", 200)
	chunks := Split(text, DefaultLimits())

	joined := strings.Join(chunks, " ")
	normalize := func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}
	if normalize(joined) != normalize(text) {
		t.Error("concatenated chunks do not reconstruct the original text")
	}
}

func TestSplit_PrefersParagraphBreaks(t *testing.T) {
	para := strings.Repeat("Words and more words here. ", 12) // ~324 chars
	text := para + "\n\n" + para
	chunks := Split(text, Limits{First: 400, Second: 800, Max: 1500})

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if strings.Contains(chunks[0], "\n\n") {
		t.Error("chunk 0 spans a paragraph break")
	}
	if chunks[0] != strings.TrimSpace(para) {
		t.Errorf("chunk 0 = %q, want first paragraph", chunks[0])
	}
}

func TestSplit_RejectsEarlyBoundary(t *testing.T) {
	// One period near the start, then an unbroken run: the period falls
	// before 60% of the cap, so the chunk is cut at a space instead.
	text := "Hi. " + strings.Repeat("a", 300) + " " + strings.Repeat("b", 300)
	chunks := Split(text, Limits{First: 400, Second: 800, Max: 1500})

	if len(chunks[0]) <= 4 {
		t.Errorf("chunk 0 = %q, boundary accepted too early", chunks[0])
	}
}

func TestSplit_HardCutWithoutBoundary(t *testing.T) {
	text := strings.Repeat("x", 5000)
	limits := Limits{First: 400, Second: 800, Max: 1500}
	chunks := Split(text, limits)

	total := 0
	for i, chunk := range chunks {
		total += len(chunk)
		chunkCap := limits.Max
		if i == 0 {
			chunkCap = limits.First
		} else if i == 1 {
			chunkCap = limits.Second
		}
		if len(chunk) > chunkCap {
			t.Errorf("chunk %d length %d exceeds cap %d", i, len(chunk), chunkCap)
		}
	}
	if total != 5000 {
		t.Errorf("hard cuts lost characters: total %d, want 5000", total)
	}
}

func TestSplit_TinyCapsKeepEveryByte(t *testing.T) {
	// A cap of 1 makes every boundary window degenerate; each byte must
	// still land in exactly one chunk.
	text := "ab. cd. ef"
	chunks := Split(text, Limits{First: 1, Second: 1, Max: 1})

	joined := strings.Join(chunks, "")
	want := strings.Join(strings.Fields(text), "")
	if joined != want {
		t.Errorf("chunks %q dropped bytes: joined %q, want %q", chunks, joined, want)
	}
	for i, chunk := range chunks {
		if chunk == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
}

func TestSplit_HardCutKeepsRunesIntact(t *testing.T) {
	// Space-free multi-byte text forces hard cuts; none may land inside a
	// rune.
	text := strings.Repeat("日本語のテキスト", 300)
	limits := Limits{First: 400, Second: 800, Max: 1500}
	chunks := Split(text, limits)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Errorf("chunk %d is not valid UTF-8", i)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("hard cuts lost bytes")
	}
}

func TestSplit_FiveThousandCharScenario(t *testing.T) {
	sentence := "Reading saved articles aloud turns a commute into a library. "
	var b strings.Builder
	for b.Len() < 5000 {
		b.WriteString(sentence)
	}
	text := b.String()[:5000]

	chunks := Split(text, Limits{First: 400, Second: 800, Max: 1500})

	if len(chunks) < 4 || len(chunks) > 6 {
		t.Errorf("got %d chunks, want 4-6 for 5000 chars", len(chunks))
	}
	if len(chunks[0]) > 400 {
		t.Errorf("chunk 0 length %d exceeds 400", len(chunks[0]))
	}
	if len(chunks) > 1 && len(chunks[1]) > 800 {
		t.Errorf("chunk 1 length %d exceeds 800", len(chunks[1]))
	}
}

func TestCache_Memoizes(t *testing.T) {
	c := NewCache(DefaultLimits())

	first := c.ForItem("item-1", "Some text to split right here.")
	second := c.ForItem("item-1", "Entirely different text")

	if len(first) != len(second) || first[0] != second[0] {
		t.Error("cache recomputed chunks for a known item")
	}

	c.Forget("item-1")
	third := c.ForItem("item-1", "Entirely different text")
	if third[0] != "Entirely different text" {
		t.Errorf("chunks not recomputed after Forget: %q", third[0])
	}
}
