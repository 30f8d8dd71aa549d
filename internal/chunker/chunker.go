// Package chunker splits article text into synthesis-sized chunks.
//
// Chunk boundaries prefer paragraph breaks, then sentence ends, then word
// breaks, so each chunk reads naturally on its own. The first two chunks
// use smaller caps so playback can start before the whole article is
// synthesized.
package chunker

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// minBoundaryFraction rejects boundaries that would leave a chunk shorter
// than this share of its cap, avoiding degenerate tiny chunks.
const minBoundaryFraction = 0.6

// Limits holds the per-chunk character caps.
type Limits struct {
	First  int // cap for chunk 0
	Second int // cap for chunk 1
	Max    int // cap for every later chunk
}

// DefaultLimits returns the standard chunk caps.
func DefaultLimits() Limits {
	return Limits{First: 400, Second: 800, Max: 1500}
}

func (l Limits) capFor(index int) int {
	switch index {
	case 0:
		if l.First > 0 {
			return l.First
		}
	case 1:
		if l.Second > 0 {
			return l.Second
		}
	}
	return l.Max
}

// Split divides text into ordered chunks. The result always has at least
// one element; empty or whitespace-only input yields a single empty chunk
// and callers must substitute a fallback string (typically the item title)
// before requesting synthesis.
func Split(text string, limits Limits) []string {
	if strings.TrimSpace(text) == "" {
		return []string{""}
	}

	var chunks []string
	pos := 0
	for pos < len(text) {
		// Skip inter-chunk whitespace.
		for pos < len(text) && isSpace(text[pos]) {
			pos++
		}
		if pos >= len(text) {
			break
		}

		chunkCap := limits.capFor(len(chunks))
		end := pos + chunkCap
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[pos:]))
			break
		}

		cut, next := findBoundary(text, pos, end, chunkCap)
		chunk := strings.TrimSpace(text[pos:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		pos = next
	}

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}

// findBoundary picks a cut position in text[pos:end], preferring a
// paragraph break, then a sentence end, then a word break. Boundaries that
// fall too early in the chunk are rejected; with no acceptable boundary
// the chunk is cut at the hard cap, backed up to a rune boundary so a cut
// never splits a multi-byte rune.
func findBoundary(text string, pos, end, chunkCap int) (cut, next int) {
	window := text[pos:end]
	earliest := int(float64(chunkCap) * minBoundaryFraction)

	if i := strings.LastIndex(window, "\n\n"); i >= 0 && i >= earliest {
		return pos + i, pos + i + 2
	}
	if i := strings.LastIndex(window, ". "); i >= 0 && i+1 >= earliest {
		return pos + i + 1, pos + i + 2
	}
	if i := strings.LastIndexByte(window, ' '); i >= 0 && i >= earliest {
		return pos + i, pos + i + 1
	}

	for end > pos && !utf8.RuneStart(text[end]) {
		end--
	}
	if end == pos {
		// The cap is smaller than the rune at pos; take the whole rune
		// rather than emitting nothing.
		_, size := utf8.DecodeRuneInString(text[pos:])
		end = pos + size
	}
	return end, end
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Cache memoizes chunk lists per item. Chunking is assumed stable for an
// item's lifetime, so the split runs once per item.
type Cache struct {
	mu     sync.Mutex
	limits Limits
	chunks map[string][]string
}

// NewCache creates a chunk cache using the given limits.
func NewCache(limits Limits) *Cache {
	if limits.Max <= 0 {
		limits = DefaultLimits()
	}
	return &Cache{limits: limits, chunks: make(map[string][]string)}
}

// ForItem returns the chunk list for the item, computing and memoizing it
// on first use. The returned slice must be treated as read-only.
func (c *Cache) ForItem(itemID, text string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunks, ok := c.chunks[itemID]; ok {
		return chunks
	}
	chunks := Split(text, c.limits)
	c.chunks[itemID] = chunks
	return chunks
}

// Forget drops the memoized chunks for an item, typically after the item
// leaves the queue.
func (c *Cache) Forget(itemID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.chunks, itemID)
}
