// Package durations tracks measured and estimated chunk audio durations.
//
// Real durations arrive only after a chunk's audio has played or been
// decoded; until then the model estimates from a per-item characters-per-
// second rate learned from the chunks that have been measured.
package durations

import "sync"

const (
	// defaultCharsPerSecond is the speaking rate assumed before any chunk
	// of an item has a measured duration.
	defaultCharsPerSecond = 16.0
	// minCharsPerSecond and maxCharsPerSecond clamp learned rates to a
	// sane range so a single odd measurement cannot skew every estimate.
	minCharsPerSecond = 10.0
	maxCharsPerSecond = 26.0

	// endGuardSeconds keeps resolved offsets strictly inside a chunk so a
	// resumed seek never lands on the chunk's end.
	endGuardSeconds = 0.1
)

// Model holds per-item measured durations and derives estimates for the
// chunks that have none yet.
type Model struct {
	mu       sync.Mutex
	measured map[string]map[int]float64
	// floor is the high-water mark of each item's estimated total, so
	// totals never shrink as measurements replace estimates.
	floor map[string]float64
}

// NewModel creates an empty duration model.
func NewModel() *Model {
	return &Model{
		measured: make(map[string]map[int]float64),
		floor:    make(map[string]float64),
	}
}

// RecordMeasured stores an authoritative duration for a chunk. Non-positive
// values are ignored.
func (m *Model) RecordMeasured(itemID string, chunkIndex int, seconds float64) {
	if seconds <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks, ok := m.measured[itemID]
	if !ok {
		chunks = make(map[int]float64)
		m.measured[itemID] = chunks
	}
	chunks[chunkIndex] = seconds
}

// Measured returns the recorded duration for a chunk, if any.
func (m *Model) Measured(itemID string, chunkIndex int) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seconds, ok := m.measured[itemID][chunkIndex]
	return seconds, ok
}

// Estimate returns the chunk's measured duration when known, otherwise an
// estimate from the item's learned characters-per-second rate.
func (m *Model) Estimate(itemID string, chunkIndex int, chunks []string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.estimateLocked(itemID, chunkIndex, chunks)
}

func (m *Model) estimateLocked(itemID string, chunkIndex int, chunks []string) float64 {
	if seconds, ok := m.measured[itemID][chunkIndex]; ok {
		return seconds
	}
	if chunkIndex < 0 || chunkIndex >= len(chunks) {
		return 1
	}

	rate := m.rateLocked(itemID, chunkIndex, chunks)
	seconds := float64(len(chunks[chunkIndex])) / rate
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// rateLocked derives chars/sec from every other measured chunk of the item.
func (m *Model) rateLocked(itemID string, excludeIndex int, chunks []string) float64 {
	var totalChars, totalSeconds float64
	for idx, seconds := range m.measured[itemID] {
		if idx == excludeIndex || idx < 0 || idx >= len(chunks) {
			continue
		}
		totalChars += float64(len(chunks[idx]))
		totalSeconds += seconds
	}

	if totalSeconds <= 0 {
		return defaultCharsPerSecond
	}
	rate := totalChars / totalSeconds
	if rate < minCharsPerSecond {
		return minCharsPerSecond
	}
	if rate > maxCharsPerSecond {
		return maxCharsPerSecond
	}
	return rate
}

// TotalEstimated returns the item's full estimated duration. The total is
// monotonic: it never decreases as more chunks get measured.
func (m *Model) TotalEstimated(itemID string, chunks []string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total float64
	for i := range chunks {
		total += m.estimateLocked(itemID, i, chunks)
	}

	if floor := m.floor[itemID]; total < floor {
		total = floor
	} else {
		m.floor[itemID] = total
	}
	return total
}

// ResolveAbsolute maps an absolute position within the item to the chunk
// containing it and a chunk-local offset. Positions past the end land on
// the last chunk.
func (m *Model) ResolveAbsolute(itemID string, chunks []string, targetSeconds float64) (chunkIndex int, offsetSeconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(chunks) == 0 || targetSeconds <= 0 {
		return 0, 0
	}

	var cumulative float64
	for i := range chunks {
		d := m.estimateLocked(itemID, i, chunks)
		if targetSeconds < cumulative+d || i == len(chunks)-1 {
			return i, clampOffset(targetSeconds-cumulative, d)
		}
		cumulative += d
	}
	return 0, 0
}

// ResolveChunk maps a (chunk, offset) pair back to an absolute position.
func (m *Model) ResolveChunk(itemID string, chunks []string, chunkIndex int, offsetSeconds float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if chunkIndex > len(chunks) {
		chunkIndex = len(chunks)
	}
	var total float64
	for i := 0; i < chunkIndex; i++ {
		total += m.estimateLocked(itemID, i, chunks)
	}
	if offsetSeconds > 0 {
		total += offsetSeconds
	}
	return total
}

// Forget drops every record for an item, typically after triage removes it.
func (m *Model) Forget(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.measured, itemID)
	delete(m.floor, itemID)
}

func clampOffset(offset, chunkDuration float64) float64 {
	if offset < 0 {
		return 0
	}
	if max := chunkDuration - endGuardSeconds; offset > max {
		if max < 0 {
			return 0
		}
		return max
	}
	return offset
}
