package durations

import (
	"math"
	"strings"
	"testing"
)

func chunksOfSizes(sizes ...int) []string {
	chunks := make([]string, len(sizes))
	for i, n := range sizes {
		chunks[i] = strings.Repeat("a", n)
	}
	return chunks
}

func TestEstimate_DefaultRate(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(1600, 1600, 800)

	// With no measurements, 16 chars/sec applies: (1600+1600+800)/16 = 250s.
	total := m.TotalEstimated("item", chunks)
	if math.Abs(total-250) > 0.01 {
		t.Errorf("TotalEstimated = %.2f, want 250", total)
	}
}

func TestEstimate_MeasuredIsAuthoritative(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(1600, 800)

	m.RecordMeasured("item", 0, 123.4)
	if got := m.Estimate("item", 0, chunks); got != 123.4 {
		t.Errorf("Estimate = %.2f, want measured 123.4", got)
	}
}

func TestRecordMeasured_IgnoresNonPositive(t *testing.T) {
	m := NewModel()
	m.RecordMeasured("item", 0, 0)
	m.RecordMeasured("item", 0, -5)
	if _, ok := m.Measured("item", 0); ok {
		t.Error("non-positive duration was recorded")
	}
}

func TestEstimate_LearnsRateFromOtherChunks(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(1000, 1000)

	// Chunk 0 measured at 50s gives 20 chars/sec for chunk 1.
	m.RecordMeasured("item", 0, 50)
	got := m.Estimate("item", 1, chunks)
	if math.Abs(got-50) > 0.01 {
		t.Errorf("Estimate = %.2f, want 50 at learned 20 chars/sec", got)
	}
}

func TestEstimate_RateClamped(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(1000, 1000)

	// 1000 chars in 10s would be 100 chars/sec; clamp to 26.
	m.RecordMeasured("fast", 0, 10)
	got := m.Estimate("fast", 1, chunks)
	want := 1000.0 / 26.0
	if math.Abs(got-want) > 0.01 {
		t.Errorf("Estimate = %.2f, want %.2f (clamped rate)", got, want)
	}

	// 1000 chars in 500s would be 2 chars/sec; clamp to 10.
	m.RecordMeasured("slow", 0, 500)
	got = m.Estimate("slow", 1, chunks)
	want = 1000.0 / 10.0
	if math.Abs(got-want) > 0.01 {
		t.Errorf("Estimate = %.2f, want %.2f (clamped rate)", got, want)
	}
}

func TestTotalEstimated_Monotonic(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(1600, 1600, 800)

	prev := m.TotalEstimated("item", chunks)

	// Measure chunks one at a time, each much shorter than its estimate.
	for i := range chunks {
		m.RecordMeasured("item", i, 5)
		total := m.TotalEstimated("item", chunks)
		if total < prev-0.001 {
			t.Fatalf("total decreased after measuring chunk %d: %.2f -> %.2f", i, prev, total)
		}
		prev = total
	}
}

func TestResolve_RoundTrip(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(400, 800, 1500, 900)
	m.RecordMeasured("item", 1, 42)

	cases := []struct {
		chunk  int
		offset float64
	}{
		{0, 0},
		{0, 10},
		{1, 0.5},
		{1, 41.5},
		{2, 30},
		{3, 12.25},
	}

	for _, tc := range cases {
		abs := m.ResolveChunk("item", chunks, tc.chunk, tc.offset)
		chunk, offset := m.ResolveAbsolute("item", chunks, abs)
		if chunk != tc.chunk {
			t.Errorf("round trip (%d, %.2f): got chunk %d", tc.chunk, tc.offset, chunk)
			continue
		}
		if math.Abs(offset-tc.offset) > 0.2 {
			t.Errorf("round trip (%d, %.2f): offset %.2f outside tolerance", tc.chunk, tc.offset, offset)
		}
	}
}

func TestResolveAbsolute_Overrun(t *testing.T) {
	m := NewModel()
	chunks := chunksOfSizes(160, 160)

	// Each chunk estimates to 10s; aim far past the end.
	chunk, offset := m.ResolveAbsolute("item", chunks, 1000)
	if chunk != len(chunks)-1 {
		t.Errorf("overrun resolved to chunk %d, want last chunk", chunk)
	}
	if offset > 10-0.1+0.001 {
		t.Errorf("offset %.2f not clamped below chunk end", offset)
	}
}

func TestForget(t *testing.T) {
	m := NewModel()
	m.RecordMeasured("item", 0, 9)
	m.Forget("item")
	if _, ok := m.Measured("item", 0); ok {
		t.Error("measurement survived Forget")
	}
}
