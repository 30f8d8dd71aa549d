package synth

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// mock audio parameters
const (
	mockSampleRate     = 22050
	mockCharsPerSecond = 16.0
)

// MockSynthesizer fabricates silent WAV audio locally, sized so playback
// lasts about as long as real synthesis of the same text would. It backs
// mock mode and tests; no network involved.
type MockSynthesizer struct {
	// Delay simulates service latency. Zero means respond immediately.
	Delay time.Duration
}

// NewMockSynthesizer creates a mock synthesizer with no simulated latency.
func NewMockSynthesizer() *MockSynthesizer {
	return &MockSynthesizer{}
}

// Synthesize returns silent placeholder audio for the request.
func (m *MockSynthesizer) Synthesize(ctx context.Context, req Request) (*Payload, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, NewError("synthesis canceled", ctx.Err())
		}
	}

	seconds := float64(len(req.Text)) / mockCharsPerSecond
	if seconds < 1 {
		seconds = 1
	}

	samples := int(seconds * mockSampleRate)
	pcm := &PCM{
		SampleRate: mockSampleRate,
		Channels:   1,
		Data:       make([]byte, samples*2), // 16-bit silence
	}

	log.Debug("mock synthesis",
		"item", req.ItemID,
		"chunk", req.ChunkIndex,
		"chars", len(req.Text),
		"seconds", seconds)

	return &Payload{
		Audio:       EncodeWAV(pcm),
		ContentType: MockContentType,
		Mock:        true,
	}, nil
}
