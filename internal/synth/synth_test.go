package synth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockSynthesizer_DurationTracksTextLength(t *testing.T) {
	m := NewMockSynthesizer()

	payload, err := m.Synthesize(context.Background(), Request{
		ItemID: "item", Text: string(make([]byte, 160)), ChunkIndex: 0, Mock: true,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !payload.Mock {
		t.Error("mock payload not flagged as mock")
	}
	if payload.ContentType != MockContentType {
		t.Errorf("content type = %q, want %q", payload.ContentType, MockContentType)
	}

	pcm, err := DecodeWAV(payload.Audio)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	// 160 chars at 16 chars/sec is 10 seconds of audio.
	if got := pcm.Seconds(); got < 9.9 || got > 10.1 {
		t.Errorf("duration = %.2fs, want ~10s", got)
	}
}

func TestWAV_RoundTrip(t *testing.T) {
	in := &PCM{SampleRate: 22050, Channels: 1, Data: make([]byte, 4410)}
	for i := range in.Data {
		in.Data[i] = byte(i)
	}

	out, err := DecodeWAV(EncodeWAV(in))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.SampleRate != in.SampleRate || out.Channels != in.Channels {
		t.Errorf("format mismatch: got %d/%d", out.SampleRate, out.Channels)
	}
	if len(out.Data) != len(in.Data) {
		t.Fatalf("data length %d, want %d", len(out.Data), len(in.Data))
	}
	for i := range out.Data {
		if out.Data[i] != in.Data[i] {
			t.Fatalf("data differs at byte %d", i)
		}
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, err := DecodeWAV([]byte("definitely not audio at all, nope")); err == nil {
		t.Error("DecodeWAV accepted garbage")
	}
	if _, err := DecodeWAV(nil); err == nil {
		t.Error("DecodeWAV accepted nil")
	}
}

func TestHTTPSynthesizer_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer srv.Close()

	h := NewHTTPSynthesizer(srv.URL, 100)
	payload, err := h.Synthesize(context.Background(), Request{
		ItemID: "item", Text: "hello", Voice: "nova",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(payload.Audio) != "fake-mp3-bytes" {
		t.Errorf("audio = %q", payload.Audio)
	}
	if payload.ContentType != "audio/mpeg" {
		t.Errorf("content type = %q", payload.ContentType)
	}
	if payload.Mock {
		t.Error("real payload flagged as mock")
	}
}

func TestHTTPSynthesizer_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota\nexceeded\tfor today", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	h := NewHTTPSynthesizer(srv.URL, 100)
	_, err := h.Synthesize(context.Background(), Request{ItemID: "item", Text: "hello"})
	if err == nil {
		t.Fatal("expected error from failing service")
	}

	var synthErr *Error
	if !errors.As(err, &synthErr) {
		t.Fatalf("error type %T, want *synth.Error", err)
	}
	// The reason must be one whitespace-collapsed line.
	for _, c := range synthErr.Reason {
		if c == '\n' || c == '\t' {
			t.Errorf("reason not collapsed: %q", synthErr.Reason)
			break
		}
	}
}

func TestCollapseReason(t *testing.T) {
	got := CollapseReason("  too   many\n\twhitespace\ncharacters ")
	want := "too many whitespace characters"
	if got != want {
		t.Errorf("CollapseReason = %q, want %q", got, want)
	}
}
