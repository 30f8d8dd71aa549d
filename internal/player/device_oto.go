package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/marqueymarc/readflow/internal/synth"
)

// DefaultReadyTimeout bounds how long Load waits for the audio device.
const DefaultReadyTimeout = 10 * time.Second

// OtoDevice plays PCM16 audio through the system's audio output. WAV and
// MP3 payloads are supported; everything else fails decode.
type OtoDevice struct {
	readyTimeout time.Duration

	mu         sync.Mutex
	ctx        *oto.Context
	sampleRate int
	channels   int
}

// NewOtoDevice creates a device. readyTimeout <= 0 uses the default.
func NewOtoDevice(readyTimeout time.Duration) *OtoDevice {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	return &OtoDevice{readyTimeout: readyTimeout}
}

// Load decodes the payload and returns a playable track.
func (d *OtoDevice) Load(_ context.Context, payload *synth.Payload) (Track, error) {
	pcm, err := decodePayload(payload)
	if err != nil {
		return nil, &DecodeError{ContentType: payload.ContentType, Err: err}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ensureContextLocked(pcm.SampleRate, pcm.Channels); err != nil {
		return nil, err
	}

	src := newRateSource(pcm, d.sampleRate, d.channels)
	t := &otoTrack{
		player: d.ctx.NewPlayer(src),
		src:    src,
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go t.watchEnd()
	return t, nil
}

// Close releases the device. The underlying audio context cannot be torn
// down, so this only forgets it.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ctx = nil
	return nil
}

// ensureContextLocked creates the process-wide audio context on first use.
// The context's format is fixed then; later payloads are resampled to it.
func (d *OtoDevice) ensureContextLocked(sampleRate, channels int) error {
	if d.ctx != nil {
		return nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}

	select {
	case <-ready:
	case <-time.After(d.readyTimeout):
		return ErrReadyTimeout
	}

	d.ctx = ctx
	d.sampleRate = sampleRate
	d.channels = channels
	return nil
}

// decodePayload turns a payload into raw PCM16.
func decodePayload(payload *synth.Payload) (*synth.PCM, error) {
	ct := strings.ToLower(payload.ContentType)
	if strings.Contains(ct, "mpeg") || strings.Contains(ct, "mp3") {
		return decodeMP3(payload.Audio)
	}
	return synth.DecodeWAV(payload.Audio)
}

func decodeMP3(data []byte) (*synth.PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode mp3: %w", err)
	}
	pcmBytes, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decode mp3 frames: %w", err)
	}
	// go-mp3 always emits 16-bit stereo at the stream's sample rate.
	return &synth.PCM{SampleRate: dec.SampleRate(), Channels: 2, Data: pcmBytes}, nil
}

type otoTrack struct {
	player *oto.Player
	src    *rateSource

	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	doneOnce  sync.Once
}

func (t *otoTrack) Play() error {
	t.player.Play()
	return nil
}

func (t *otoTrack) Pause() {
	t.player.Pause()
}

// SeekTo repositions the source. Audio already buffered by the player
// still drains first, so the jump may lag by a fraction of a second.
func (t *otoTrack) SeekTo(offset time.Duration) {
	t.src.SeekTo(offset)
}

func (t *otoTrack) Position() time.Duration {
	return t.src.Position(t.player.BufferedSize())
}

func (t *otoTrack) Duration() time.Duration {
	return t.src.Duration()
}

func (t *otoTrack) SetRate(rate float64) {
	t.src.SetSpeed(rate)
}

func (t *otoTrack) Done() <-chan struct{} {
	return t.done
}

func (t *otoTrack) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.player.Close()
		t.doneOnce.Do(func() { close(t.done) })
	})
	return err
}

// watchEnd closes done once the source is exhausted and the player has
// drained its buffer.
func (t *otoTrack) watchEnd() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			if t.src.Exhausted() && t.player.BufferedSize() == 0 {
				t.doneOnce.Do(func() { close(t.done) })
				return
			}
		}
	}
}

// rateSource feeds PCM16 to the player, linearly resampling from the
// payload's format to the device format scaled by the playback speed.
type rateSource struct {
	mu       sync.Mutex
	data     []byte
	srcRate  int
	srcCh    int
	dstRate  int
	dstCh    int
	pos      float64 // source frame position
	speed    float64
	finished bool
}

func newRateSource(pcm *synth.PCM, dstRate, dstCh int) *rateSource {
	return &rateSource{
		data:    pcm.Data,
		srcRate: pcm.SampleRate,
		srcCh:   pcm.Channels,
		dstRate: dstRate,
		dstCh:   dstCh,
		speed:   1,
	}
}

func (r *rateSource) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frameBytes := r.dstCh * 2
	srcFrames := len(r.data) / (r.srcCh * 2)
	step := float64(r.srcRate) / float64(r.dstRate) * r.speed

	n := 0
	for n+frameBytes <= len(p) {
		i0 := int(r.pos)
		if i0 >= srcFrames-1 {
			r.finished = true
			break
		}
		frac := r.pos - float64(i0)
		for c := 0; c < r.dstCh; c++ {
			sc := c
			if sc >= r.srcCh {
				sc = r.srcCh - 1
			}
			s0 := r.sampleAt(i0, sc)
			s1 := r.sampleAt(i0+1, sc)
			v := int16(float64(s0) + (float64(s1)-float64(s0))*frac)
			binary.LittleEndian.PutUint16(p[n:], uint16(v))
			n += 2
		}
		r.pos += step
	}

	if n == 0 && r.finished {
		return 0, io.EOF
	}
	return n, nil
}

func (r *rateSource) sampleAt(frame, channel int) int16 {
	off := (frame*r.srcCh + channel) * 2
	return int16(binary.LittleEndian.Uint16(r.data[off:]))
}

func (r *rateSource) SeekTo(offset time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	srcFrames := len(r.data) / (r.srcCh * 2)
	pos := offset.Seconds() * float64(r.srcRate)
	if pos < 0 {
		pos = 0
	}
	if max := float64(srcFrames - 1); pos > max {
		pos = max
	}
	r.pos = pos
	r.finished = false
}

// Position estimates the source position, discounting audio the player has
// buffered but not yet played.
func (r *rateSource) Position(bufferedBytes int) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	bufferedDstFrames := float64(bufferedBytes) / float64(r.dstCh*2)
	bufferedSrcFrames := bufferedDstFrames * float64(r.srcRate) / float64(r.dstRate) * r.speed
	frames := r.pos - bufferedSrcFrames
	if frames < 0 {
		frames = 0
	}
	return time.Duration(frames / float64(r.srcRate) * float64(time.Second))
}

func (r *rateSource) Duration() time.Duration {
	srcFrames := len(r.data) / (r.srcCh * 2)
	return time.Duration(float64(srcFrames) / float64(r.srcRate) * float64(time.Second))
}

func (r *rateSource) SetSpeed(speed float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if speed > 0 {
		r.speed = speed
	}
}

func (r *rateSource) Exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}
