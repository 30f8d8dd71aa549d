package synth

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// PCM is decoded 16-bit linear PCM audio.
type PCM struct {
	SampleRate int
	Channels   int
	Data       []byte // interleaved little-endian samples
}

// Seconds returns the audio duration.
func (p *PCM) Seconds() float64 {
	if p.SampleRate <= 0 || p.Channels <= 0 || len(p.Data) == 0 {
		return 0
	}
	return float64(len(p.Data)) / float64(p.SampleRate*p.Channels*2)
}

// EncodeWAV wraps raw PCM16 samples in a minimal RIFF/WAVE container.
func EncodeWAV(pcm *PCM) []byte {
	dataLen := len(pcm.Data)
	buf := make([]byte, 44+dataLen)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // linear PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(pcm.Channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(pcm.SampleRate))
	byteRate := pcm.SampleRate * pcm.Channels * 2
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(pcm.Channels*2)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                     // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], pcm.Data)

	return buf
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit linear PCM.
func DecodeWAV(data []byte) (*PCM, error) {
	if len(data) < 44 {
		return nil, errors.New("wav: data too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errors.New("wav: not a RIFF/WAVE container")
	}

	var pcm PCM
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkLen := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkLen > len(data) {
			chunkLen = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkLen < 16 {
				return nil, errors.New("wav: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("wav: unsupported format %d (want linear PCM)", format)
			}
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bits != 16 {
				return nil, fmt.Errorf("wav: unsupported bit depth %d", bits)
			}
			pcm.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			pcm.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
		case "data":
			pcm.Data = data[body : body+chunkLen]
		}

		// Chunks are word-aligned.
		pos = body + chunkLen
		if chunkLen%2 == 1 {
			pos++
		}
	}

	if pcm.SampleRate == 0 || pcm.Channels == 0 {
		return nil, errors.New("wav: missing fmt chunk")
	}
	if pcm.Data == nil {
		return nil, errors.New("wav: missing data chunk")
	}
	return &pcm, nil
}
