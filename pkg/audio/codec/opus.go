package codec

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

// Opus packet cadence. 20ms is the codec's sweet spot for voice.
const opusFrameDuration = 20 // milliseconds

const maxOpusPacket = 4000

// OpusEncoder packs PCM16 frames into 20ms Opus packets. Captured frames
// rarely align with the packet size, so the encoder carries the remainder
// between calls.
type OpusEncoder struct {
	enc       *gopus.Encoder
	format    audio.Format
	frameSize int // samples per channel per packet
	pending   []int16
}

var _ Encoder = (*OpusEncoder)(nil)

// NewOpusEncoder creates an Opus encoder for the given capture format.
// Opus supports 8, 12, 16, 24 and 48 kHz input.
func NewOpusEncoder(format audio.Format) (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(format.SampleRate, format.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("creating opus encoder: %w", err)
	}
	return &OpusEncoder{
		enc:       enc,
		format:    format,
		frameSize: format.SampleRate * opusFrameDuration / 1000,
	}, nil
}

func (e *OpusEncoder) Name() string { return "opus" }

// Encode appends the frame's samples to the pending buffer and drains as
// many full packets as fit. Leftover samples wait for the next frame.
func (e *OpusEncoder) Encode(frame audio.AudioFrame) ([][]byte, error) {
	e.pending = append(e.pending, audio.BytesToInt16s(frame.Data)...)

	packetSamples := e.frameSize * e.format.Channels
	var packets [][]byte
	for len(e.pending) >= packetSamples {
		chunk := e.pending[:packetSamples]
		data, err := e.enc.Encode(chunk, e.frameSize, maxOpusPacket)
		if err != nil {
			return packets, fmt.Errorf("encoding opus packet: %w", err)
		}
		packets = append(packets, data)
		e.pending = e.pending[packetSamples:]
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return packets, nil
}

// OpusDecoder unpacks Opus packets back into PCM16 little-endian bytes.
type OpusDecoder struct {
	dec    *gopus.Decoder
	format audio.Format
}

var _ Decoder = (*OpusDecoder)(nil)

func NewOpusDecoder(format audio.Format) (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("creating opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec, format: format}, nil
}

func (d *OpusDecoder) Decode(payload []byte) ([]byte, error) {
	frameSize := d.format.SampleRate * opusFrameDuration / 1000
	pcm, err := d.dec.Decode(payload, frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("decoding opus packet: %w", err)
	}
	return audio.Int16sToBytes(pcm), nil
}
