// Package audio defines the frame type and PCM helpers shared by the capture,
// codec, and playback stages of the LoanVoice client pipeline.
//
// All PCM in this package is little-endian signed 16-bit. Frames are the
// atomic unit of audio transport: produced by the capture graph, boosted and
// metered on the way out, and decoded into by the playback queue on the way in.
package audio

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// pipeline. A frame is owned by exactly one stage at a time: created by
// capture, consumed once on send. It carries no persistent identity.
type AudioFrame struct {
	// Data is the sample payload. For PCM frames this is little-endian int16;
	// for encoded frames it is one codec packet.
	Data []byte

	// SampleRate in Hz (16000 for mic capture, 24000/48000 for playback).
	SampleRate int

	// Channels: 1 for mono capture, 2 for stereo playback payloads.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the play time of the frame, assuming PCM16 data.
// Returns zero for frames with an unset sample rate or channel count.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}
