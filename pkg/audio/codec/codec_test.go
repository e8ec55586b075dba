package codec

import (
	"testing"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

func TestNewEncoderSelection(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1}

	for _, tc := range []struct {
		name     string
		encoding string
		want     string
		wantErr  bool
	}{
		{"default is pcm", "", "pcm", false},
		{"pcm", "pcm", "pcm", false},
		{"opus", "opus", "opus", false},
		{"unknown", "flac", "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := NewEncoder(tc.encoding, format)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewEncoder(%q) succeeded, want error", tc.encoding)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewEncoder(%q): %v", tc.encoding, err)
			}
			if enc.Name() != tc.want {
				t.Errorf("Name() = %q, want %q", enc.Name(), tc.want)
			}
		})
	}
}

func TestPCMPassthrough(t *testing.T) {
	frame := audio.AudioFrame{Data: []byte{1, 2, 3, 4}, SampleRate: 16000, Channels: 1}
	payloads, err := PCMEncoder{}.Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if &payloads[0][0] != &frame.Data[0] {
		t.Error("pcm encode must not copy the frame")
	}

	empty, err := PCMEncoder{}.Encode(audio.AudioFrame{})
	if err != nil {
		t.Fatalf("Encode empty: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("empty frame produced %d payloads, want 0", len(empty))
	}
}

func TestOpusEncoderPacketization(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1}
	enc, err := NewOpusEncoder(format)
	if err != nil {
		t.Fatalf("NewOpusEncoder: %v", err)
	}

	// 20ms at 16kHz mono is 320 samples. A 200ms frame holds ten packets.
	samples := make([]int16, 3200)
	frame := audio.AudioFrame{Data: audio.Int16sToBytes(samples), SampleRate: 16000, Channels: 1}
	packets, err := enc.Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 10 {
		t.Errorf("got %d packets from 200ms, want 10", len(packets))
	}
	for i, p := range packets {
		if len(p) == 0 {
			t.Errorf("packet %d is empty", i)
		}
	}
}

func TestOpusEncoderCarriesRemainder(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1}
	enc, err := NewOpusEncoder(format)
	if err != nil {
		t.Fatalf("NewOpusEncoder: %v", err)
	}

	// Half a packet: no output yet.
	half := audio.AudioFrame{Data: audio.Int16sToBytes(make([]int16, 160)), SampleRate: 16000, Channels: 1}
	packets, err := enc.Encode(half)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 0 {
		t.Fatalf("half packet yielded %d packets, want 0", len(packets))
	}

	// The second half completes exactly one packet.
	packets, err = enc.Encode(half)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 1 {
		t.Errorf("got %d packets, want 1", len(packets))
	}
}

func TestOpusRoundTrip(t *testing.T) {
	format := audio.Format{SampleRate: 16000, Channels: 1}
	enc, err := NewOpusEncoder(format)
	if err != nil {
		t.Fatalf("NewOpusEncoder: %v", err)
	}
	dec, err := NewOpusDecoder(format)
	if err != nil {
		t.Fatalf("NewOpusDecoder: %v", err)
	}

	frame := audio.AudioFrame{Data: audio.Int16sToBytes(make([]int16, 320)), SampleRate: 16000, Channels: 1}
	packets, err := enc.Encode(frame)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(packets) != 1 {
		t.Fatalf("got %d packets, want 1", len(packets))
	}

	pcm, err := dec.Decode(packets[0])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm) != 640 {
		t.Errorf("decoded %d bytes, want 640 (320 samples)", len(pcm))
	}
}
