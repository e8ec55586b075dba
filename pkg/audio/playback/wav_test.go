package playback

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// makeWAV assembles a minimal RIFF/WAVE container around pcm.
func makeWAV(sampleRate, channels int, pcm []byte, extraChunks ...[]byte) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")

	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], 1) // PCM
	binary.LittleEndian.PutUint16(fmtChunk[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(fmtChunk[4:8], uint32(sampleRate))
	binary.LittleEndian.PutUint32(fmtChunk[8:12], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(fmtChunk[12:14], uint16(channels*2))
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 16)
	writeChunk(&body, "fmt ", fmtChunk)

	for _, c := range extraChunks {
		body.Write(c)
	}
	writeChunk(&body, "data", pcm)

	var out bytes.Buffer
	out.WriteString("RIFF")
	binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func writeChunk(w *bytes.Buffer, id string, data []byte) {
	w.WriteString(id)
	binary.Write(w, binary.LittleEndian, uint32(len(data)))
	w.Write(data)
	if len(data)%2 == 1 {
		w.WriteByte(0)
	}
}

func TestDecodeWAV(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	got, format, err := DecodeWAV(makeWAV(24000, 1, pcm))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
	if format.SampleRate != 24000 || format.Channels != 1 {
		t.Errorf("format = %+v, want 24000 Hz mono", format)
	}
}

func TestDecodeWAVSkipsForeignChunks(t *testing.T) {
	var list bytes.Buffer
	writeChunk(&list, "LIST", []byte("INFOsome metadata"))

	pcm := []byte{9, 0, 8, 0}
	got, _, err := DecodeWAV(makeWAV(16000, 1, pcm, list.Bytes()))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm = %v, want %v", got, pcm)
	}
}

func TestDecodeWAVRejects(t *testing.T) {
	valid := makeWAV(16000, 1, []byte{0, 0})

	nonPCM := makeWAV(16000, 1, []byte{0, 0})
	// Patch the fmt chunk's audio format field (offset 20) to IEEE float.
	binary.LittleEndian.PutUint16(nonPCM[20:22], 3)

	eightBit := makeWAV(16000, 1, []byte{0, 0})
	binary.LittleEndian.PutUint16(eightBit[34:36], 8)

	truncated := valid[:len(valid)-3]

	for _, tc := range []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"not riff", []byte("OggS this is not wav at all")},
		{"non-pcm format", nonPCM},
		{"8-bit depth", eightBit},
		{"truncated data chunk", truncated},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := DecodeWAV(tc.in)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("DecodeWAV error = %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeWAVTrimsOddData(t *testing.T) {
	// A data chunk with an odd byte count cannot hold whole 16-bit samples;
	// the trailing byte is dropped.
	wav := makeWAV(16000, 1, []byte{1, 0, 2})
	got, _, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("pcm length = %d, want 2", len(got))
	}
}
