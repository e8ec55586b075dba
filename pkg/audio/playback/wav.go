package playback

import (
	"encoding/binary"
	"fmt"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

// DecodeWAV extracts PCM16 samples from a RIFF/WAVE container, the format
// the speech synthesizer streams. Only uncompressed 16-bit PCM is
// accepted. All failures wrap [ErrDecode].
func DecodeWAV(chunk []byte) ([]byte, audio.Format, error) {
	fail := func(format string, args ...any) ([]byte, audio.Format, error) {
		return nil, audio.Format{}, fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
	}

	if len(chunk) < 12 || string(chunk[0:4]) != "RIFF" || string(chunk[8:12]) != "WAVE" {
		return fail("not a RIFF/WAVE container")
	}

	var (
		format    audio.Format
		sawFmt    bool
		audioData []byte
	)
	// Walk the chunk list. RIFF puts fmt before data, but some encoders
	// emit extra chunks (LIST, fact) in between.
	for off := 12; off+8 <= len(chunk); {
		id := string(chunk[off : off+4])
		size := int(binary.LittleEndian.Uint32(chunk[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(chunk) {
			return fail("chunk %q overruns container", id)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return fail("fmt chunk truncated")
			}
			audioFormat := binary.LittleEndian.Uint16(chunk[body : body+2])
			if audioFormat != 1 {
				return fail("unsupported audio format %d, want PCM", audioFormat)
			}
			bits := binary.LittleEndian.Uint16(chunk[body+14 : body+16])
			if bits != 16 {
				return fail("unsupported bit depth %d, want 16", bits)
			}
			format.Channels = int(binary.LittleEndian.Uint16(chunk[body+2 : body+4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(chunk[body+4 : body+8]))
			sawFmt = true
		case "data":
			audioData = chunk[body : body+size]
		}
		// Chunks are word aligned.
		off = body + size + size%2
	}

	if !sawFmt {
		return fail("missing fmt chunk")
	}
	if audioData == nil {
		return fail("missing data chunk")
	}
	if len(audioData)%2 != 0 {
		audioData = audioData[:len(audioData)-1]
	}
	return audioData, format, nil
}
