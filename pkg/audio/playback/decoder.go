package playback

import (
	"fmt"

	"github.com/loanvoice/loanvoice/pkg/audio"
	"github.com/loanvoice/loanvoice/pkg/audio/codec"
)

// NewChunkDecoder builds the [DecodeFunc] for the configured inbound chunk
// encoding. "wav" (and "") expect self-describing WAV containers; "pcm" and
// "opus" carry no format on the wire, so the chunks are stamped with format,
// defaulting to 24kHz mono when unset.
func NewChunkDecoder(encoding string, format audio.Format) (DecodeFunc, error) {
	if format.SampleRate == 0 {
		format.SampleRate = 24000
	}
	if format.Channels == 0 {
		format.Channels = 1
	}

	switch encoding {
	case "", "wav":
		return DecodeWAV, nil

	case "pcm":
		dec := codec.PCMDecoder{}
		return func(chunk []byte) ([]byte, audio.Format, error) {
			pcm, err := dec.Decode(chunk)
			if err != nil {
				return nil, audio.Format{}, fmt.Errorf("%w: %v", ErrDecode, err)
			}
			return pcm, format, nil
		}, nil

	case "opus":
		dec, err := codec.NewOpusDecoder(format)
		if err != nil {
			return nil, fmt.Errorf("playback: %w", err)
		}
		return func(chunk []byte) ([]byte, audio.Format, error) {
			pcm, err := dec.Decode(chunk)
			if err != nil {
				return nil, audio.Format{}, fmt.Errorf("%w: %v", ErrDecode, err)
			}
			return pcm, format, nil
		}, nil

	default:
		return nil, fmt.Errorf("playback: unknown chunk encoding %q", encoding)
	}
}
