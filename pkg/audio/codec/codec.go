// Package codec converts between captured PCM frames and the binary
// payloads carried on the wire.
//
// Two codecs are provided: a raw PCM16 passthrough (the default, matching
// what speech recognizers ingest directly) and Opus for bandwidth
// constrained links.
package codec

import (
	"fmt"

	"github.com/loanvoice/loanvoice/pkg/audio"
)

// Encoder turns captured frames into wire payloads. One input frame may
// yield zero or more payloads: codecs with fixed packet sizes buffer
// remainders internally.
type Encoder interface {
	// Encode consumes one captured frame and returns the wire payloads
	// ready to send, each as its own binary message.
	Encode(frame audio.AudioFrame) ([][]byte, error)

	// Name identifies the codec in logs and config ("pcm", "opus").
	Name() string
}

// Decoder turns one wire payload back into PCM16 bytes.
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
}

// NewEncoder builds the encoder named in config for the given capture
// format.
func NewEncoder(name string, format audio.Format) (Encoder, error) {
	switch name {
	case "", "pcm":
		return PCMEncoder{}, nil
	case "opus":
		return NewOpusEncoder(format)
	default:
		return nil, fmt.Errorf("unknown audio encoding %q", name)
	}
}
