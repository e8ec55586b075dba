package codec

import "github.com/loanvoice/loanvoice/pkg/audio"

// PCMEncoder passes PCM16 little-endian bytes through unchanged, one wire
// payload per captured frame.
type PCMEncoder struct{}

var _ Encoder = PCMEncoder{}

func (PCMEncoder) Encode(frame audio.AudioFrame) ([][]byte, error) {
	if len(frame.Data) == 0 {
		return nil, nil
	}
	return [][]byte{frame.Data}, nil
}

func (PCMEncoder) Name() string { return "pcm" }

// PCMDecoder is the identity decoder for raw PCM16 payloads.
type PCMDecoder struct{}

var _ Decoder = PCMDecoder{}

func (PCMDecoder) Decode(payload []byte) ([]byte, error) {
	return payload, nil
}
