package audio

import "math"

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// BytesToInt16s converts little-endian bytes to a slice of int16 PCM samples.
// A trailing odd byte is ignored.
func BytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}

// ApplyGain multiplies each PCM16 sample in place by factor, clamping to the
// int16 range. A factor of 1.0 leaves the data unchanged. Factors below zero
// are treated as zero (silence).
func ApplyGain(pcm []byte, factor float64) {
	if factor == 1.0 {
		return
	}
	if factor < 0 {
		factor = 0
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		s *= factor
		if s > math.MaxInt16 {
			s = math.MaxInt16
		} else if s < math.MinInt16 {
			s = math.MinInt16
		}
		v := int16(s)
		pcm[i] = byte(v)
		pcm[i+1] = byte(v >> 8)
	}
}

// Level returns the normalised RMS amplitude of a PCM16 buffer in [0.0, 1.0].
// It feeds the capture graph's analyzer tap for amplitude visualisation;
// an empty or odd-length-only buffer yields 0.
func Level(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		sum += s * s
	}
	rms := math.Sqrt(sum / float64(n))
	return rms / float64(math.MaxInt16)
}
