package interview

import (
	"encoding/base64"
	"math"
)

// Audio on the realtime connection is 24 kHz mono 16-bit little-endian PCM.
const (
	SampleRate = 24000
	Channels   = 1
)

// FloatToPCM16 quantizes normalized float samples to little-endian 16-bit
// PCM. Samples are clamped to [-1, 1] and scaled asymmetrically so that
// -1.0 maps to -32768 and 1.0 maps to 32767 without overflow.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(math.Round(float64(s) * 32768))
		} else {
			v = int16(math.Round(float64(s) * 32767))
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCM16ToFloat expands little-endian 16-bit PCM into normalized float
// samples in [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(pcm[i*2]) | uint16(pcm[i*2+1])<<8)
		out[i] = float32(v) / 32768
	}
	return out
}

// EncodeAudio prepares a PCM buffer for transport.
func EncodeAudio(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeAudio reverses EncodeAudio.
func DecodeAudio(encoded string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(encoded)
}
