// Package audio holds small helpers for the PCM16LE mono wire format used by
// the live bridge and the speech endpoints.
package audio

import (
	"time"
)

// Duration returns the playback duration of raw PCM16LE mono audio.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 || len(pcm) < 2 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Level computes the mean absolute amplitude of a PCM16LE frame, normalized
// to [0,1]. Used only for the input-level visualization side channel.
func Level(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sum float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		s := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(n) / 32768.0
}
