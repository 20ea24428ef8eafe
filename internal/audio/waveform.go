package audio

import (
	"hash/fnv"
	"math/rand"
	"time"
)

const (
	barWidth    = 3
	minBars     = 12
	maxBars     = 64
	barsPerSec  = 2
	minBarLevel = 0.2
)

// Waveform builds the synthetic bar heights drawn for a voice message. The
// sequence is derived from the message id so it is identical on every render;
// it is not an amplitude analysis of the audio.
func Waveform(messageID string, duration time.Duration, width int) []float64 {
	n := barCount(duration, width)
	h := fnv.New64a()
	_, _ = h.Write([]byte(messageID))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	bars := make([]float64, n)
	prev := 0.5
	for i := range bars {
		// Smooth toward a random target so neighbouring bars look like speech.
		target := minBarLevel + rng.Float64()*(1-minBarLevel)
		level := prev*0.4 + target*0.6
		bars[i] = level
		prev = level
	}
	return bars
}

func barCount(duration time.Duration, width int) int {
	byDuration := minBars + int(duration.Seconds())*barsPerSec
	n := byDuration
	if width > 0 {
		if byWidth := width / barWidth; byWidth < n {
			n = byWidth
		}
	}
	if n < minBars {
		n = minBars
	}
	if n > maxBars {
		n = maxBars
	}
	return n
}
