package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// envelopeAttack is the fade-in length applied to every note.
const envelopeAttack = 5 * time.Millisecond

// oscillator is a sine or harmonic-rich voice with a linear attack and
// an exponential tail over a fixed length.
type oscillator struct {
	sr        beep.SampleRate
	freq      float64
	amp       float64
	harmonics bool
	pos       int
	total     int
	attack    int
}

func newOscillator(freq float64, d time.Duration, amp float64, harmonics bool) *oscillator {
	return &oscillator{
		sr:        sampleRate,
		freq:      freq,
		amp:       amp,
		harmonics: harmonics,
		total:     max(sampleRate.N(d), 1),
		attack:    max(sampleRate.N(envelopeAttack), 1),
	}
}

func (o *oscillator) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		t := float64(o.pos) / float64(o.sr)

		sample := math.Sin(2 * math.Pi * o.freq * t)
		if o.harmonics {
			sample = 0.6*sample +
				0.3*math.Sin(2*math.Pi*o.freq*2*t) +
				0.1*math.Sin(2*math.Pi*o.freq*3*t)
		}

		env := math.Min(float64(o.pos)/float64(o.attack), 1)
		env *= math.Exp(-4 * float64(o.pos) / float64(o.total))
		sample *= env * o.amp

		samples[i][0] = sample
		samples[i][1] = sample
		o.pos++
	}
	return len(samples), true
}

func (o *oscillator) Err() error { return nil }

// tone is a single sine note of length d.
func tone(freq float64, d time.Duration, amp float64) beep.Streamer {
	return beep.Take(sampleRate.N(d), newOscillator(freq, d, amp, false))
}

// buzz is a harmonic-rich note of length d.
func buzz(freq float64, d time.Duration, amp float64) beep.Streamer {
	return beep.Take(sampleRate.N(d), newOscillator(freq, d, amp, true))
}

// arpeggio plays freqs one after another, each for step.
func arpeggio(freqs []float64, step time.Duration, amp float64) beep.Streamer {
	notes := make([]beep.Streamer, len(freqs))
	for i, f := range freqs {
		notes[i] = tone(f, step, amp)
	}
	return beep.Seq(notes...)
}
