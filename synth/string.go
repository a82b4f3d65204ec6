package synth

import (
	"math"
	"math/rand"

	"github.com/cwbudde/algo-approx"
	dspcore "github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-tab/dsp"
)

// PluckedString is a Karplus-Strong string: a noise-filled delay line whose
// head is averaged with its neighbour and damped on every sample.
type PluckedString struct {
	line  *dsp.DelayLine
	decay float64
}

// NewPluckedString creates a string tuned to freq, excited with uniform
// noise in [-1,1]. rng may be nil to use the shared source.
func NewPluckedString(sampleRate int, freq, decay float64, rng *rand.Rand) *PluckedString {
	period := 2
	if freq > 0 {
		period = int(math.Round(float64(sampleRate) / freq))
	}
	if period < 2 {
		period = 2
	}
	s := &PluckedString{line: dsp.NewDelayLine(period), decay: decay}
	s.line.Fill(func(int) float64 { return 2*uniform(rng) - 1 })
	return s
}

// Process emits the head sample and replaces it with the damped average of
// head and next.
func (s *PluckedString) Process() float64 {
	head := s.line.Read(s.line.Size())
	next := s.line.Read(s.line.Size() - 1)
	s.line.Write(dspcore.FlushDenormals(s.decay * 0.5 * (head + next)))
	return head
}

// Pluck renders one note of the given length with a 3 ms linear fade-in and
// a 30 ms linear fade-out.
func Pluck(freq, seconds float64, sampleRate int, decay float64, rng *rand.Rand) []float64 {
	n := int(seconds * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	s := NewPluckedString(sampleRate, freq, decay, rng)
	out := make([]float64, n)
	for i := range out {
		out[i] = s.Process()
	}

	attack := int(0.003 * float64(sampleRate))
	if attack > 1 && attack < n {
		for i := 0; i < attack; i++ {
			out[i] *= float64(i) / float64(attack-1)
		}
	}
	release := int(0.03 * float64(sampleRate))
	if release > 1 && release < n {
		base := n - release
		for i := 0; i < release; i++ {
			out[base+i] *= 1 - float64(i)/float64(release-1)
		}
	}
	return out
}

func uniform(rng *rand.Rand) float64 {
	if rng == nil {
		return rand.Float64()
	}
	return rng.Float64()
}

// MIDIToFreq converts a MIDI note number to Hz.
func MIDIToFreq(note int) float64 {
	const a4Freq = 440.0
	const a4Note = 69
	exponent := float32(note-a4Note) / 12.0
	return a4Freq * float64(pow2Approx(exponent))
}

func pow2Approx(x float32) float32 {
	const ln2 = 0.69314718055994530942
	return approx.FastExp(x * ln2)
}
