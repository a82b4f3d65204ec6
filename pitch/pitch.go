// Package pitch holds the framewise fundamental-frequency boundary: the
// Oracle interface, a YIN estimator implementing it, the harmonic pre-filter
// and the median track smoother.
package pitch

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/algo-tab/dsp"
)

// DefaultHop is the analysis hop in samples shared by every oracle.
const DefaultHop = 512

// Guitar range searched by the estimator (E2..E6).
const (
	MinFrequency = 82.40688922821748
	MaxFrequency = 1318.5102276514797
)

// Track is a framewise pitch estimate. Frequencies holds NaN for unvoiced
// frames; VoicedProb is in [0,1] for every frame.
type Track struct {
	Frequencies []float64
	VoicedProb  []float64
	Hop         int
	SampleRate  int
}

// Len returns the number of frames.
func (t Track) Len() int {
	return len(t.Frequencies)
}

// FrameTime returns the time in seconds of frame i.
func (t Track) FrameTime(i int) float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	return float64(i*t.Hop) / float64(t.SampleRate)
}

// Oracle estimates one frequency (or NaN) and one voiced probability per hop.
type Oracle interface {
	Estimate(samples []float64, sampleRate int) (Track, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(samples []float64, sampleRate int) (Track, error)

// Estimate calls f.
func (f OracleFunc) Estimate(samples []float64, sampleRate int) (Track, error) {
	return f(samples, sampleRate)
}

// Harmonic wraps an oracle so that it analyses only the tonal part of the
// input: a lowpass just above the top of the guitar range removes pick noise
// and broadband transients before estimation.
func Harmonic(o Oracle) Oracle {
	return OracleFunc(func(samples []float64, sampleRate int) (Track, error) {
		if sampleRate <= 0 {
			return Track{}, fmt.Errorf("harmonic: invalid sample rate %d", sampleRate)
		}
		cutoff := math.Min(1.15*MaxFrequency, 0.45*float64(sampleRate))
		lp := dsp.NewLowpass(cutoff, float64(sampleRate), 0.707)
		return o.Estimate(lp.ProcessBuffer(samples), sampleRate)
	})
}

// Smooth denoises a pitch track with a median filter of the given kernel
// (forced odd, 5 when < 1). NaN frames are filled with the median of the
// valid frames before filtering and restored afterwards, so the voiced mask
// never changes. A track with no valid frame is returned unchanged.
func Smooth(freqs []float64, kernel int) []float64 {
	if len(freqs) == 0 {
		return freqs
	}
	if kernel < 1 {
		kernel = 5
	}
	valid := make([]float64, 0, len(freqs))
	for _, f := range freqs {
		if isFinite(f) {
			valid = append(valid, f)
		}
	}
	if len(valid) == 0 {
		return freqs
	}
	fill := median(valid)

	filled := make([]float64, len(freqs))
	for i, f := range freqs {
		if isFinite(f) {
			filled[i] = f
		} else {
			filled[i] = fill
		}
	}
	smoothed := dsp.Median(filled, kernel)
	for i, f := range freqs {
		if !isFinite(f) {
			smoothed[i] = math.NaN()
		}
	}
	return smoothed
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// FrequencyToMIDI converts Hz to a fractional MIDI number. Non-positive or
// non-finite input yields NaN.
func FrequencyToMIDI(freq float64) float64 {
	if !isFinite(freq) || freq <= 0 {
		return math.NaN()
	}
	return 69 + 12*math.Log2(freq/440.0)
}

// MIDIToFrequency converts a MIDI number to Hz.
func MIDIToFrequency(midi float64) float64 {
	return 440.0 * math.Pow(2, (midi-69)/12.0)
}

// NoteName returns the scientific pitch name of a MIDI note, e.g. 69 -> "A4".
func NoteName(midi int) string {
	pc := ((midi % 12) + 12) % 12
	octave := midi/12 - 1
	if midi < 0 && midi%12 != 0 {
		octave--
	}
	return fmt.Sprintf("%s%d", noteNames[pc], octave)
}

// NoteToMIDI parses a name produced by NoteName.
func NoteToMIDI(name string) (int, error) {
	for i := len(name) - 1; i >= 0; i-- {
		c := name[i]
		if c == '-' || (c >= '0' && c <= '9') {
			continue
		}
		var octave int
		if _, err := fmt.Sscanf(name[i+1:], "%d", &octave); err != nil {
			return 0, fmt.Errorf("invalid note %q: %w", name, err)
		}
		pc := -1
		for k, n := range noteNames {
			if n == name[:i+1] {
				pc = k
				break
			}
		}
		if pc < 0 {
			return 0, fmt.Errorf("invalid note %q", name)
		}
		return (octave+1)*12 + pc, nil
	}
	return 0, fmt.Errorf("invalid note %q", name)
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return 0.5 * (s[n/2-1] + s[n/2])
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
