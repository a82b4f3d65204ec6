package analysis

import (
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/mjibson/go-dsp/window"

	"github.com/cwbudde/algo-tab/pitch"
)

// Features extracts the spectral descriptors the similarity score is built
// on. Chroma returns one 12-bin pitch-class vector per frame.
type Features interface {
	Chroma(samples []float64, sampleRate int) ([][]float64, error)
	OnsetStrength(samples []float64, sampleRate int) ([]float64, error)
}

// analyzer is implemented by features that can produce both descriptors
// from a single spectrogram.
type analyzer interface {
	Analyze(samples []float64, sampleRate int) ([][]float64, []float64, error)
}

// STFTFeatures derives chroma and onset strength from a Hann-windowed STFT
// with centred, zero-padded frames.
type STFTFeatures struct {
	FFTSize int     // default 2048
	Hop     int     // default 512
	MinFreq float64 // lowest bin folded into chroma (default 80 Hz)
	MaxFreq float64 // highest bin folded into chroma (default 8 kHz)
}

// NewSTFTFeatures returns the default feature extractor.
func NewSTFTFeatures() *STFTFeatures {
	return &STFTFeatures{FFTSize: 2048, Hop: 512, MinFreq: 80, MaxFreq: 8000}
}

// Chroma implements Features.
func (f *STFTFeatures) Chroma(samples []float64, sampleRate int) ([][]float64, error) {
	mags, err := f.spectrogram(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return f.chroma(mags, sampleRate), nil
}

// OnsetStrength implements Features.
func (f *STFTFeatures) OnsetStrength(samples []float64, sampleRate int) ([]float64, error) {
	mags, err := f.spectrogram(samples, sampleRate)
	if err != nil {
		return nil, err
	}
	return onsetStrength(mags), nil
}

// Analyze returns chroma and onset strength from one spectrogram.
func (f *STFTFeatures) Analyze(samples []float64, sampleRate int) ([][]float64, []float64, error) {
	mags, err := f.spectrogram(samples, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	return f.chroma(mags, sampleRate), onsetStrength(mags), nil
}

func (f *STFTFeatures) sizes() (int, int) {
	size, hop := f.FFTSize, f.Hop
	if size <= 0 {
		size = 2048
	}
	if hop <= 0 {
		hop = 512
	}
	return size, hop
}

// spectrogram returns |X[t][k]| for bins 0..size/2.
func (f *STFTFeatures) spectrogram(samples []float64, sampleRate int) ([][]float64, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("spectrogram: invalid sample rate %d", sampleRate)
	}
	size, hop := f.sizes()
	if len(samples) == 0 {
		return nil, nil
	}
	plan, err := algofft.NewPlanReal64(size)
	if err != nil {
		return nil, fmt.Errorf("fft plan: %w", err)
	}
	hann := window.Hann(size)
	buf := make([]float64, size)
	spec := make([]complex128, size/2+1)

	frames := 1 + len(samples)/hop
	out := make([][]float64, frames)
	for t := 0; t < frames; t++ {
		start := t*hop - size/2
		for i := 0; i < size; i++ {
			j := start + i
			if j < 0 || j >= len(samples) {
				buf[i] = 0
				continue
			}
			buf[i] = samples[j] * hann[i]
		}
		plan.Forward(spec, buf)
		row := make([]float64, len(spec))
		for k, c := range spec {
			row[k] = cmplx.Abs(c)
		}
		out[t] = row
	}
	return out, nil
}

func (f *STFTFeatures) chroma(mags [][]float64, sampleRate int) [][]float64 {
	size, _ := f.sizes()
	lo, hi := f.MinFreq, f.MaxFreq
	if lo <= 0 {
		lo = 80
	}
	if hi <= lo {
		hi = 8000
	}
	binHz := float64(sampleRate) / float64(size)
	mapping := make([]int, size/2+1)
	for k := range mapping {
		freq := float64(k) * binHz
		if freq < lo || freq > hi {
			mapping[k] = -1
			continue
		}
		midi := int(math.Round(pitch.FrequencyToMIDI(freq)))
		mapping[k] = ((midi % 12) + 12) % 12
	}

	out := make([][]float64, len(mags))
	for t, row := range mags {
		c := make([]float64, 12)
		for k, m := range row {
			if pc := mapping[k]; pc >= 0 {
				c[pc] += m * m
			}
		}
		normalizeMax(c)
		out[t] = c
	}
	return out
}

// onsetStrength is the mean positive log-magnitude flux between frames.
func onsetStrength(mags [][]float64) []float64 {
	out := make([]float64, len(mags))
	var prev []float64
	for t, row := range mags {
		logRow := make([]float64, len(row))
		for k, m := range row {
			logRow[k] = math.Log1p(100 * m)
		}
		if prev != nil {
			var sum float64
			for k := range logRow {
				if d := logRow[k] - prev[k]; d > 0 {
					sum += d
				}
			}
			out[t] = sum / float64(len(logRow))
		}
		prev = logRow
	}
	return out
}

func normalizeMax(x []float64) {
	var peak float64
	for _, v := range x {
		if v > peak {
			peak = v
		}
	}
	if peak <= 1e-12 {
		for i := range x {
			x[i] = 0
		}
		return
	}
	for i := range x {
		x[i] /= peak
	}
}
