// Package analysis scores how closely a rendered tab matches a recording.
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cwbudde/algo-tab/dsp"
)

// MinSamples is the shortest shared length that gets a non-zero score.
const MinSamples = 2048

// Score weights.
const (
	ChromaWeight = 0.75
	OnsetWeight  = 0.25
)

// Metrics contains similarity measurements between two audio signals.
// Higher Score is better; only relative comparisons are meaningful.
type Metrics struct {
	SampleRate int `json:"sample_rate"`

	ReferenceFrames int `json:"reference_frames"`
	CandidateFrames int `json:"candidate_frames"`
	AlignedFrames   int `json:"aligned_frames"`
	ChromaFrames    int `json:"chroma_frames"`

	ChromaSimilarity float64 `json:"chroma_similarity"`
	OnsetSimilarity  float64 `json:"onset_similarity"`

	Score float64 `json:"score"`
}

// Scorer compares signals through a Features implementation.
type Scorer struct {
	Features Features
}

// NewScorer returns a scorer over the default STFT features.
func NewScorer() *Scorer {
	return &Scorer{Features: NewSTFTFeatures()}
}

// Compare scores reference against candidate with the default features.
// Feature failures yield a zero score.
func Compare(reference, candidate []float64, sampleRate int) Metrics {
	m, err := NewScorer().Compare(reference, candidate, sampleRate)
	if err != nil {
		return Metrics{SampleRate: sampleRate, ReferenceFrames: len(reference), CandidateFrames: len(candidate)}
	}
	return m
}

// Compare truncates both signals to their shared length, peak-normalizes
// them and combines mean chroma cosine with onset correlation.
func (s *Scorer) Compare(reference, candidate []float64, sampleRate int) (Metrics, error) {
	m := Metrics{
		SampleRate:      sampleRate,
		ReferenceFrames: len(reference),
		CandidateFrames: len(candidate),
	}
	n := len(reference)
	if len(candidate) < n {
		n = len(candidate)
	}
	if sampleRate <= 0 || n <= MinSamples {
		return m, nil
	}
	m.AlignedFrames = n

	ref := normalizePeak(reference[:n])
	cand := normalizePeak(candidate[:n])

	features := s.Features
	if features == nil {
		features = NewSTFTFeatures()
	}
	refChroma, refOnset, err := analyze(features, ref, sampleRate)
	if err != nil {
		return m, err
	}
	candChroma, candOnset, err := analyze(features, cand, sampleRate)
	if err != nil {
		return m, err
	}

	m.ChromaFrames = minInt(len(refChroma), len(candChroma))
	m.ChromaSimilarity = meanCosine(refChroma, candChroma)
	m.OnsetSimilarity = pearson(refOnset, candOnset)
	m.Score = ChromaWeight*m.ChromaSimilarity + OnsetWeight*m.OnsetSimilarity
	return m, nil
}

func analyze(f Features, x []float64, sampleRate int) ([][]float64, []float64, error) {
	if a, ok := f.(analyzer); ok {
		return a.Analyze(x, sampleRate)
	}
	chroma, err := f.Chroma(x, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	onset, err := f.OnsetStrength(x, sampleRate)
	if err != nil {
		return nil, nil, err
	}
	return chroma, onset, nil
}

// normalizePeak divides by the absolute peak plus a small epsilon.
func normalizePeak(x []float64) []float64 {
	g := 1 / (dsp.PeakAbs(x) + 1e-8)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v * g
	}
	return out
}

// meanCosine averages the per-frame cosine similarity over the shared frames.
func meanCosine(a, b [][]float64) float64 {
	n := minInt(len(a), len(b))
	if n == 0 {
		return 0
	}
	var sum float64
	for t := 0; t < n; t++ {
		den := floats.Norm(a[t], 2)*floats.Norm(b[t], 2) + 1e-8
		sum += floats.Dot(a[t], b[t]) / den
	}
	return sum / float64(n)
}

// pearson correlates the shared prefix of two curves. Flat curves and
// non-finite results give 0; the result is clamped to [-1,1].
func pearson(a, b []float64) float64 {
	n := minInt(len(a), len(b))
	if n < 2 {
		return 0
	}
	a, b = a[:n], b[:n]
	if stat.StdDev(a, nil) <= 1e-6 || stat.StdDev(b, nil) <= 1e-6 {
		return 0
	}
	r := stat.Correlation(a, b, nil)
	if !isFinite(r) {
		return 0
	}
	return clamp(r, -1, 1)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
