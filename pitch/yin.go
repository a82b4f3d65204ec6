package pitch

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tab/internal/apperr"
)

// YIN is the default Oracle: the cumulative-mean-normalized difference
// estimator of de Cheveigné and Kawahara evaluated on centred frames.
type YIN struct {
	FrameSize int     // analysis window in samples (default 2048)
	Hop       int     // frame hop in samples (default DefaultHop)
	MinFreq   float64 // lowest frequency searched (default MinFrequency)
	MaxFreq   float64 // highest frequency searched (default MaxFrequency)
	Threshold float64 // absolute threshold on d'(tau) (default 0.15)
	// SilenceRMS gates frames quieter than this as unvoiced (default 1e-4).
	SilenceRMS float64
}

// NewYIN returns a YIN oracle with the guitar defaults.
func NewYIN() *YIN {
	return &YIN{
		FrameSize:  2048,
		Hop:        DefaultHop,
		MinFreq:    MinFrequency,
		MaxFreq:    MaxFrequency,
		Threshold:  0.15,
		SilenceRMS: 1e-4,
	}
}

func (y *YIN) withDefaults() YIN {
	c := *y
	d := NewYIN()
	if c.FrameSize <= 0 {
		c.FrameSize = d.FrameSize
	}
	if c.Hop <= 0 {
		c.Hop = d.Hop
	}
	if c.MinFreq <= 0 {
		c.MinFreq = d.MinFreq
	}
	if c.MaxFreq <= c.MinFreq {
		c.MaxFreq = d.MaxFreq
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.SilenceRMS <= 0 {
		c.SilenceRMS = d.SilenceRMS
	}
	return c
}

// Estimate produces one frame per hop; frame i is centred on sample i*Hop.
func (y *YIN) Estimate(samples []float64, sampleRate int) (Track, error) {
	if sampleRate <= 0 {
		return Track{}, apperr.Input("yin", fmt.Errorf("%w: sample rate %d", apperr.ErrInvalidParams, sampleRate))
	}
	if len(samples) == 0 {
		return Track{}, apperr.Input("yin", apperr.ErrEmptyAudio)
	}
	cfg := y.withDefaults()
	sr := float64(sampleRate)

	frameSize := cfg.FrameSize
	tauMin := int(math.Floor(sr / cfg.MaxFreq))
	tauMax := int(math.Ceil(sr / cfg.MinFreq))
	if tauMin < 2 {
		tauMin = 2
	}
	if tauMax > frameSize/2 {
		tauMax = frameSize / 2
	}
	if tauMax <= tauMin {
		return Track{}, apperr.Input("yin", fmt.Errorf("%w: frame %d too short for search range", apperr.ErrInvalidParams, frameSize))
	}
	window := frameSize - tauMax

	padded := samples
	if len(padded) < frameSize {
		padded = make([]float64, frameSize)
		copy(padded, samples)
	}

	frames := 1 + len(samples)/cfg.Hop
	track := Track{
		Frequencies: make([]float64, frames),
		VoicedProb:  make([]float64, frames),
		Hop:         cfg.Hop,
		SampleRate:  sampleRate,
	}

	diff := make([]float64, tauMax+1)
	cmnd := make([]float64, tauMax+1)
	for i := 0; i < frames; i++ {
		start := i*cfg.Hop - frameSize/2
		if start > len(padded)-frameSize {
			start = len(padded) - frameSize
		}
		if start < 0 {
			start = 0
		}
		frame := padded[start : start+frameSize]

		if frameRMS(frame) < cfg.SilenceRMS {
			track.Frequencies[i] = math.NaN()
			continue
		}

		differenceFunction(frame, window, diff)
		cumulativeMeanNormalize(diff, cmnd)

		tau, ok := absoluteThreshold(cmnd, tauMin, tauMax, cfg.Threshold)
		if !ok {
			track.Frequencies[i] = math.NaN()
			track.VoicedProb[i] = clampProb(1 - minValue(cmnd[tauMin:]))
			continue
		}
		period := parabolicInterpolation(cmnd, tau)
		freq := sr / period
		if freq < cfg.MinFreq || freq > cfg.MaxFreq {
			track.Frequencies[i] = math.NaN()
			continue
		}
		track.Frequencies[i] = freq
		track.VoicedProb[i] = clampProb(1 - cmnd[tau])
	}
	return track, nil
}

func differenceFunction(frame []float64, window int, diff []float64) {
	diff[0] = 0
	for tau := 1; tau < len(diff); tau++ {
		var sum float64
		for j := 0; j < window; j++ {
			d := frame[j] - frame[j+tau]
			sum += d * d
		}
		diff[tau] = sum
	}
}

func cumulativeMeanNormalize(diff, cmnd []float64) {
	cmnd[0] = 1
	var running float64
	for tau := 1; tau < len(diff); tau++ {
		running += diff[tau]
		if running == 0 {
			cmnd[tau] = 1
			continue
		}
		cmnd[tau] = diff[tau] * float64(tau) / running
	}
}

// absoluteThreshold returns the first tau under the threshold, walked down
// to the bottom of its dip.
func absoluteThreshold(cmnd []float64, tauMin, tauMax int, threshold float64) (int, bool) {
	for tau := tauMin; tau <= tauMax; tau++ {
		if cmnd[tau] >= threshold {
			continue
		}
		for tau+1 <= tauMax && cmnd[tau+1] < cmnd[tau] {
			tau++
		}
		return tau, true
	}
	return 0, false
}

func parabolicInterpolation(cmnd []float64, tau int) float64 {
	if tau <= 0 || tau >= len(cmnd)-1 {
		return float64(tau)
	}
	s0, s1, s2 := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
	den := s0 - 2*s1 + s2
	if den == 0 {
		return float64(tau)
	}
	shift := 0.5 * (s0 - s2) / den
	if math.Abs(shift) > 1 {
		return float64(tau)
	}
	return float64(tau) + shift
}

func frameRMS(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func minValue(x []float64) float64 {
	m := math.Inf(1)
	for _, v := range x {
		if v < m {
			m = v
		}
	}
	return m
}

func clampProb(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
