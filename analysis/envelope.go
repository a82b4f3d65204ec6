package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Diagnostics describe loudness-envelope agreement. They are reported next
// to the similarity score to judge the decay fit; they do not enter Score.
type Diagnostics struct {
	EnvelopeRMSEDB  float64 `json:"envelope_rmse_db"`
	RefDecayDBPerS  float64 `json:"ref_decay_db_per_s"`
	CandDecayDBPerS float64 `json:"cand_decay_db_per_s"`
	DecayDiffDBPerS float64 `json:"decay_diff_db_per_s"`
}

const (
	envelopeFrame = 256
	envelopeHop   = 128
)

// Diagnose compares the RMS envelopes of the shared prefix of two signals,
// both peak-normalized. Slopes that cannot be estimated are reported as 0.
func Diagnose(reference, candidate []float64, sampleRate int) Diagnostics {
	var d Diagnostics
	n := minInt(len(reference), len(candidate))
	if sampleRate <= 0 || n < envelopeFrame {
		return d
	}
	refEnv := rmsEnvelope(normalizePeak(reference[:n]), envelopeFrame, envelopeHop)
	candEnv := rmsEnvelope(normalizePeak(candidate[:n]), envelopeFrame, envelopeHop)

	envDiff := make([]float64, len(refEnv))
	for i := range refEnv {
		envDiff[i] = linToDB(refEnv[i]) - linToDB(candEnv[i])
	}
	d.EnvelopeRMSEDB = rms1(envDiff)

	hopSec := float64(envelopeHop) / float64(sampleRate)
	refSlope := decaySlopeDBPerS(refEnv, hopSec)
	candSlope := decaySlopeDBPerS(candEnv, hopSec)
	if isFinite(refSlope) {
		d.RefDecayDBPerS = refSlope
	}
	if isFinite(candSlope) {
		d.CandDecayDBPerS = candSlope
	}
	if isFinite(refSlope) && isFinite(candSlope) {
		d.DecayDiffDBPerS = math.Abs(refSlope - candSlope)
	}
	return d
}

func rms1(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func rmsEnvelope(x []float64, frame int, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(x) < frame {
		return nil
	}
	n := 1 + (len(x)-frame)/hop
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i * hop
		out[i] = rms1(x[start : start+frame])
	}
	return out
}

func linToDB(x float64) float64 {
	if x < 1e-12 {
		x = 1e-12
	}
	return 20.0 * math.Log10(x)
}

// decaySlopeDBPerS fits a line to the envelope in dB from its peak down to
// 60 dB below it.
func decaySlopeDBPerS(env []float64, hopSec float64) float64 {
	if len(env) < 8 || hopSec <= 0 {
		return math.NaN()
	}
	peak := -math.MaxFloat64
	peakIdx := 0
	for i, v := range env {
		if db := linToDB(v); db > peak {
			peak = db
			peakIdx = i
		}
	}
	start := peakIdx + 1
	if start >= len(env)-4 {
		return math.NaN()
	}
	end := len(env)
	for i := start; i < len(env); i++ {
		if linToDB(env[i]) < peak-60.0 {
			end = i
			break
		}
	}
	if end-start < 6 {
		return math.NaN()
	}

	xs := make([]float64, end-start)
	ys := make([]float64, end-start)
	for i := start; i < end; i++ {
		xs[i-start] = float64(i-start) * hopSec
		ys[i-start] = linToDB(env[i])
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope
}
