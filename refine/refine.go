// Package refine corrects tablature frets against the pitch track of a
// reference recording.
package refine

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tab/fretboard"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/pitch"
	"github.com/cwbudde/algo-tab/tab"
)

// AnalysisRate is the rate the reference is tracked at.
const AnalysisRate = 22050

const (
	maxShift     = 12
	shiftPenalty = 0.04
	minGain      = 0.8
)

// Config configures Refine.
type Config struct {
	StepSeconds float64
	// MaxFret < 0 selects the default neck length; 0 allows open strings only.
	MaxFret int
	// Oracle defaults to YIN.
	Oracle pitch.Oracle
}

// Change records one corrected cell.
type Change struct {
	Column  int     `json:"column"`
	String  int     `json:"string"`
	OldFret int     `json:"old_fret"`
	NewFret int     `json:"new_fret"`
	Target  float64 `json:"target_midi"`
}

// Result is a refined grid.
type Result struct {
	Grid        tab.Grid `json:"-"`
	Changes     []Change `json:"changes"`
	StepSeconds float64  `json:"step_seconds"`
}

// Count returns the number of corrected cells.
func (r Result) Count() int {
	return len(r.Changes)
}

// Refine shifts each played cell by up to an octave when the pitch heard at
// its column is closer by at least 0.8 semitones. Rests and the column count
// never change.
func Refine(g tab.Grid, reference []float64, sampleRate int, cfg Config) (Result, error) {
	res := Result{StepSeconds: cfg.StepSeconds}
	if len(reference) == 0 {
		return res, apperr.Input("refine", apperr.ErrEmptyAudio)
	}
	if !(cfg.StepSeconds > 0) {
		return res, apperr.Input("refine", fmt.Errorf("%w: step_seconds %.4f", apperr.ErrInvalidParams, cfg.StepSeconds))
	}
	maxFret := cfg.MaxFret
	if maxFret < 0 {
		maxFret = fretboard.DefaultMaxFret
	}
	oracle := cfg.Oracle
	if oracle == nil {
		oracle = pitch.NewYIN()
	}

	audio, err := fitcommon.ResampleIfNeeded(reference, sampleRate, AnalysisRate)
	if err != nil {
		return res, apperr.Input("refine", err)
	}
	seconds := math.Max(2, float64(g.Len())*cfg.StepSeconds+0.5)
	audio = fitcommon.Preview(audio, AnalysisRate, seconds)

	track, err := oracle.Estimate(audio, AnalysisRate)
	if err != nil {
		return res, fmt.Errorf("refine: pitch estimate: %w", err)
	}
	hop := track.Hop
	if hop <= 0 {
		hop = pitch.DefaultHop
	}

	out := g.Clone()
	for ci := range out.Columns {
		if track.Len() == 0 {
			break
		}
		frame := int(math.Round(float64(ci) * cfg.StepSeconds * AnalysisRate / float64(hop)))
		frame = fitcommon.Clamp(frame, 0, track.Len()-1)
		target := pitch.FrequencyToMIDI(track.Frequencies[frame])
		if math.IsNaN(target) || math.IsInf(target, 0) {
			continue
		}
		for s, fret := range out.Columns[ci] {
			if fret == tab.Rest {
				continue
			}
			str := s + 1
			next, ok := bestFret(str, fret, target, maxFret)
			if !ok {
				continue
			}
			out.Columns[ci][s] = next
			res.Changes = append(res.Changes, Change{Column: ci, String: str, OldFret: fret, NewFret: next, Target: target})
		}
	}
	res.Grid = out
	return res, nil
}

// bestFret scores shifts by distance to target plus a small penalty per
// semitone moved; the first strictly lower score wins.
func bestFret(str, fret int, target float64, maxFret int) (int, bool) {
	open := fretboard.OpenMIDI[str]
	current := math.Abs(float64(open+fret) - target)

	bestScore := math.Inf(1)
	best := fret
	for d := -maxShift; d <= maxShift; d++ {
		f := fret + d
		if f < 0 || f > maxFret {
			continue
		}
		score := math.Abs(float64(open+f)-target) + shiftPenalty*math.Abs(float64(d))
		if score < bestScore {
			bestScore = score
			best = f
		}
	}
	if best == fret {
		return fret, false
	}
	if current-math.Abs(float64(open+best)-target) < minGain {
		return fret, false
	}
	return best, true
}
