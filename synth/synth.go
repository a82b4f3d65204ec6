// Package synth renders tablature grids with a plucked-string model.
package synth

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/algo-tab/dsp"
	"github.com/cwbudde/algo-tab/fretboard"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/tab"
)

// Params are the knobs of a grid rendering.
type Params struct {
	StepSeconds float64 `json:"step_seconds"`
	NoteSeconds float64 `json:"note_seconds"`
	Decay       float64 `json:"decay"`
	Gain        float64 `json:"gain"`
	Transpose   int     `json:"transpose_semitones"`
}

// DefaultParams returns the rendering defaults.
func DefaultParams() Params {
	return Params{
		StepSeconds: 0.14,
		NoteSeconds: 0.18,
		Decay:       0.996,
		Gain:        0.35,
	}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	switch {
	case !(p.StepSeconds > 0):
		return fmt.Errorf("%w: step_seconds %.4f must be > 0", apperr.ErrInvalidParams, p.StepSeconds)
	case !(p.NoteSeconds > 0):
		return fmt.Errorf("%w: note_seconds %.4f must be > 0", apperr.ErrInvalidParams, p.NoteSeconds)
	case !(p.Decay > 0 && p.Decay < 1):
		return fmt.Errorf("%w: decay %.4f must be in (0,1)", apperr.ErrInvalidParams, p.Decay)
	case !(p.Gain > 0) || math.IsInf(p.Gain, 0):
		return fmt.Errorf("%w: gain %.4f must be > 0", apperr.ErrInvalidParams, p.Gain)
	}
	return nil
}

// Options control the output buffer.
type Options struct {
	SampleRate int
	// MaxSeconds caps the buffer length when > 0.
	MaxSeconds float64
	// Seed makes plucks reproducible when non-zero.
	Seed int64
}

// Placement records one note placed into the mix.
type Placement struct {
	Column      int `json:"column"`
	String      int `json:"string"`
	Fret        int `json:"fret"`
	MIDI        int `json:"midi"`
	StartSample int `json:"start_sample"`
}

// Result is a rendered grid.
type Result struct {
	Samples    []float64
	SampleRate int
	Duration   float64
	Plucks     []Placement
}

// Render plays every non-rest cell of g at column*StepSeconds and mixes the
// plucks at p.Gain. The buffer covers the last note's tail (at least 0.1 s)
// and is divided by max(peak, 1) so no sample exceeds unity.
func Render(g tab.Grid, p Params, opt Options) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if opt.SampleRate <= 0 {
		return Result{}, fmt.Errorf("%w: sample rate %d", apperr.ErrInvalidParams, opt.SampleRate)
	}
	sr := float64(opt.SampleRate)

	total := math.Max(p.NoteSeconds+float64(g.Len())*p.StepSeconds, 0.1)
	if opt.MaxSeconds > 0 && total > opt.MaxSeconds {
		total = opt.MaxSeconds
	}
	out := make([]float64, int(total*sr))

	var rng *rand.Rand
	if opt.Seed != 0 {
		rng = rand.New(rand.NewSource(opt.Seed))
	}

	res := Result{SampleRate: opt.SampleRate}
	for _, c := range g.Notes() {
		start := int(math.Round(float64(c.Column) * p.StepSeconds * sr))
		if start >= len(out) {
			break
		}
		midi := fretboard.OpenMIDI[c.String] + c.Fret + p.Transpose
		note := Pluck(MIDIToFreq(midi), p.NoteSeconds, opt.SampleRate, p.Decay, rng)
		end := start + len(note)
		if end > len(out) {
			end = len(out)
		}
		for i := start; i < end; i++ {
			out[i] += note[i-start] * p.Gain
		}
		res.Plucks = append(res.Plucks, Placement{Column: c.Column, String: c.String, Fret: c.Fret, MIDI: midi, StartSample: start})
	}

	if peak := dsp.PeakAbs(out); peak > 0 {
		scale := 1 / math.Max(peak, 1)
		for i := range out {
			out[i] *= scale
		}
	}
	res.Samples = out
	res.Duration = float64(len(out)) / sr
	return res, nil
}
