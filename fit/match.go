package fit

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-tab/analysis"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/synth"
	"github.com/cwbudde/algo-tab/tab"
)

// Match axis order.
const (
	axisStep = iota
	axisNote
	axisDecay
	axisGain
	axisTranspose
)

// DefaultMatchAxes returns the coarse grid and refinement bounds of the
// synthesis match.
func DefaultMatchAxes() []Axis {
	return []Axis{
		{Name: "step_seconds", Values: []float64{0.11, 0.14, 0.17}, Delta: 0.015, Min: 0.08, Max: 0.22},
		{Name: "note_seconds", Values: []float64{0.14, 0.19, 0.24}, Delta: 0.02, Min: 0.10, Max: 0.30},
		{Name: "decay", Values: []float64{0.993, 0.996, 0.998}, Delta: 0.001, Min: 0.990, Max: 0.999},
		{Name: "gain", Values: []float64{0.28, 0.38, 0.48}, Delta: 0.06, Min: 0.15, Max: 0.65},
		{Name: "transpose_semitones", Values: []float64{-2, -1, 0, 1, 2}, Delta: 1, Min: -12, Max: 12, IsInt: true},
	}
}

// MatchConfig configures MatchSynth.
type MatchConfig struct {
	// SearchRate is the rate candidates are rendered and scored at.
	SearchRate     int
	PreviewSeconds float64
	// TargetRate is the rate of the final full-length render.
	TargetRate int

	Axes    []Axis
	Workers int
	TopK    int
	Seed    int64

	// MayflyEvals > 0 enables a polish stage after grid refinement.
	MayflyEvals   int
	MayflyVariant string
	MayflyPop     int

	Scorer   *analysis.Scorer
	Progress io.Writer
}

// DefaultMatchConfig returns the match defaults.
func DefaultMatchConfig() MatchConfig {
	return MatchConfig{
		SearchRate:     22050,
		PreviewSeconds: 24,
		TargetRate:     44100,
		Axes:           DefaultMatchAxes(),
		Workers:        1,
		TopK:           10,
		Seed:           1,
		MayflyVariant:  "desma",
		MayflyPop:      10,
	}
}

// MatchResult is the outcome of MatchSynth.
type MatchResult struct {
	RunID       string               `json:"run_id"`
	Params      synth.Params         `json:"params"`
	Score       float64              `json:"score"`
	Stage       string               `json:"stage"`
	Metrics     analysis.Metrics     `json:"metrics"`
	Diagnostics analysis.Diagnostics `json:"diagnostics"`
	Evaluations int                  `json:"evaluations"`
	Failed      int                  `json:"failed"`
	Elapsed     float64              `json:"elapsed_sec"`
	Top         []TopCandidate       `json:"top_candidates"`

	// Render is the winner rendered at TargetRate over the full grid.
	Render synth.Result `json:"-"`
}

// ParamsAt converts a point on the match axes to synthesis parameters.
func ParamsAt(point []float64) synth.Params {
	return synth.Params{
		StepSeconds: point[axisStep],
		NoteSeconds: point[axisNote],
		Decay:       point[axisDecay],
		Gain:        point[axisGain],
		Transpose:   int(math.Round(point[axisTranspose])),
	}
}

// MatchSynth searches synthesis parameters whose rendering of g best matches
// reference. A coarse grid is followed by a refinement grid around its
// winner and an optional Mayfly polish; the best candidate across all stages
// is re-rendered at the target rate.
func MatchSynth(g tab.Grid, reference []float64, refRate int, cfg MatchConfig) (*MatchResult, error) {
	if len(reference) == 0 {
		return nil, apperr.Input("match", apperr.ErrEmptyAudio)
	}
	if g.Len() == 0 {
		return nil, apperr.Input("match", fmt.Errorf("%w: empty grid", apperr.ErrInvalidParams))
	}
	if cfg.SearchRate <= 0 || cfg.TargetRate <= 0 {
		return nil, apperr.Input("match", fmt.Errorf("%w: rates %d/%d", apperr.ErrInvalidParams, cfg.SearchRate, cfg.TargetRate))
	}
	axes := cfg.Axes
	if len(axes) == 0 {
		axes = DefaultMatchAxes()
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = analysis.NewScorer()
	}
	started := time.Now()

	ref, err := fitcommon.ResampleIfNeeded(reference, refRate, cfg.SearchRate)
	if err != nil {
		return nil, apperr.Input("match", err)
	}
	if cfg.PreviewSeconds > 0 {
		ref = fitcommon.Preview(ref, cfg.SearchRate, cfg.PreviewSeconds)
	}
	previewSeconds := float64(len(ref)) / float64(cfg.SearchRate)

	objective := func(point []float64) (float64, analysis.Metrics, error) {
		render, err := synth.Render(g, ParamsAt(point), synth.Options{
			SampleRate: cfg.SearchRate,
			MaxSeconds: previewSeconds,
			Seed:       cfg.Seed,
		})
		if err != nil {
			return 0, analysis.Metrics{}, err
		}
		m, err := scorer.Compare(ref, render.Samples, cfg.SearchRate)
		if err != nil {
			return 0, m, err
		}
		return m.Score, m, nil
	}

	topK := fitcommon.MaxInt(1, cfg.TopK)
	coarsePoints := Product(axes)
	if cfg.Progress != nil {
		fmt.Fprintf(cfg.Progress, "Coarse search: %d candidates\n", len(coarsePoints))
	}
	coarse, err := Search(coarsePoints, SearchOptions{
		Workers: cfg.Workers, Axes: axes, TopK: topK,
		Progress: cfg.Progress, ReportEvery: 50, Label: "coarse",
	}, objective)
	if err != nil {
		return nil, fmt.Errorf("match coarse: %w", err)
	}
	best, stage := coarse.Best, "coarse"
	evals, failed := coarse.Evaluations, coarse.Failed
	top := coarse.Top

	refineAxes := RefineAxes(axes, coarse.Best.Point)
	refinePoints := Product(refineAxes)
	if cfg.Progress != nil {
		fmt.Fprintf(cfg.Progress, "Refine search: %d candidates\n", len(refinePoints))
	}
	fine, err := Search(refinePoints, SearchOptions{
		Workers: cfg.Workers, Axes: axes, TopK: topK, EvalOffset: evals,
		Progress: cfg.Progress, ReportEvery: 50, Label: "refine",
	}, objective)
	if err == nil {
		if fine.Best.Score > best.Score {
			best, stage = fine.Best, "refine"
		}
		top = mergeTop(top, fine.Top, topK)
	}
	evals += fine.Evaluations
	failed += fine.Failed

	if cfg.MayflyEvals > 0 {
		polished, err := Polish(PolishOptions{
			Evals: cfg.MayflyEvals, Variant: cfg.MayflyVariant, Pop: cfg.MayflyPop,
			Seed: cfg.Seed, Axes: axes, TopK: topK, EvalOffset: evals, Progress: cfg.Progress,
		}, objective)
		if err == nil && polished.Best.Score > best.Score {
			best, stage = polished.Best, "mayfly"
		}
		if err == nil {
			top = mergeTop(top, polished.Top, topK)
		}
		evals += polished.Evaluations
		failed += polished.Failed
	}

	params := ParamsAt(best.Point)
	final, err := synth.Render(g, params, synth.Options{SampleRate: cfg.TargetRate, Seed: cfg.Seed})
	if err != nil {
		return nil, fmt.Errorf("match final render: %w", err)
	}
	searchRender, err := synth.Render(g, params, synth.Options{SampleRate: cfg.SearchRate, MaxSeconds: previewSeconds, Seed: cfg.Seed})
	if err != nil {
		return nil, fmt.Errorf("match diagnostics render: %w", err)
	}

	return &MatchResult{
		RunID:       uuid.NewString(),
		Params:      params,
		Score:       best.Score,
		Stage:       stage,
		Metrics:     best.Artifact,
		Diagnostics: analysis.Diagnose(ref, searchRender.Samples, cfg.SearchRate),
		Evaluations: evals,
		Failed:      failed,
		Elapsed:     time.Since(started).Seconds(),
		Top:         top,
		Render:      final,
	}, nil
}
