package fit

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/algo-tab/dsp"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/segment"
	"github.com/cwbudde/algo-tab/synth"
	"github.com/cwbudde/algo-tab/tab"
)

func TestProductOrder(t *testing.T) {
	axes := []Axis{
		{Name: "a", Values: []float64{1, 2}},
		{Name: "b", Values: []float64{10, 20, 30}},
	}
	got := Product(axes)
	want := [][]float64{{1, 10}, {1, 20}, {1, 30}, {2, 10}, {2, 20}, {2, 30}}
	assert.Equal(t, want, got)

	assert.Nil(t, Product(nil))
	assert.Nil(t, Product([]Axis{{Name: "x"}}))
}

func TestRefineAxesClampsAndDedups(t *testing.T) {
	axes := []Axis{
		{Name: "step", Delta: 0.015, Min: 0.08, Max: 0.22},
		{Name: "transpose", Delta: 1, Min: -12, Max: 12, IsInt: true},
	}
	out := RefineAxes(axes, []float64{0.22, -12})
	require.Len(t, out, 2)
	assert.InDeltaSlice(t, []float64{0.205, 0.22}, out[0].Values, 1e-12)
	assert.Equal(t, []float64{-12, -11}, out[1].Values)
	assert.Equal(t, "transpose", out[1].Name)

	mid := RefineAxes(axes, []float64{0.14, 0})
	assert.InDeltaSlice(t, []float64{0.125, 0.14, 0.155}, mid[0].Values, 1e-12)
	assert.Equal(t, []float64{-1, 0, 1}, mid[1].Values)
}

func TestFromNormalized(t *testing.T) {
	axes := []Axis{
		{Name: "gain", Min: 0.15, Max: 0.65},
		{Name: "transpose", Min: -12, Max: 12, IsInt: true},
	}
	got := fromNormalized([]float64{0.5, 0.52}, axes)
	assert.InDelta(t, 0.40, got[0], 1e-12)
	assert.Equal(t, 0.0, got[1])

	clamped := fromNormalized([]float64{-1, 2}, axes)
	assert.InDelta(t, 0.15, clamped[0], 1e-12)
	assert.Equal(t, 12.0, clamped[1])
}

func TestSearchFirstWinsTies(t *testing.T) {
	points := [][]float64{{0}, {1}, {2}, {3}}
	scores := []float64{1, 5, 5, 2}
	res, err := Search(points, SearchOptions{Workers: 1, TopK: 4}, func(p []float64) (float64, int, error) {
		i := int(p[0])
		return scores[i], i, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Best.Eval)
	assert.Equal(t, 1, res.Best.Artifact)
	assert.Equal(t, 4, res.Evaluations)
	require.Len(t, res.Top, 4)
	assert.Equal(t, 2, res.Top[0].Eval)
	assert.Equal(t, 3, res.Top[1].Eval)
}

func TestSearchParallelMatchesSerial(t *testing.T) {
	axes := []Axis{
		{Name: "x", Values: []float64{-1, -0.5, 0, 0.5, 1}},
		{Name: "y", Values: []float64{-1, 0, 1}},
	}
	points := Product(axes)
	eval := func(p []float64) (float64, struct{}, error) {
		return -(p[0]-0.5)*(p[0]-0.5) - p[1]*p[1], struct{}{}, nil
	}
	serial, err := Search(points, SearchOptions{Workers: 1, Axes: axes, TopK: 3}, eval)
	require.NoError(t, err)
	parallel, err := Search(points, SearchOptions{Workers: 4, Axes: axes, TopK: 3}, eval)
	require.NoError(t, err)

	assert.Equal(t, serial.Best.Eval, parallel.Best.Eval)
	assert.Equal(t, serial.Best.Point, parallel.Best.Point)
	assert.Equal(t, serial.Top, parallel.Top)
	assert.Equal(t, []float64{0.5, 0}, serial.Best.Point)
	assert.Equal(t, 0.5, serial.Top[0].Knobs["x"])
}

func TestSearchSkipsFailures(t *testing.T) {
	points := [][]float64{{0}, {1}, {2}}
	var log bytes.Buffer
	res, err := Search(points, SearchOptions{Workers: 2, Progress: &log}, func(p []float64) (float64, int, error) {
		switch p[0] {
		case 0:
			return 0, 0, errors.New("render failed")
		case 1:
			panic("boom")
		}
		return 0.3, 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Best.Eval)
	assert.Equal(t, 2, res.Failed)
	assert.Contains(t, log.String(), "Improved eval=3 score=0.3000")
}

func TestSearchNoCandidates(t *testing.T) {
	_, err := Search(nil, SearchOptions{}, func(p []float64) (float64, int, error) { return 0, 0, nil })
	assert.ErrorIs(t, err, apperr.ErrNoCandidates)

	_, err = Search([][]float64{{1}}, SearchOptions{Workers: 1}, func(p []float64) (float64, int, error) {
		return math.NaN(), 0, nil
	})
	assert.ErrorIs(t, err, apperr.ErrNoCandidates)
}

func TestDensityScore(t *testing.T) {
	assert.Equal(t, 20.0, DensityScore(20, 10, 2, 120))
	assert.InDelta(t, 30-120, DensityScore(30, 10, 2, 120), 1e-9)
	assert.Equal(t, 0.0, DensityScore(0, 0, 2, 120))
}

func TestTuneSegmentationOnSine(t *testing.T) {
	const sr = 22050
	samples := dsp.Sine(220, 0.5, 2, sr)

	cfg := DefaultTuneConfig()
	cfg.SegmentSeconds = []float64{1, 2}
	cfg.Workers = 2
	res, err := TuneSegmentation(samples, sr, nil, cfg)
	require.NoError(t, err)

	assert.Equal(t, 3*3*2, res.Evaluations)
	assert.NotEmpty(t, res.RunID)
	assert.True(t, res.Params.UseHarmonic)
	assert.Equal(t, 0.03, res.Params.MergeGap)
	require.NotEmpty(t, res.Notes)
	for _, n := range res.Notes {
		assert.Equal(t, "A3", n.Name)
	}
	for _, c := range res.Top {
		assert.LessOrEqual(t, c.Score, res.Score)
	}
}

func TestTuneSegmentationRejectsEmpty(t *testing.T) {
	_, err := TuneSegmentation(nil, 44100, segment.NewExtractor(), DefaultTuneConfig())
	assert.ErrorIs(t, err, apperr.ErrEmptyAudio)
}

func lowERiff() tab.Grid {
	cols := make([]tab.Column, 0, 3)
	for _, f := range []int{0, 2, 3} {
		c := tab.EmptyColumn()
		c[5] = f
		cols = append(cols, c)
	}
	return tab.Grid{Columns: cols}
}

func smallMatchConfig() MatchConfig {
	cfg := DefaultMatchConfig()
	cfg.SearchRate = 8000
	cfg.TargetRate = 16000
	cfg.TopK = 1000
	cfg.Workers = 2
	cfg.Axes = []Axis{
		{Name: "step_seconds", Values: []float64{0.11, 0.17}, Delta: 0.015, Min: 0.08, Max: 0.22},
		{Name: "note_seconds", Values: []float64{0.19}, Delta: 0.02, Min: 0.10, Max: 0.30},
		{Name: "decay", Values: []float64{0.996}, Delta: 0.001, Min: 0.990, Max: 0.999},
		{Name: "gain", Values: []float64{0.38}, Delta: 0.06, Min: 0.15, Max: 0.65},
		{Name: "transpose_semitones", Values: []float64{-1, 0, 1}, Delta: 1, Min: -12, Max: 12, IsInt: true},
	}
	return cfg
}

func TestMatchSynthSelectsArgMax(t *testing.T) {
	g := lowERiff()
	target := synth.DefaultParams()
	target.StepSeconds = 0.17
	ref, err := synth.Render(g, target, synth.Options{SampleRate: 16000, Seed: 3})
	require.NoError(t, err)

	cfg := smallMatchConfig()
	res, err := MatchSynth(g, ref.Samples, 16000, cfg)
	require.NoError(t, err)

	coarse := 2 * 3
	assert.Greater(t, res.Evaluations, coarse)
	assert.Equal(t, res.Evaluations, len(res.Top))
	for _, c := range res.Top {
		assert.LessOrEqual(t, c.Score, res.Score)
	}
	assert.Equal(t, res.Score, res.Top[0].Score)
	assert.Contains(t, []string{"coarse", "refine"}, res.Stage)
	assert.Equal(t, 16000, res.Render.SampleRate)
	assert.Len(t, res.Render.Plucks, 3)
	assert.NotEmpty(t, res.RunID)
}

func TestMatchSynthIsDeterministic(t *testing.T) {
	g := lowERiff()
	ref, err := synth.Render(g, synth.DefaultParams(), synth.Options{SampleRate: 8000, Seed: 5})
	require.NoError(t, err)

	cfg := smallMatchConfig()
	cfg.Workers = 1
	a, err := MatchSynth(g, ref.Samples, 8000, cfg)
	require.NoError(t, err)
	cfg.Workers = 3
	b, err := MatchSynth(g, ref.Samples, 8000, cfg)
	require.NoError(t, err)

	assert.Equal(t, a.Params, b.Params)
	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Top, b.Top)
}

func TestMatchSynthRejectsBadInput(t *testing.T) {
	_, err := MatchSynth(lowERiff(), nil, 44100, DefaultMatchConfig())
	assert.ErrorIs(t, err, apperr.ErrEmptyAudio)

	_, err = MatchSynth(tab.Grid{}, []float64{0, 1}, 44100, DefaultMatchConfig())
	assert.ErrorIs(t, err, apperr.ErrInvalidParams)
}

func TestParamsAt(t *testing.T) {
	p := ParamsAt([]float64{0.14, 0.18, 0.996, 0.35, -1.0000001})
	assert.Equal(t, -1, p.Transpose)
	assert.Equal(t, 0.14, p.StepSeconds)
}

func TestPolishOptionsRoundConfig(t *testing.T) {
	axes := make([]Axis, 5)
	for _, v := range []string{"ma", "DESMA", "olce", "eobbma", "gsasma", "mpma", "aoblmoa"} {
		t.Run(v, func(t *testing.T) {
			o, err := PolishOptions{Evals: 10, Variant: v, Pop: 20, Axes: axes}.normalize()
			require.NoError(t, err)
			cfg := o.round(0, 3)
			assert.Equal(t, 5, cfg.ProblemSize)
			assert.Equal(t, 20, cfg.NPop)
			assert.Equal(t, 40, cfg.NC)
			assert.Equal(t, 1, cfg.NM)
			assert.Equal(t, 3, cfg.MaxIterations)
		})
	}

	o, err := PolishOptions{Evals: 10, Axes: axes}.normalize()
	require.NoError(t, err)
	assert.Equal(t, "desma", o.Variant)
	assert.Equal(t, 10, o.Pop)
	assert.Equal(t, 1, o.TopK)

	_, err = PolishOptions{Evals: 10, Variant: "nope", Axes: axes}.normalize()
	assert.ErrorIs(t, err, apperr.ErrInvalidParams)
}

func TestEvalBudgetCaps(t *testing.T) {
	b := &evalBudget{limit: 3}
	for i := 1; i <= 3; i++ {
		n, ok := b.take()
		require.True(t, ok)
		assert.Equal(t, i, n)
	}
	_, ok := b.take()
	assert.False(t, ok)
	assert.Zero(t, b.remaining())
}

func TestPolishFindsOptimumRegion(t *testing.T) {
	axes := []Axis{
		{Name: "x", Min: -1, Max: 1},
		{Name: "y", Min: -1, Max: 1},
	}
	res, err := Polish(PolishOptions{Evals: 200, Variant: "ma", Pop: 10, Seed: 7, Axes: axes, TopK: 5},
		func(p []float64) (float64, struct{}, error) {
			return -(p[0]-0.3)*(p[0]-0.3) - (p[1]+0.2)*(p[1]+0.2), struct{}{}, nil
		})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Evaluations, 200)
	assert.Greater(t, res.Best.Score, -0.1)
	assert.Len(t, res.Top, 5)

	_, err = Polish(PolishOptions{Evals: 0, Axes: axes}, func(p []float64) (float64, int, error) { return 0, 0, nil })
	assert.ErrorIs(t, err, apperr.ErrNoCandidates)
}
