package synth

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/cwbudde/algo-tab/dsp"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/tab"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluckedStringPeriodAndDecay(t *testing.T) {
	s := NewPluckedString(44100, 441, 0.99, rand.New(rand.NewSource(1)))
	assert.Equal(t, 100, s.line.Size())

	first := make([]float64, 100)
	for i := range first {
		first[i] = s.Process()
	}
	for i := 0; i < 40*100; i++ {
		s.Process()
	}
	late := make([]float64, 100)
	for i := range late {
		late[i] = s.Process()
	}
	assert.LessOrEqual(t, dsp.PeakAbs(first), 1.0)
	assert.Less(t, dsp.PeakAbs(late), 0.5*dsp.PeakAbs(first))

	assert.Equal(t, 2, NewPluckedString(100, 1000, 0.99, nil).line.Size())
}

func TestPluckEnvelope(t *testing.T) {
	const sr = 44100
	out := Pluck(220, 0.2, sr, 0.996, rand.New(rand.NewSource(2)))
	require.Len(t, out, int(0.2*sr))
	assert.Zero(t, out[0])
	assert.Zero(t, out[len(out)-1])

	short := Pluck(220, 0.001, sr, 0.996, nil)
	assert.Len(t, short, 44)
}

func TestPluckSeededIsDeterministic(t *testing.T) {
	a := Pluck(330, 0.1, 22050, 0.996, rand.New(rand.NewSource(9)))
	b := Pluck(330, 0.1, 22050, 0.996, rand.New(rand.NewSource(9)))
	assert.Equal(t, a, b)
}

func TestMIDIToFreq(t *testing.T) {
	assert.InDelta(t, 440.0, MIDIToFreq(69), 2)
	assert.InDelta(t, 82.41, MIDIToFreq(40), 0.5)
}

func TestRenderScenarioLowE(t *testing.T) {
	text := strings.Join([]string{"e|--|", "B|--|", "G|--|", "D|--|", "A|--|", "E|0-2-3|"}, "\n")
	g, err := tab.Parse(text)
	require.NoError(t, err)

	p := DefaultParams()
	res, err := Render(g, p, Options{SampleRate: 44100, Seed: 1})
	require.NoError(t, err)
	require.Len(t, res.Plucks, 3)

	step := int(math.Round(p.StepSeconds * 44100))
	for i, pl := range res.Plucks {
		assert.Equal(t, i, pl.Column)
		assert.Equal(t, 6, pl.String)
		assert.Equal(t, i*step, pl.StartSample)
	}
	assert.Equal(t, 40, res.Plucks[0].MIDI)
	assert.Equal(t, 42, res.Plucks[1].MIDI)
	assert.Equal(t, 43, res.Plucks[2].MIDI)

	wantLen := int((p.NoteSeconds + 3*p.StepSeconds) * 44100)
	assert.Equal(t, wantLen, len(res.Samples))
	assert.InDelta(t, float64(wantLen)/44100, res.Duration, 1e-12)
}

func TestRenderPeakNeverExceedsOne(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for trial := 0; trial < 10; trial++ {
		g := tab.Grid{Columns: make([]tab.Column, 1+rng.Intn(8))}
		for ci := range g.Columns {
			g.Columns[ci] = tab.EmptyColumn()
			for s := 0; s < tab.NumStrings; s++ {
				if rng.Intn(2) == 0 {
					g.Columns[ci][s] = rng.Intn(13)
				}
			}
		}
		p := DefaultParams()
		p.Gain = 0.5 + rng.Float64()*3
		p.StepSeconds = 0.01 + rng.Float64()*0.1
		res, err := Render(g, p, Options{SampleRate: 22050, Seed: int64(trial + 1)})
		require.NoError(t, err)
		assert.LessOrEqual(t, dsp.PeakAbs(res.Samples), 1.0+1e-12)
	}
}

func TestRenderQuietMixIsNotAmplified(t *testing.T) {
	g := tab.Grid{Columns: []tab.Column{tab.EmptyColumn()}}
	g.Columns[0][0] = 0
	p := DefaultParams()
	p.Gain = 0.1
	res, err := Render(g, p, Options{SampleRate: 22050, Seed: 3})
	require.NoError(t, err)
	assert.LessOrEqual(t, dsp.PeakAbs(res.Samples), 0.1)
}

func TestRenderEmptyAndCapped(t *testing.T) {
	res, err := Render(tab.Grid{}, DefaultParams(), Options{SampleRate: 1000})
	require.NoError(t, err)
	assert.InDelta(t, 180, len(res.Samples), 1)
	assert.Empty(t, res.Plucks)

	g := tab.Grid{Columns: make([]tab.Column, 100)}
	for i := range g.Columns {
		g.Columns[i] = tab.EmptyColumn()
		g.Columns[i][5] = 0
	}
	res, err = Render(g, DefaultParams(), Options{SampleRate: 8000, MaxSeconds: 1, Seed: 5})
	require.NoError(t, err)
	assert.Len(t, res.Samples, 8000)
	for _, pl := range res.Plucks {
		assert.Less(t, pl.StartSample, 8000)
	}
}

func TestRenderValidates(t *testing.T) {
	p := DefaultParams()
	p.Decay = 1
	_, err := Render(tab.Grid{}, p, Options{SampleRate: 44100})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParams))

	_, err = Render(tab.Grid{}, DefaultParams(), Options{})
	assert.True(t, errors.Is(err, apperr.ErrInvalidParams))
}
