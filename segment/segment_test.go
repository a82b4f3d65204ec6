package segment

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/cwbudde/algo-tab/dsp"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/pitch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hopSeconds = 512.0 / 44100.0

func framesFrom(freqs []float64, prob float64) []Frame {
	frames := make([]Frame, len(freqs))
	for i, f := range freqs {
		frames[i] = Frame{Time: float64(i) * hopSeconds, Frequency: f, VoicedProb: prob}
	}
	return frames
}

func repeat(f float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func concat(parts ...[]float64) []float64 {
	var out []float64
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestSineProducesSingleA4(t *testing.T) {
	samples := dsp.Sine(440, 0.5, 1.0, 44100)
	notes, err := NewExtractor().Extract(samples, 44100, DefaultParams())
	require.NoError(t, err)
	require.Len(t, notes, 1)

	assert.Equal(t, "A4", notes[0].Name)
	assert.Equal(t, 69, notes[0].MIDI)
	assert.GreaterOrEqual(t, notes[0].Duration, 0.9)
	assert.InDelta(t, notes[0].End-notes[0].Start, notes[0].Duration, 1e-12)
}

func TestSineSelfTest(t *testing.T) {
	res, err := NewExtractor().SineSelfTest(440, 1, 44100)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "A4", res.ExpectedNote)
	assert.Equal(t, 1, res.DetectedCount)
}

func TestStateTransitions(t *testing.T) {
	nan := math.NaN()
	a4, c5 := 440.0, pitch.MIDIToFrequency(72)
	freqs := concat(repeat(nan, 3), repeat(a4, 10), repeat(c5, 10), repeat(nan, 5), repeat(a4, 4))

	notes := Segment(framesFrom(freqs, 1), 0, 0.5)
	require.Len(t, notes, 3)

	assert.Equal(t, "A4", notes[0].Name)
	assert.InDelta(t, 3*hopSeconds, notes[0].Start, 1e-12)
	assert.InDelta(t, 13*hopSeconds, notes[0].End, 1e-12)
	assert.Equal(t, "C5", notes[1].Name)
	assert.InDelta(t, notes[0].End, notes[1].Start, 1e-12)

	// End of stream closes at the last frame's time.
	last := notes[2]
	assert.Equal(t, "A4", last.Name)
	assert.InDelta(t, float64(len(freqs)-1)*hopSeconds, last.End, 1e-12)
}

func TestLowConfidenceIsSilent(t *testing.T) {
	notes := Segment(framesFrom(repeat(440, 50), 0.5), 0, 0.75)
	assert.Empty(t, notes)
	assert.Empty(t, Segment(nil, 0, 0))
}

func TestMinDurationMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	nan := math.NaN()
	pool := []float64{nan, 196, 220, 247, 262}
	for trial := 0; trial < 30; trial++ {
		var freqs []float64
		for len(freqs) < 400 {
			freqs = append(freqs, repeat(pool[rng.Intn(len(pool))], 1+rng.Intn(30))...)
		}
		frames := framesFrom(freqs, 1)

		prev := math.MaxInt
		for _, md := range []float64{0, 0.02, 0.05, 0.1, 0.2, 0.5} {
			n := len(Segment(frames, md, 0.5))
			assert.LessOrEqual(t, n, prev, "min duration %.2f", md)
			prev = n
		}
	}
}

func TestMergeAdjacent(t *testing.T) {
	notes := []Note{
		{Name: "A4", Start: 0, End: 1, Duration: 1},
		{Name: "A4", Start: 1.03, End: 2, Duration: 0.97},
		{Name: "A4", Start: 2.2, End: 3, Duration: 0.8},
		{Name: "B4", Start: 3.01, End: 4, Duration: 0.99},
	}
	merged := MergeAdjacent(notes, 0.05)
	require.Len(t, merged, 3)
	assert.Equal(t, 2.0, merged[0].End)
	assert.InDelta(t, 2.0, merged[0].Duration, 1e-12)
	assert.Equal(t, MergeAdjacent(merged, 0.05), merged)

	// Input is left untouched.
	assert.Equal(t, 1.0, notes[0].End)
	assert.Empty(t, MergeAdjacent(nil, 0.05))
}

func TestMergeIdempotentRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	names := []string{"E2", "A2", "D3"}
	for trial := 0; trial < 50; trial++ {
		var notes []Note
		tm := 0.0
		for i := 0; i < 20; i++ {
			tm += rng.Float64() * 0.1
			d := 0.05 + rng.Float64()*0.3
			notes = append(notes, Note{Name: names[rng.Intn(len(names))], Start: tm, End: tm + d, Duration: d})
			tm += d
		}
		once := MergeAdjacent(notes, 0.05)
		assert.Equal(t, once, MergeAdjacent(once, 0.05))
	}
}

func TestChunkedExtractionOffsetsTimes(t *testing.T) {
	const sr = 22050
	samples := dsp.Sine(220, 0.5, 2.5, sr)
	p := DefaultParams()
	p.SegmentSeconds = 1

	e := NewExtractor()
	chunks, err := e.Tracks(samples, sr, p.SegmentSeconds, false)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, 2.0, chunks[2].Offset)
	assert.InDelta(t, 1.0, chunks[1].Frames[0].Time, 1e-12)

	notes := Notes(chunks, p)
	require.Len(t, notes, 3)
	for i, n := range notes {
		assert.Equal(t, "A3", n.Name)
		assert.InDelta(t, float64(i), n.Start, 1e-9)
	}
}

func TestExtractRejectsBadInput(t *testing.T) {
	e := NewExtractor()
	_, err := e.Extract(nil, 44100, DefaultParams())
	assert.True(t, errors.Is(err, apperr.ErrEmptyAudio))

	_, err = e.Extract([]float64{0, 1}, 0, DefaultParams())
	var inErr *apperr.InputError
	assert.True(t, errors.As(err, &inErr))

	p := DefaultParams()
	p.MinVoicedProb = 2
	_, err = e.Extract([]float64{0, 1}, 44100, p)
	assert.True(t, errors.Is(err, apperr.ErrInvalidParams))
}

func TestExtractUsesInjectedOracle(t *testing.T) {
	calls := 0
	oracle := pitch.OracleFunc(func(samples []float64, sr int) (pitch.Track, error) {
		calls++
		n := 1 + len(samples)/pitch.DefaultHop
		tr := pitch.Track{Frequencies: repeat(pitch.MIDIToFrequency(40), n), VoicedProb: repeat(1, n), Hop: pitch.DefaultHop, SampleRate: sr}
		return tr, nil
	})
	e := &Extractor{Oracle: oracle}
	notes, err := e.Extract(make([]float64, 44100), 44100, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	require.Len(t, notes, 1)
	assert.Equal(t, "E2", notes[0].Name)
}
