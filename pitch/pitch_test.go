package pitch

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sineWave(freq, amp float64, sr int, seconds float64) []float64 {
	n := int(seconds * float64(sr))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sr))
	}
	return out
}

func TestYINTracksSine(t *testing.T) {
	const sr = 44100
	for _, freq := range []float64{110, 196, 440, 880} {
		track, err := NewYIN().Estimate(sineWave(freq, 0.5, sr, 0.5), sr)
		require.NoError(t, err)
		require.Equal(t, 1+int(0.5*sr)/DefaultHop, track.Len())

		mid := track.Len() / 2
		assert.InDelta(t, freq, track.Frequencies[mid], freq*0.01, "freq %.0f", freq)
		assert.Greater(t, track.VoicedProb[mid], 0.9)
	}
}

func TestYINSilenceIsUnvoiced(t *testing.T) {
	track, err := NewYIN().Estimate(make([]float64, 8192), 22050)
	require.NoError(t, err)
	for i := 0; i < track.Len(); i++ {
		assert.True(t, math.IsNaN(track.Frequencies[i]))
		assert.Zero(t, track.VoicedProb[i])
	}
}

func TestYINRejectsBadInput(t *testing.T) {
	_, err := NewYIN().Estimate(nil, 44100)
	assert.True(t, errors.Is(err, apperr.ErrEmptyAudio))

	_, err = NewYIN().Estimate([]float64{1}, 0)
	var inErr *apperr.InputError
	assert.True(t, errors.As(err, &inErr))
}

func TestHarmonicKeepsFundamental(t *testing.T) {
	const sr = 44100
	track, err := Harmonic(NewYIN()).Estimate(sineWave(220, 0.5, sr, 0.5), sr)
	require.NoError(t, err)
	mid := track.Len() / 2
	assert.InDelta(t, 220, track.Frequencies[mid], 2.5)
}

func TestSmoothRemovesOutlierAndKeepsMask(t *testing.T) {
	nan := math.NaN()
	in := []float64{nan, 440, 440, 880, 440, 440, nan, 440}
	out := Smooth(in, 3)
	require.Len(t, out, len(in))

	assert.Equal(t, 440.0, out[3])
	for i, v := range in {
		assert.Equal(t, math.IsNaN(v), math.IsNaN(out[i]), "mask changed at %d", i)
	}
}

func TestSmoothDegenerateInput(t *testing.T) {
	assert.Empty(t, Smooth(nil, 5))

	nan := math.NaN()
	out := Smooth([]float64{nan, nan}, 5)
	require.Len(t, out, 2)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
}

func TestNoteConversions(t *testing.T) {
	tests := []struct {
		midi int
		name string
	}{
		{69, "A4"},
		{40, "E2"},
		{64, "E4"},
		{61, "C#4"},
		{60, "C4"},
		{0, "C-1"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.name, NoteName(tc.midi))
		got, err := NoteToMIDI(tc.name)
		require.NoError(t, err)
		assert.Equal(t, tc.midi, got)
	}

	assert.InDelta(t, 69.0, FrequencyToMIDI(440), 1e-9)
	assert.InDelta(t, 440.0, MIDIToFrequency(69), 1e-9)
	assert.True(t, math.IsNaN(FrequencyToMIDI(0)))

	_, err := NoteToMIDI("H2")
	assert.Error(t, err)
}
