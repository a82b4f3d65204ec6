package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayLineReadsOldestAndNext(t *testing.T) {
	d := NewDelayLine(4)
	d.Fill(func(i int) float64 { return float64(i + 1) })

	// Oldest sample is the first written.
	assert.Equal(t, 1.0, d.Read(d.Size()))
	assert.Equal(t, 2.0, d.Read(d.Size()-1))

	d.Write(9)
	assert.Equal(t, 2.0, d.Read(d.Size()))
	assert.Equal(t, 9.0, d.Read(1))
}

func TestMedianZeroPadsEdges(t *testing.T) {
	x := []float64{5, 5, 5, 5, 5}
	got := Median(x, 5)
	require.Len(t, got, len(x))
	for i, v := range got {
		assert.Equal(t, 5.0, v, "index %d", i)
	}

	spike := []float64{1, 1, 100, 1, 1, 1}
	got = Median(spike, 3)
	assert.Equal(t, 1.0, got[2], "isolated spike must be removed")
}

func TestMedianWidensEvenKernel(t *testing.T) {
	x := []float64{3, 1, 2}
	assert.Equal(t, Median(x, 3), Median(x, 2))
}

func TestLowpassAttenuatesHighFrequency(t *testing.T) {
	const sr = 44100.0
	lowTone := sine(sr, 100, 4096)
	highTone := sine(sr, 10000, 4096)

	lowOut := NewLowpass(1000, sr, 0.707).ProcessBuffer(lowTone)
	highOut := NewLowpass(1000, sr, 0.707).ProcessBuffer(highTone)

	assert.Greater(t, rms(lowOut[1024:]), 0.6)
	assert.Less(t, rms(highOut[1024:]), 0.05)
}

func TestPeakAbs(t *testing.T) {
	assert.Equal(t, 3.0, PeakAbs([]float64{0.5, -3, 2}))
	assert.Zero(t, PeakAbs(nil))
}

func sine(sr, freq float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / sr)
	}
	return out
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}
