package dsp

import (
	"math"
	"sort"

	dspcore "github.com/cwbudde/algo-dsp/dsp/core"
)

// Biquad implements a second-order IIR filter (no heap allocations in Process)
type Biquad struct {
	// Coefficients
	b0, b1, b2 float64
	a1, a2     float64

	// State (previous samples)
	x1, x2 float64 // input history
	y1, y2 float64 // output history
}

// NewBiquad creates a new biquad filter with the given coefficients
func NewBiquad(b0, b1, b2, a1, a2 float64) *Biquad {
	return &Biquad{
		b0: b0,
		b1: b1,
		b2: b2,
		a1: a1,
		a2: a2,
	}
}

// Process processes one sample through the biquad filter
func (b *Biquad) Process(input float64) float64 {
	// Direct Form I implementation
	output := b.b0*input + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	output = dspcore.FlushDenormals(output)

	b.x2 = b.x1
	b.x1 = input
	b.y2 = b.y1
	b.y1 = output

	return output
}

// ProcessBuffer filters a whole buffer into a new slice.
func (b *Biquad) ProcessBuffer(in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = b.Process(v)
	}
	return out
}

// NewLowpass creates a simple lowpass biquad filter
func NewLowpass(cutoff, sampleRate, q float64) *Biquad {
	w0 := 2.0 * math.Pi * cutoff / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	b0 := (1.0 - cosw0) / 2.0
	b1 := 1.0 - cosw0
	b2 := (1.0 - cosw0) / 2.0
	a0 := 1.0 + alpha
	a1 := -2.0 * cosw0
	a2 := 1.0 - alpha

	// Normalize by a0
	return NewBiquad(b0/a0, b1/a0, b2/a0, a1/a0, a2/a0)
}

// DelayLine implements a circular buffer for delay
type DelayLine struct {
	buffer   []float64
	writePos int
	size     int
}

// NewDelayLine creates a new delay line with the given size
func NewDelayLine(size int) *DelayLine {
	if size < 1 {
		size = 1
	}
	return &DelayLine{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Size returns the delay line length in samples.
func (d *DelayLine) Size() int {
	return d.size
}

// Write writes a sample to the delay line
func (d *DelayLine) Write(sample float64) {
	d.buffer[d.writePos] = sample
	d.writePos = (d.writePos + 1) % d.size
}

// Read reads a sample from the delay line at the given delay (in samples).
// Read(Size()) is the oldest sample, the one the next Write overwrites.
func (d *DelayLine) Read(delay int) float64 {
	readPos := ((d.writePos-delay)%d.size + d.size) % d.size
	return d.buffer[readPos]
}

// Fill overwrites the whole line, oldest sample first.
func (d *DelayLine) Fill(gen func(i int) float64) {
	for i := 0; i < d.size; i++ {
		d.Write(gen(i))
	}
}

// Median applies a sliding median of odd length kernel, treating samples
// beyond either edge as zero. Even kernels are widened by one.
func Median(x []float64, kernel int) []float64 {
	if kernel < 1 {
		kernel = 1
	}
	if kernel%2 == 0 {
		kernel++
	}
	half := kernel / 2
	out := make([]float64, len(x))
	win := make([]float64, kernel)
	for i := range x {
		for k := 0; k < kernel; k++ {
			j := i - half + k
			if j < 0 || j >= len(x) {
				win[k] = 0
				continue
			}
			win[k] = x[j]
		}
		sort.Float64s(win)
		out[i] = win[half]
	}
	return out
}

// PeakAbs returns the largest absolute sample value.
func PeakAbs(x []float64) float64 {
	var peak float64
	for _, v := range x {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// Sine renders amp*sin(2*pi*freq*t) for the given duration.
func Sine(freq, amp, seconds float64, sampleRate int) []float64 {
	n := int(seconds * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}
