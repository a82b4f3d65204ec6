package segment

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tab/dsp"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/pitch"
)

// Chunk is the smoothed frame analysis of one contiguous span of input.
// Frame times are absolute.
type Chunk struct {
	Offset float64
	Frames []Frame
}

// Extractor runs a pitch oracle, smooths its track and segments the result.
type Extractor struct {
	Oracle pitch.Oracle
	// SmoothKernel is the median kernel applied to each track (default 5).
	SmoothKernel int
}

// NewExtractor returns an extractor over the default YIN oracle.
func NewExtractor() *Extractor {
	return &Extractor{Oracle: pitch.NewYIN(), SmoothKernel: 5}
}

// Tracks analyses samples either whole (segmentSeconds <= 0) or in
// independent chunks of segmentSeconds. A chunk boundary can split a note;
// the pieces are not rejoined.
func (e *Extractor) Tracks(samples []float64, sampleRate int, segmentSeconds float64, useHarmonic bool) ([]Chunk, error) {
	if len(samples) == 0 {
		return nil, apperr.Input("segment", apperr.ErrEmptyAudio)
	}
	if sampleRate <= 0 {
		return nil, apperr.Input("segment", fmt.Errorf("%w: sample rate %d", apperr.ErrInvalidParams, sampleRate))
	}
	oracle := e.Oracle
	if oracle == nil {
		oracle = pitch.NewYIN()
	}
	if useHarmonic {
		oracle = pitch.Harmonic(oracle)
	}

	chunkLen := len(samples)
	if segmentSeconds > 0 {
		chunkLen = int(segmentSeconds * float64(sampleRate))
		if chunkLen < 1 {
			chunkLen = 1
		}
	}

	var chunks []Chunk
	for start := 0; start < len(samples); start += chunkLen {
		end := start + chunkLen
		if end > len(samples) {
			end = len(samples)
		}
		track, err := oracle.Estimate(samples[start:end], sampleRate)
		if err != nil {
			return nil, fmt.Errorf("pitch estimate at sample %d: %w", start, err)
		}
		offset := float64(start) / float64(sampleRate)
		chunks = append(chunks, Chunk{Offset: offset, Frames: e.frames(track, offset)})
	}
	return chunks, nil
}

func (e *Extractor) frames(track pitch.Track, offset float64) []Frame {
	freqs := pitch.Smooth(track.Frequencies, e.SmoothKernel)
	frames := make([]Frame, len(freqs))
	for i, f := range freqs {
		// A missing probability counts as fully voiced.
		prob := 1.0
		if i < len(track.VoicedProb) {
			prob = track.VoicedProb[i]
		}
		frames[i] = Frame{Time: offset + track.FrameTime(i), Frequency: f, VoicedProb: prob}
	}
	return frames
}

// Notes segments pre-computed chunks: each chunk is segmented and merged on
// its own and the results are concatenated.
func Notes(chunks []Chunk, p Params) []Note {
	var out []Note
	for _, c := range chunks {
		notes := Segment(c.Frames, p.MinDuration, p.MinVoicedProb)
		out = append(out, MergeAdjacent(notes, p.MergeGap)...)
	}
	return out
}

// Extract runs the full pipeline with p.
func (e *Extractor) Extract(samples []float64, sampleRate int, p Params) ([]Note, error) {
	if err := p.Validate(); err != nil {
		return nil, apperr.Input("segment", err)
	}
	chunks, err := e.Tracks(samples, sampleRate, p.SegmentSeconds, p.UseHarmonic)
	if err != nil {
		return nil, err
	}
	return Notes(chunks, p), nil
}

// SelfTestResult reports a synthetic-sine extraction check.
type SelfTestResult struct {
	Frequency     float64 `json:"frequency"`
	ExpectedNote  string  `json:"expected_note"`
	DetectedNote  string  `json:"detected_note"`
	DetectedCount int     `json:"detected_count"`
	Success       bool    `json:"success"`
}

// SineSelfTest extracts notes from a 0.5 amplitude sine with default
// parameters and checks the first note matches the nearest tempered pitch.
func (e *Extractor) SineSelfTest(freq, seconds float64, sampleRate int) (SelfTestResult, error) {
	res := SelfTestResult{Frequency: freq}
	midi := pitch.FrequencyToMIDI(freq)
	if math.IsNaN(midi) || seconds <= 0 {
		return res, apperr.Input("selftest", fmt.Errorf("%w: freq %.2f seconds %.2f", apperr.ErrInvalidParams, freq, seconds))
	}
	res.ExpectedNote = pitch.NoteName(int(math.Round(midi)))

	samples := dsp.Sine(freq, 0.5, seconds, sampleRate)
	notes, err := e.Extract(samples, sampleRate, DefaultParams())
	if err != nil {
		return res, err
	}
	res.DetectedCount = len(notes)
	if len(notes) > 0 {
		res.DetectedNote = notes[0].Name
	}
	res.Success = res.DetectedNote == res.ExpectedNote
	return res, nil
}
