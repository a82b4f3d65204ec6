// Package segment turns framewise pitch estimates into discrete notes.
package segment

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/pitch"
)

// Note is a detected pitch event. Frequency is the estimate of the note's
// first frame.
type Note struct {
	Name      string  `json:"note"`
	MIDI      int     `json:"midi"`
	Frequency float64 `json:"frequency"`
	Start     float64 `json:"start_time"`
	End       float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
}

// Frame is one analysis frame of a pitch track.
type Frame struct {
	Time       float64
	Frequency  float64
	VoicedProb float64
}

// Params controls segmentation.
type Params struct {
	MinDuration   float64 `json:"min_duration"`
	MinVoicedProb float64 `json:"min_voiced_prob"`
	MergeGap      float64 `json:"merge_gap"`
	UseHarmonic   bool    `json:"use_harmonic"`
	// SegmentSeconds > 0 analyses the input in independent chunks.
	SegmentSeconds float64 `json:"segment_seconds"`
}

// DefaultParams returns the segmentation defaults.
func DefaultParams() Params {
	return Params{
		MinDuration:   0.1,
		MinVoicedProb: 0.75,
		MergeGap:      0.05,
	}
}

// Validate rejects parameters outside their meaningful range.
func (p Params) Validate() error {
	switch {
	case p.MinDuration < 0 || math.IsNaN(p.MinDuration):
		return fmt.Errorf("%w: min_duration %.3f", apperr.ErrInvalidParams, p.MinDuration)
	case p.MinVoicedProb < 0 || p.MinVoicedProb > 1 || math.IsNaN(p.MinVoicedProb):
		return fmt.Errorf("%w: min_voiced_prob %.3f", apperr.ErrInvalidParams, p.MinVoicedProb)
	case p.MergeGap < 0 || math.IsNaN(p.MergeGap):
		return fmt.Errorf("%w: merge_gap %.3f", apperr.ErrInvalidParams, p.MergeGap)
	case p.SegmentSeconds < 0 || math.IsNaN(p.SegmentSeconds):
		return fmt.Errorf("%w: segment_seconds %.3f", apperr.ErrInvalidParams, p.SegmentSeconds)
	}
	return nil
}

// Label returns the rounded MIDI number of a frame, or false when the frame
// is unvoiced or below the voicing threshold.
func Label(f Frame, minVoicedProb float64) (int, bool) {
	if f.VoicedProb < minVoicedProb {
		return 0, false
	}
	m := pitch.FrequencyToMIDI(f.Frequency)
	if math.IsNaN(m) {
		return 0, false
	}
	return int(math.Round(m)), true
}

// MergeAdjacent fuses consecutive notes of the same name whose gap is at
// most gap seconds. Applying it to its own output is a no-op.
func MergeAdjacent(notes []Note, gap float64) []Note {
	if len(notes) == 0 {
		return notes
	}
	merged := []Note{notes[0]}
	for _, n := range notes[1:] {
		last := &merged[len(merged)-1]
		if n.Name == last.Name && n.Start-last.End <= gap {
			last.End = n.End
			last.Duration = last.End - last.Start
			continue
		}
		merged = append(merged, n)
	}
	return merged
}
