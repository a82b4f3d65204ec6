// Package preset loads and saves JSON parameter files for transcription and
// synthesis.
package preset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/cwbudde/algo-tab/fretboard"
	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/segment"
	"github.com/cwbudde/algo-tab/synth"
)

// DefaultSampleRate is the analysis and render rate when none is configured.
const DefaultSampleRate = 44100

// Config is a complete, validated parameter set.
type Config struct {
	Segmentation segment.Params
	Synth        synth.Params
	MaxFret      int
	SampleRate   int
}

// Default returns the built-in parameters.
func Default() *Config {
	return &Config{
		Segmentation: segment.DefaultParams(),
		Synth:        synth.DefaultParams(),
		MaxFret:      fretboard.DefaultMaxFret,
		SampleRate:   DefaultSampleRate,
	}
}

// File is the JSON schema for presets. Absent fields keep their defaults.
type File struct {
	Segmentation *SegmentationSetting `json:"segmentation,omitempty"`
	Synth        *SynthSetting        `json:"synth,omitempty"`
	MaxFret      *int                 `json:"max_fret,omitempty"`
	SampleRate   *int                 `json:"sample_rate,omitempty"`
}

// SegmentationSetting is a partial segment.Params override.
type SegmentationSetting struct {
	MinDuration    *float64 `json:"min_duration,omitempty"`
	MinVoicedProb  *float64 `json:"min_voiced_prob,omitempty"`
	MergeGap       *float64 `json:"merge_gap,omitempty"`
	UseHarmonic    *bool    `json:"use_harmonic,omitempty"`
	SegmentSeconds *float64 `json:"segment_seconds,omitempty"`
}

// SynthSetting is a partial synth.Params override.
type SynthSetting struct {
	StepSeconds *float64 `json:"step_seconds,omitempty"`
	NoteSeconds *float64 `json:"note_seconds,omitempty"`
	Decay       *float64 `json:"decay,omitempty"`
	Gain        *float64 `json:"gain,omitempty"`
	Transpose   *int     `json:"transpose_semitones,omitempty"`
}

// LoadJSON loads a preset JSON file and applies it on top of the defaults.
func LoadJSON(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}

	c := Default()
	if err := ApplyFile(c, &f); err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}
	return c, nil
}

// ApplyFile applies a parsed preset file onto an existing config. The result
// is validated as a whole.
func ApplyFile(dst *Config, f *File) error {
	if dst == nil {
		return fmt.Errorf("nil destination config")
	}
	if f == nil {
		return nil
	}

	if s := f.Segmentation; s != nil {
		setFloat(&dst.Segmentation.MinDuration, s.MinDuration)
		setFloat(&dst.Segmentation.MinVoicedProb, s.MinVoicedProb)
		setFloat(&dst.Segmentation.MergeGap, s.MergeGap)
		setFloat(&dst.Segmentation.SegmentSeconds, s.SegmentSeconds)
		if s.UseHarmonic != nil {
			dst.Segmentation.UseHarmonic = *s.UseHarmonic
		}
	}
	if s := f.Synth; s != nil {
		setFloat(&dst.Synth.StepSeconds, s.StepSeconds)
		setFloat(&dst.Synth.NoteSeconds, s.NoteSeconds)
		setFloat(&dst.Synth.Decay, s.Decay)
		setFloat(&dst.Synth.Gain, s.Gain)
		if s.Transpose != nil {
			dst.Synth.Transpose = *s.Transpose
		}
	}
	if f.MaxFret != nil {
		dst.MaxFret = *f.MaxFret
	}
	if f.SampleRate != nil {
		dst.SampleRate = *f.SampleRate
	}
	return dst.Validate()
}

// Validate checks every field range.
func (c *Config) Validate() error {
	if err := c.Segmentation.Validate(); err != nil {
		return fmt.Errorf("segmentation: %w", err)
	}
	if err := c.Synth.Validate(); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	if t := c.Synth.Transpose; t < -24 || t > 24 {
		return fmt.Errorf("synth: %w: transpose_semitones %d must be in [-24,24]", apperr.ErrInvalidParams, t)
	}
	if c.MaxFret < 0 || c.MaxFret > 36 {
		return fmt.Errorf("%w: max_fret %d must be in [0,36]", apperr.ErrInvalidParams, c.MaxFret)
	}
	if c.SampleRate < 8000 || c.SampleRate > 192000 {
		return fmt.Errorf("%w: sample_rate %d must be in [8000,192000]", apperr.ErrInvalidParams, c.SampleRate)
	}
	return nil
}

// ToFile converts a config into a fully populated preset file.
func (c *Config) ToFile() *File {
	seg, syn := c.Segmentation, c.Synth
	maxFret, rate := c.MaxFret, c.SampleRate
	return &File{
		Segmentation: &SegmentationSetting{
			MinDuration:    &seg.MinDuration,
			MinVoicedProb:  &seg.MinVoicedProb,
			MergeGap:       &seg.MergeGap,
			UseHarmonic:    &seg.UseHarmonic,
			SegmentSeconds: &seg.SegmentSeconds,
		},
		Synth: &SynthSetting{
			StepSeconds: &syn.StepSeconds,
			NoteSeconds: &syn.NoteSeconds,
			Decay:       &syn.Decay,
			Gain:        &syn.Gain,
			Transpose:   &syn.Transpose,
		},
		MaxFret:    &maxFret,
		SampleRate: &rate,
	}
}

// WriteJSON saves c as a preset file that LoadJSON reads back unchanged.
func WriteJSON(path string, c *Config) error {
	if c == nil {
		return fmt.Errorf("nil config")
	}
	if err := c.Validate(); err != nil {
		return err
	}
	return fitcommon.WriteJSON(path, c.ToFile())
}

func setFloat(dst *float64, v *float64) {
	if v != nil && !math.IsNaN(*v) {
		*dst = *v
	}
}
