package fit

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/segment"
)

// TuneConfig configures TuneSegmentation.
type TuneConfig struct {
	MinDurations   []float64
	MinVoicedProbs []float64
	SegmentSeconds []float64

	MergeGap    float64
	UseHarmonic bool

	// PreviewSeconds bounds the audio the grid is scored on.
	PreviewSeconds float64

	// Notes per second above DensityCeiling are penalized by DensityPenalty
	// per unit of excess.
	DensityCeiling float64
	DensityPenalty float64

	Workers  int
	TopK     int
	Progress io.Writer
}

// DefaultTuneConfig returns the tuning grid used by the CLI.
func DefaultTuneConfig() TuneConfig {
	return TuneConfig{
		MinDurations:   []float64{0.02, 0.03, 0.04},
		MinVoicedProbs: []float64{0.15, 0.20, 0.25},
		SegmentSeconds: []float64{6, 8, 10},
		MergeGap:       0.03,
		UseHarmonic:    true,
		PreviewSeconds: 45,
		DensityCeiling: 2,
		DensityPenalty: 120,
		Workers:        1,
		TopK:           5,
	}
}

// TuneResult is the outcome of a segmentation search.
type TuneResult struct {
	RunID       string         `json:"run_id"`
	Params      segment.Params `json:"params"`
	Score       float64        `json:"score"`
	NoteCount   int            `json:"preview_note_count"`
	Evaluations int            `json:"evaluations"`
	Failed      int            `json:"failed"`
	Elapsed     float64        `json:"elapsed_sec"`
	Top         []TopCandidate `json:"top_candidates"`

	// Notes are the winner's notes over the full input.
	Notes []segment.Note `json:"-"`
}

func (c TuneConfig) axes() []Axis {
	return []Axis{
		{Name: "min_duration", Values: c.MinDurations},
		{Name: "min_voiced_prob", Values: c.MinVoicedProbs},
		{Name: "segment_seconds", Values: c.SegmentSeconds},
	}
}

func (c TuneConfig) params(point []float64) segment.Params {
	return segment.Params{
		MinDuration:    point[0],
		MinVoicedProb:  point[1],
		SegmentSeconds: point[2],
		MergeGap:       c.MergeGap,
		UseHarmonic:    c.UseHarmonic,
	}
}

// DensityScore rewards note count and penalizes density above the ceiling.
func DensityScore(count int, previewSeconds, ceiling, penalty float64) float64 {
	density := float64(count) / math.Max(previewSeconds, 1e-6)
	return float64(count) - math.Max(0, density-ceiling)*penalty
}

// TuneSegmentation grid-searches segmentation parameters on a preview of
// samples, then re-runs the winning parameters over the whole input.
func TuneSegmentation(samples []float64, sampleRate int, ex *segment.Extractor, cfg TuneConfig) (*TuneResult, error) {
	if len(samples) == 0 {
		return nil, apperr.Input("tune", apperr.ErrEmptyAudio)
	}
	if sampleRate <= 0 {
		return nil, apperr.Input("tune", fmt.Errorf("%w: sample rate %d", apperr.ErrInvalidParams, sampleRate))
	}
	if ex == nil {
		ex = segment.NewExtractor()
	}
	started := time.Now()

	preview := samples
	if cfg.PreviewSeconds > 0 {
		preview = fitcommon.Preview(samples, sampleRate, cfg.PreviewSeconds)
	}
	previewSeconds := float64(len(preview)) / float64(sampleRate)

	// The pitch track depends only on the chunk length, so it is computed
	// once per distinct value before the grid runs.
	tracks := make(map[float64][]segment.Chunk, len(cfg.SegmentSeconds))
	for _, seg := range cfg.SegmentSeconds {
		if _, ok := tracks[seg]; ok {
			continue
		}
		chunks, err := ex.Tracks(preview, sampleRate, seg, cfg.UseHarmonic)
		if err != nil {
			return nil, fmt.Errorf("tune: pitch tracks for segment %.1fs: %w", seg, err)
		}
		tracks[seg] = chunks
	}

	axes := cfg.axes()
	points := Product(axes)
	if cfg.Progress != nil {
		fmt.Fprintf(cfg.Progress, "Tuning segmentation: %d candidates on %.1fs preview\n", len(points), previewSeconds)
	}
	search, err := Search(points, SearchOptions{
		Workers:  cfg.Workers,
		Axes:     axes,
		TopK:     cfg.TopK,
		Progress: cfg.Progress,
		Label:    "tune",
	}, func(point []float64) (float64, int, error) {
		p := cfg.params(point)
		if err := p.Validate(); err != nil {
			return 0, 0, err
		}
		count := len(segment.Notes(tracks[p.SegmentSeconds], p))
		return DensityScore(count, previewSeconds, cfg.DensityCeiling, cfg.DensityPenalty), count, nil
	})
	if err != nil {
		return nil, fmt.Errorf("tune: %w", err)
	}

	best := cfg.params(search.Best.Point)
	notes, err := ex.Extract(samples, sampleRate, best)
	if err != nil {
		return nil, fmt.Errorf("tune: final extraction: %w", err)
	}
	return &TuneResult{
		RunID:       uuid.NewString(),
		Params:      best,
		Score:       search.Best.Score,
		NoteCount:   search.Best.Artifact,
		Evaluations: search.Evaluations,
		Failed:      search.Failed,
		Elapsed:     time.Since(started).Seconds(),
		Top:         search.Top,
		Notes:       notes,
	}, nil
}
