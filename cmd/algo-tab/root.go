package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-tab/fretboard"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/internal/progress"
	"github.com/cwbudde/algo-tab/preset"
	"github.com/cwbudde/algo-tab/segment"
	"github.com/cwbudde/algo-tab/synth"
	"github.com/cwbudde/algo-tab/tab"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "algo-tab",
	Short: "Transcribe monophonic guitar audio to tablature and back",
	Long: `algo-tab tracks the pitch of a monophonic recording, segments it into
notes and lays them out as six-string guitar tablature. Tablature can be
rendered back to audio with a plucked-string model, and the render can be
fitted to a reference recording.

Pipeline: audio → pitch track → notes → fretboard → tablature`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	presetPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&presetPath, "preset", "", "Preset JSON with segmentation/synth defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose progress output")
}

func newReporter() *progress.Reporter {
	return progress.NewReporter(os.Stderr, verbose)
}

// loadConfig reads --preset (or the built-in defaults) and applies every
// flag the user set explicitly on top of it.
func loadConfig(cmd *cobra.Command) (*preset.Config, error) {
	cfg := preset.Default()
	if presetPath != "" {
		var err error
		if cfg, err = preset.LoadJSON(presetPath); err != nil {
			return nil, err
		}
	}
	flags := cmd.Flags()
	setF := func(name string, dst *float64) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetFloat64(name)
		}
	}
	setI := func(name string, dst *int) {
		if flags.Lookup(name) != nil && flags.Changed(name) {
			*dst, _ = flags.GetInt(name)
		}
	}
	setF("min-duration", &cfg.Segmentation.MinDuration)
	setF("min-voiced-prob", &cfg.Segmentation.MinVoicedProb)
	setF("merge-gap", &cfg.Segmentation.MergeGap)
	setF("segment-seconds", &cfg.Segmentation.SegmentSeconds)
	if flags.Lookup("harmonic") != nil && flags.Changed("harmonic") {
		cfg.Segmentation.UseHarmonic, _ = flags.GetBool("harmonic")
	}
	setF("step", &cfg.Synth.StepSeconds)
	setF("note-seconds", &cfg.Synth.NoteSeconds)
	setF("decay", &cfg.Synth.Decay)
	setF("gain", &cfg.Synth.Gain)
	setI("transpose", &cfg.Synth.Transpose)
	setI("max-fret", &cfg.MaxFret)
	setI("sample-rate", &cfg.SampleRate)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func addSegmentationFlags(cmd *cobra.Command) {
	d := segment.DefaultParams()
	cmd.Flags().Float64("min-duration", d.MinDuration, "Minimum note duration in seconds")
	cmd.Flags().Float64("min-voiced-prob", d.MinVoicedProb, "Frames below this voicing probability are silent")
	cmd.Flags().Float64("merge-gap", d.MergeGap, "Merge same-pitch notes separated by at most this gap")
	cmd.Flags().Float64("segment-seconds", d.SegmentSeconds, "Analyse the input in independent chunks (0 = whole)")
	cmd.Flags().Bool("harmonic", d.UseHarmonic, "Low-pass the input before pitch tracking")
}

func addSynthFlags(cmd *cobra.Command) {
	d := synth.DefaultParams()
	cmd.Flags().Float64("step", d.StepSeconds, "Seconds per tablature column")
	cmd.Flags().Float64("note-seconds", d.NoteSeconds, "Length of each pluck in seconds")
	cmd.Flags().Float64("decay", d.Decay, "String feedback decay in (0,1)")
	cmd.Flags().Float64("gain", d.Gain, "Per-pluck mix gain")
	cmd.Flags().Int("transpose", d.Transpose, "Transpose in semitones")
}

func addMaxFretFlag(cmd *cobra.Command) {
	cmd.Flags().Int("max-fret", fretboard.DefaultMaxFret, "Highest usable fret")
}

func addRateFlag(cmd *cobra.Command) {
	cmd.Flags().Int("sample-rate", preset.DefaultSampleRate, "Sample rate in Hz")
}

// readTabs parses a tablature file and rejects frets beyond maxFret.
func readTabs(path string, maxFret int) (tab.Grid, error) {
	if path == "" {
		return tab.Grid{}, fmt.Errorf("--tabs is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return tab.Grid{}, err
	}
	g, err := tab.Parse(string(b))
	if err != nil {
		return tab.Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := g.Validate(maxFret); err != nil {
		return tab.Grid{}, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

func writeText(path, text string) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(os.Stdout, text)
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func parseWorkers(raw string) (int, error) {
	n, err := fitcommon.ParseWorkers(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid --workers %s", strings.TrimSpace(err.Error()))
	}
	return n, nil
}
