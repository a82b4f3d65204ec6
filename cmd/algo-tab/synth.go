package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/synth"
)

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "Render a tablature file to WAV",
	Long: `Render every played cell of a tablature file with a plucked-string
model, one column every --step seconds.

Examples:
  algo-tab synth --tabs riff.txt -o riff.wav
  algo-tab synth -t riff.txt -o preview.wav --max-seconds 10 --seed 7`,
	RunE: runSynth,
}

var (
	syTabs       string
	syOutput     string
	syMaxSeconds float64
	sySeed       int64
)

func init() {
	rootCmd.AddCommand(synthCmd)

	f := synthCmd.Flags()
	f.StringVarP(&syTabs, "tabs", "t", "", "Input tablature file")
	f.StringVarP(&syOutput, "output", "o", "", "Output WAV file")
	f.Float64Var(&syMaxSeconds, "max-seconds", 0, "Truncate the render to this length (0 = full)")
	f.Int64Var(&sySeed, "seed", 0, "Noise seed for reproducible plucks (0 = random)")
	addSynthFlags(synthCmd)
	addMaxFretFlag(synthCmd)
	addRateFlag(synthCmd)
	_ = synthCmd.MarkFlagRequired("output")
}

func runSynth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	g, err := readTabs(syTabs, cfg.MaxFret)
	if err != nil {
		return err
	}
	res, err := synth.Render(g, cfg.Synth, synth.Options{
		SampleRate: cfg.SampleRate,
		MaxSeconds: syMaxSeconds,
		Seed:       sySeed,
	})
	if err != nil {
		return err
	}
	if err := fitcommon.WriteMonoWAV(syOutput, res.Samples, res.SampleRate); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Rendered %d columns, %d plucks (highest fret %d), %.2fs -> %s\n",
		g.Len(), len(res.Plucks), g.MaxFret(), res.Duration, syOutput)
	return nil
}
