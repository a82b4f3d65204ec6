package main

import (
	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/refine"
	"github.com/cwbudde/algo-tab/synth"
	"github.com/cwbudde/algo-tab/tab"
)

var refineCmd = &cobra.Command{
	Use:   "refine",
	Short: "Correct tablature frets against the pitch of a recording",
	Long: `Compare each tablature column with the pitch heard at its time in the
reference and move frets that are off by a semitone or more.

Example:
  algo-tab refine --tabs riff.txt --reference riff.wav --step 0.14 -o fixed.txt`,
	RunE: runRefine,
}

var (
	rfTabs      string
	rfReference string
	rfOutput    string
	rfReport    string
)

func init() {
	rootCmd.AddCommand(refineCmd)

	f := refineCmd.Flags()
	f.StringVarP(&rfTabs, "tabs", "t", "", "Input tablature file")
	f.StringVarP(&rfReference, "reference", "r", "", "Reference WAV file")
	f.StringVarP(&rfOutput, "output", "o", "", "Output tablature file (default: stdout)")
	f.StringVar(&rfReport, "report", "", "Write the list of changes as JSON")
	addMaxFretFlag(refineCmd)
	f.Float64("step", synth.DefaultParams().StepSeconds, "Seconds per tablature column")
	_ = refineCmd.MarkFlagRequired("reference")
}

func runRefine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	g, err := readTabs(rfTabs, cfg.MaxFret)
	if err != nil {
		return err
	}
	ref, refRate, err := fitcommon.ReadWAVMono(rfReference)
	if err != nil {
		return err
	}
	res, err := refine.Refine(g, ref, refRate, refine.Config{
		StepSeconds: cfg.Synth.StepSeconds,
		MaxFret:     cfg.MaxFret,
	})
	if err != nil {
		return err
	}
	if err := writeText(rfOutput, tab.Format(res.Grid)); err != nil {
		return err
	}
	if rfReport != "" {
		if err := fitcommon.WriteJSON(rfReport, res); err != nil {
			return err
		}
	}
	rep := newReporter()
	rep.StageComplete("%d cells changed (step %.3fs)", res.Count(), res.StepSeconds)
	return nil
}
