package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-tab/fit"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/internal/progress"
	"github.com/cwbudde/algo-tab/preset"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Fit synthesis parameters so a tablature render matches a recording",
	Long: `Grid-search step, note length, decay, gain and transposition so the
render of a tablature file is most similar to a reference recording, then
refine around the winner. An optional Mayfly stage polishes the result.

Examples:
  algo-tab match --tabs riff.txt --reference riff.wav -o fitted.wav
  algo-tab match -t riff.txt -r riff.wav --workers auto --report fit.json --preset-out fitted.json
  algo-tab match -t riff.txt -r riff.wav --mayfly-evals 300 --mayfly-variant desma`,
	RunE: runMatch,
}

var (
	maTabs          string
	maReference     string
	maOutput        string
	maReport        string
	maPresetOut     string
	maWorkers       string
	maTopK          int
	maSeed          int64
	maPreview       float64
	maMayflyEvals   int
	maMayflyVariant string
	maMayflyPop     int
)

type matchReport struct {
	TabsPath      string `json:"tabs_path"`
	ReferencePath string `json:"reference_path"`
	OutputPath    string `json:"output_path,omitempty"`
	*fit.MatchResult
}

func init() {
	rootCmd.AddCommand(matchCmd)

	d := fit.DefaultMatchConfig()
	f := matchCmd.Flags()
	f.StringVarP(&maTabs, "tabs", "t", "", "Input tablature file")
	f.StringVarP(&maReference, "reference", "r", "", "Reference WAV file")
	f.StringVarP(&maOutput, "output", "o", "", "Write the best render to this WAV file")
	f.StringVar(&maReport, "report", "", "Write a JSON report of the search")
	f.StringVar(&maPresetOut, "preset-out", "", "Save the fitted synth parameters as a preset")
	f.StringVar(&maWorkers, "workers", "1", "Parallel evaluations (integer or 'auto')")
	f.IntVar(&maTopK, "top-k", d.TopK, "Number of best candidates kept in the report")
	f.Int64Var(&maSeed, "seed", d.Seed, "Noise seed shared by every candidate render")
	f.Float64Var(&maPreview, "preview-seconds", d.PreviewSeconds, "Score candidates on this much of the reference")
	f.IntVar(&maMayflyEvals, "mayfly-evals", 0, "Evaluation budget of the Mayfly polish stage (0 = off)")
	f.StringVar(&maMayflyVariant, "mayfly-variant", d.MayflyVariant, "Mayfly variant: ma|desma|olce|eobbma|gsasma|mpma|aoblmoa")
	f.IntVar(&maMayflyPop, "mayfly-pop", d.MayflyPop, "Mayfly population size")
	addMaxFretFlag(matchCmd)
	addRateFlag(matchCmd)
}

func runMatch(cmd *cobra.Command, args []string) error {
	if maReference == "" {
		return fmt.Errorf("--reference is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workers, err := parseWorkers(maWorkers)
	if err != nil {
		return err
	}
	g, err := readTabs(maTabs, cfg.MaxFret)
	if err != nil {
		return err
	}
	ref, refRate, err := fitcommon.ReadWAVMono(maReference)
	if err != nil {
		return err
	}
	rep := newReporter()

	mc := fit.DefaultMatchConfig()
	mc.TargetRate = cfg.SampleRate
	mc.PreviewSeconds = maPreview
	mc.Workers = workers
	mc.TopK = maTopK
	mc.Seed = maSeed
	mc.MayflyEvals = maMayflyEvals
	mc.MayflyVariant = maMayflyVariant
	mc.MayflyPop = maMayflyPop
	mc.Progress = rep.Verbose()

	rep.StartStage(progress.StageMatch)
	res, err := fit.MatchSynth(g, ref, refRate, mc)
	if err != nil {
		return err
	}
	p := res.Params
	rep.StageComplete("score=%.4f (chroma %.3f, onset %.3f) from %s stage, %d evals in %.1fs",
		res.Score, res.Metrics.ChromaSimilarity, res.Metrics.OnsetSimilarity, res.Stage, res.Evaluations, res.Elapsed)
	rep.StageComplete("step=%.3f note=%.3f decay=%.4f gain=%.2f transpose=%+d",
		p.StepSeconds, p.NoteSeconds, p.Decay, p.Gain, p.Transpose)
	if res.Failed > 0 {
		rep.Warning("%d candidate evaluations failed", res.Failed)
	}

	rep.StartStage(progress.StageMatchOut)
	if maOutput != "" {
		if err := fitcommon.WriteMonoWAV(maOutput, res.Render.Samples, res.Render.SampleRate); err != nil {
			return err
		}
	}
	if maPresetOut != "" {
		cfg.Synth = res.Params
		if err := preset.WriteJSON(maPresetOut, cfg); err != nil {
			return err
		}
		rep.Update("preset saved to %s", maPresetOut)
	}
	if maReport != "" {
		report := matchReport{TabsPath: maTabs, ReferencePath: maReference, OutputPath: maOutput, MatchResult: res}
		if err := fitcommon.WriteJSON(maReport, report); err != nil {
			return err
		}
		rep.Update("report saved to %s", maReport)
	}
	rep.Done("Synthesis parameters fitted.", maOutput)
	return nil
}
