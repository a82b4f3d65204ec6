package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-tab/fit"
	"github.com/cwbudde/algo-tab/fretboard"
	"github.com/cwbudde/algo-tab/internal/capture"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
	"github.com/cwbudde/algo-tab/internal/progress"
	"github.com/cwbudde/algo-tab/midifile"
	"github.com/cwbudde/algo-tab/preset"
	"github.com/cwbudde/algo-tab/segment"
	"github.com/cwbudde/algo-tab/tab"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe a monophonic recording to guitar tablature",
	Long: `Track the pitch of a WAV file (or a microphone recording), segment it
into notes and map them onto the fretboard. Notes can also be read from a
MIDI file, skipping pitch tracking.

Examples:
  algo-tab transcribe --input riff.wav -o riff.txt
  algo-tab transcribe -i riff.wav --auto-tune --workers auto --midi riff.mid
  algo-tab transcribe --record 10 --list-notes
  algo-tab transcribe --from-midi riff.mid -o riff.txt --max-fret 12`,
	RunE: runTranscribe,
}

var (
	trInput       string
	trRecord      float64
	trFromMIDI    string
	trOutput      string
	trMIDI        string
	trNotesJSON   string
	trTunedPreset string
	trListNotes   bool
	trAutoTune    bool
	trWorkers     string
)

func init() {
	rootCmd.AddCommand(transcribeCmd)

	f := transcribeCmd.Flags()
	f.StringVarP(&trInput, "input", "i", "", "Input WAV file")
	f.Float64Var(&trRecord, "record", 0, "Record this many seconds from the default microphone instead of --input")
	f.StringVar(&trFromMIDI, "from-midi", "", "Read notes from a MIDI file instead of audio")
	f.StringVarP(&trOutput, "output", "o", "", "Output tablature file (default: stdout)")
	f.StringVar(&trMIDI, "midi", "", "Also export the notes as a MIDI file")
	f.StringVar(&trNotesJSON, "notes-json", "", "Also write the notes as JSON")
	f.StringVar(&trTunedPreset, "tuned-preset", "", "With --auto-tune, save the tuned parameters as a preset")
	f.BoolVar(&trListNotes, "list-notes", false, "Print the detected notes")
	f.BoolVar(&trAutoTune, "auto-tune", false, "Grid-search segmentation parameters before transcribing")
	f.StringVar(&trWorkers, "workers", "1", "Parallel evaluations for --auto-tune (integer or 'auto')")
	addMaxFretFlag(transcribeCmd)
	addSegmentationFlags(transcribeCmd)
	addRateFlag(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	sources := 0
	for _, set := range []bool{trInput != "", trRecord > 0, trFromMIDI != ""} {
		if set {
			sources++
		}
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of --input, --record or --from-midi is required")
	}
	if trFromMIDI != "" && trAutoTune {
		return fmt.Errorf("--auto-tune needs audio input")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workers, err := parseWorkers(trWorkers)
	if err != nil {
		return err
	}
	rep := newReporter()

	rep.StartStage(progress.StageLoad)
	var (
		samples []float64
		notes   []segment.Note
	)
	sr := cfg.SampleRate
	if trFromMIDI != "" {
		if notes, err = midifile.ReadNotes(trFromMIDI); err != nil {
			return err
		}
		rep.StageComplete("%d notes from %s", len(notes), trFromMIDI)
	} else if trRecord > 0 {
		rep.Update("recording %.1fs at %d Hz", trRecord, sr)
		if samples, err = capture.Record(trRecord, sr); err != nil {
			return err
		}
	} else if samples, sr, err = fitcommon.LoadMono(trInput, sr); err != nil {
		return err
	}
	if trFromMIDI == "" {
		rep.StageComplete("%.2fs of audio at %d Hz", float64(len(samples))/float64(sr), sr)
	}

	ex := segment.NewExtractor()
	rep.StartStage(progress.StageTune)
	if trAutoTune {
		tc := fit.DefaultTuneConfig()
		tc.Workers = workers
		tc.Progress = rep.Verbose()
		res, err := fit.TuneSegmentation(samples, sr, ex, tc)
		if err != nil {
			return err
		}
		cfg.Segmentation = res.Params
		notes = res.Notes
		rep.StageComplete("best min_duration=%.3f min_voiced_prob=%.2f segment=%.0fs score=%.1f (%d evals)",
			res.Params.MinDuration, res.Params.MinVoicedProb, res.Params.SegmentSeconds, res.Score, res.Evaluations)
		if trTunedPreset != "" {
			if err := preset.WriteJSON(trTunedPreset, cfg); err != nil {
				return err
			}
			rep.Update("tuned preset saved to %s", trTunedPreset)
		}
	} else {
		rep.StageComplete("skipped (using configured parameters)")
	}

	rep.StartStage(progress.StageExtract)
	if !trAutoTune && trFromMIDI == "" {
		if notes, err = ex.Extract(samples, sr, cfg.Segmentation); err != nil {
			return err
		}
	}
	rep.StageComplete("%d notes", len(notes))
	if len(notes) == 0 {
		rep.Warning("no notes detected; the tablature will be empty")
	}
	if trListNotes {
		for _, n := range notes {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %-4s midi=%3d  %7.3fs - %7.3fs  (%.3fs)\n", n.Name, n.MIDI, n.Start, n.End, n.Duration)
		}
	}

	rep.StartStage(progress.StageMap)
	events := fretboard.NewMapper(cfg.MaxFret).Map(notes)
	fallbacks := 0
	for _, ev := range events {
		if ev.Fallback {
			fallbacks++
		}
	}
	if fallbacks > 0 {
		rep.Warning("%d notes are outside the fretboard and were placed on the open high E", fallbacks)
	}
	grid := fretboard.Grid(events)
	if times := fretboard.Times(events); len(times) > 0 {
		rep.StageComplete("%d columns, onsets %.3fs - %.3fs", grid.Len(), times[0], times[len(times)-1])
	} else {
		rep.StageComplete("%d columns", grid.Len())
	}

	rep.StartStage(progress.StageWrite)
	if err := writeText(trOutput, tab.Format(grid)); err != nil {
		return err
	}
	if trMIDI != "" {
		if err := midifile.WriteFile(trMIDI, notes, midifile.DefaultOptions()); err != nil {
			return err
		}
		rep.Update("MIDI saved to %s", trMIDI)
	}
	if trNotesJSON != "" {
		if err := fitcommon.WriteJSON(trNotesJSON, notes); err != nil {
			return err
		}
		rep.Update("notes saved to %s", trNotesJSON)
	}
	rep.Done("Tablature generated.", trOutput)
	return nil
}
