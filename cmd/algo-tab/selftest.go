package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/algo-tab/pitch"
	"github.com/cwbudde/algo-tab/segment"
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Transcribe a synthetic sine and check the detected note",
	RunE:  runSelftest,
}

var (
	stFreq    float64
	stNote    string
	stSeconds float64
	stRate    int
	stJSON    bool
)

func init() {
	rootCmd.AddCommand(selftestCmd)

	f := selftestCmd.Flags()
	f.Float64Var(&stFreq, "freq", 440, "Sine frequency in Hz")
	f.StringVar(&stNote, "note", "", "Sine pitch as a note name such as A3 or C#5 (overrides --freq)")
	f.Float64Var(&stSeconds, "seconds", 1, "Sine length in seconds")
	f.IntVar(&stRate, "sample-rate", 44100, "Sample rate in Hz")
	f.BoolVar(&stJSON, "json", false, "Print the result as JSON")
}

func runSelftest(cmd *cobra.Command, args []string) error {
	freq := stFreq
	if stNote != "" {
		midi, err := pitch.NoteToMIDI(stNote)
		if err != nil {
			return err
		}
		freq = pitch.MIDIToFrequency(float64(midi))
	}
	res, err := segment.NewExtractor().SineSelfTest(freq, stSeconds, stRate)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if stJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Frequency:      %.2f Hz\n", res.Frequency)
		fmt.Fprintf(out, "Expected note:  %s\n", res.ExpectedNote)
		fmt.Fprintf(out, "Detected note:  %s\n", res.DetectedNote)
		fmt.Fprintf(out, "Detected notes: %d\n", res.DetectedCount)
	}
	if !res.Success {
		return fmt.Errorf("self-test failed: expected %s, detected %q", res.ExpectedNote, res.DetectedNote)
	}
	if !stJSON {
		fmt.Fprintln(out, "Self-test passed.")
	}
	return nil
}
