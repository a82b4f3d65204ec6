// Package progress prints staged CLI progress.
package progress

import (
	"fmt"
	"io"
	"time"
)

// Stage is one step of a command pipeline.
type Stage struct {
	Number      int
	Total       int
	Name        string
	Description string
}

// Transcription stages.
var (
	StageLoad     = Stage{1, 5, "load", "Loading audio..."}
	StageTune     = Stage{2, 5, "tune", "Tuning segmentation..."}
	StageExtract  = Stage{3, 5, "extract", "Tracking pitch and segmenting notes..."}
	StageMap      = Stage{4, 5, "map", "Mapping notes to the fretboard..."}
	StageWrite    = Stage{5, 5, "write", "Writing tablature..."}
	StageMatch    = Stage{1, 2, "match", "Searching synthesis parameters... (this may take a moment)"}
	StageMatchOut = Stage{2, 2, "write", "Rendering the best candidate..."}
)

// Reporter handles CLI progress output.
type Reporter struct {
	out       io.Writer
	startTime time.Time
	verbose   bool
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, verbose bool) *Reporter {
	return &Reporter{
		out:       out,
		startTime: time.Now(),
		verbose:   verbose,
	}
}

// StartStage announces the beginning of a stage.
func (r *Reporter) StartStage(stage Stage) {
	fmt.Fprintf(r.out, "[%d/%d] %s\n", stage.Number, stage.Total, stage.Description)
}

// Update shows a sub-progress message, only in verbose mode.
func (r *Reporter) Update(format string, args ...any) {
	if r.verbose {
		fmt.Fprintf(r.out, "       %s\n", fmt.Sprintf(format, args...))
	}
}

// StageComplete shows the result of a stage.
func (r *Reporter) StageComplete(format string, args ...any) {
	fmt.Fprintf(r.out, "       %s\n", fmt.Sprintf(format, args...))
}

// Verbose returns the underlying writer in verbose mode and nil otherwise,
// for library progress sinks.
func (r *Reporter) Verbose() io.Writer {
	if r.verbose {
		return r.out
	}
	return nil
}

// Done announces successful completion.
func (r *Reporter) Done(what string, outputPath string) {
	elapsed := time.Since(r.startTime)
	fmt.Fprintf(r.out, "Done! %s\n", what)
	if outputPath != "" {
		fmt.Fprintf(r.out, "Output saved to: %s\n", outputPath)
	}
	fmt.Fprintf(r.out, "Completed in %.1f seconds\n", elapsed.Seconds())
}

// Error announces an error.
func (r *Reporter) Error(err error) {
	fmt.Fprintf(r.out, "Error: %s\n", err)
}

// Warning announces a non-fatal warning.
func (r *Reporter) Warning(format string, args ...any) {
	fmt.Fprintf(r.out, "Warning: %s\n", fmt.Sprintf(format, args...))
}
