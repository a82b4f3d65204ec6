// Package fit runs the exhaustive parameter searches: segmentation tuning
// against a note-density prior and synthesis matching against a reference
// recording.
package fit

import (
	"fmt"
	"io"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/cwbudde/algo-tab/internal/apperr"
)

// Candidate is one evaluated point. Eval numbers candidates in enumeration
// order starting at 1.
type Candidate[T any] struct {
	Eval     int
	Point    []float64
	Score    float64
	Artifact T
}

// Objective scores a point; higher is better.
type Objective[T any] func(point []float64) (float64, T, error)

// TopCandidate is a report entry.
type TopCandidate struct {
	Eval  int                `json:"eval"`
	Score float64            `json:"score"`
	Knobs map[string]float64 `json:"knobs"`
}

// SearchOptions configures Search.
type SearchOptions struct {
	// Workers is the evaluation pool size: 1 is serial, 0 uses GOMAXPROCS.
	Workers int
	// Axes name the point coordinates in top-candidate entries.
	Axes []Axis
	// TopK bounds the retained top list.
	TopK int
	// EvalOffset shifts eval numbers so several passes share one sequence.
	EvalOffset int
	// Progress receives improvement and progress lines when set.
	Progress    io.Writer
	ReportEvery int
	Label       string
}

// SearchResult is the outcome of one exhaustive pass.
type SearchResult[T any] struct {
	Best        Candidate[T]
	Evaluations int
	Failed      int
	Top         []TopCandidate
}

type outcome[T any] struct {
	score    float64
	artifact T
	err      error
}

// Search evaluates every point, in parallel when configured, then reduces in
// enumeration order keeping the first strictly greater score. Points whose
// evaluation fails are skipped and counted. It fails with ErrNoCandidates
// when nothing could be scored.
func Search[T any](points [][]float64, opts SearchOptions, eval Objective[T]) (SearchResult[T], error) {
	var res SearchResult[T]
	if len(points) == 0 {
		return res, apperr.ErrNoCandidates
	}

	results := make([]outcome[T], len(points))
	workers := opts.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(points) {
		workers = len(points)
	}
	if workers <= 1 {
		for i, p := range points {
			results[i] = evaluate(eval, p)
		}
	} else {
		jobs := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range jobs {
					results[i] = evaluate(eval, points[i])
				}
			}()
		}
		for i := range points {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
	}

	found := false
	topK := opts.TopK
	if topK < 1 {
		topK = 1
	}
	for i, r := range results {
		evalNum := opts.EvalOffset + i + 1
		res.Evaluations++
		if r.err != nil {
			res.Failed++
			if opts.Progress != nil {
				fmt.Fprintf(opts.Progress, "%sEval %d failed: %v\n", prefix(opts.Label), evalNum, r.err)
			}
			continue
		}
		res.Top = updateTopCandidates(res.Top, topK, evalNum, r.score, opts.Axes, points[i])
		if !found || r.score > res.Best.Score {
			found = true
			res.Best = Candidate[T]{Eval: evalNum, Point: clonePoint(points[i]), Score: r.score, Artifact: r.artifact}
			if opts.Progress != nil {
				fmt.Fprintf(opts.Progress, "%sImproved eval=%d score=%.4f\n", prefix(opts.Label), evalNum, r.score)
			}
		}
		if opts.Progress != nil && opts.ReportEvery > 0 && (i+1)%opts.ReportEvery == 0 {
			fmt.Fprintf(opts.Progress, "%sProgress eval=%d/%d best=%.4f\n", prefix(opts.Label), i+1, len(points), res.Best.Score)
		}
	}
	if !found {
		return res, fmt.Errorf("%w: all %d evaluations failed", apperr.ErrNoCandidates, res.Failed)
	}
	return res, nil
}

func evaluate[T any](eval Objective[T], p []float64) (o outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("evaluation panic: %v", r)
		}
	}()
	o.score, o.artifact, o.err = eval(p)
	if o.err == nil && math.IsNaN(o.score) {
		o.err = fmt.Errorf("evaluation returned NaN")
	}
	return o
}

func prefix(label string) string {
	if label == "" {
		return ""
	}
	return "[" + label + "] "
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}

// updateTopCandidates keeps the topK best entries, ties ordered by eval.
func updateTopCandidates(top []TopCandidate, topK int, eval int, score float64, axes []Axis, point []float64) []TopCandidate {
	top = append(top, TopCandidate{Eval: eval, Score: score, Knobs: Knobs(axes, point)})
	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Score == top[j].Score {
			return top[i].Eval < top[j].Eval
		}
		return top[i].Score > top[j].Score
	})
	if len(top) > topK {
		top = top[:topK]
	}
	return top
}

// mergeTop combines two top lists under the same ordering.
func mergeTop(a, b []TopCandidate, topK int) []TopCandidate {
	out := append(append([]TopCandidate(nil), a...), b...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Eval < out[j].Eval
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
