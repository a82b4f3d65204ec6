package fit

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/mayfly"

	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/internal/fitcommon"
)

// PolishOptions configures a Mayfly stage over the axes' [Min, Max] box.
type PolishOptions struct {
	// Evals is the total objective budget.
	Evals   int
	Variant string
	Pop     int
	Seed    int64

	Axes       []Axis
	TopK       int
	EvalOffset int
	Progress   io.Writer
}

var mayflyVariants = map[string]func() *mayfly.Config{
	"ma":      mayfly.NewDefaultConfig,
	"desma":   mayfly.NewDESMAConfig,
	"olce":    mayfly.NewOLCEConfig,
	"eobbma":  mayfly.NewEOBBMAConfig,
	"gsasma":  mayfly.NewGSASMAConfig,
	"mpma":    mayfly.NewMPMAConfig,
	"aoblmoa": mayfly.NewAOBLMOAConfig,
}

// normalize fills in the default variant, population and top-K size.
func (o PolishOptions) normalize() (PolishOptions, error) {
	if o.Evals <= 0 || len(o.Axes) == 0 {
		return o, apperr.ErrNoCandidates
	}
	o.Variant = strings.ToLower(o.Variant)
	if o.Variant == "" {
		o.Variant = "desma"
	}
	if _, ok := mayflyVariants[o.Variant]; !ok {
		return o, fmt.Errorf("%w: unsupported mayfly variant %q", apperr.ErrInvalidParams, o.Variant)
	}
	if o.Pop <= 0 {
		o.Pop = 10
	}
	o.TopK = fitcommon.MaxInt(1, o.TopK)
	return o, nil
}

// round configures one seeded Mayfly run over the unit cube. Options must be
// normalized.
func (o PolishOptions) round(n, iters int) *mayfly.Config {
	cfg := mayflyVariants[o.Variant]()
	cfg.ProblemSize = len(o.Axes)
	cfg.LowerBound = 0
	cfg.UpperBound = 1
	cfg.MaxIterations = iters
	cfg.NPop = o.Pop
	cfg.NPopF = o.Pop
	cfg.NC = 2 * o.Pop
	cfg.NM = fitcommon.MaxInt(1, int(math.Round(0.05*float64(o.Pop))))
	cfg.Rand = rand.New(rand.NewSource(o.Seed + int64(n)*7919))
	return cfg
}

// evalBudget numbers evaluations 1..limit across concurrent callers.
type evalBudget struct {
	used  atomic.Int64
	limit int64
}

func (b *evalBudget) take() (int, bool) {
	for {
		cur := b.used.Load()
		if cur >= b.limit {
			return 0, false
		}
		if b.used.CompareAndSwap(cur, cur+1) {
			return int(cur + 1), true
		}
	}
}

func (b *evalBudget) remaining() int {
	return int(b.limit - b.used.Load())
}

// optimize runs one Mayfly round; the library panics on some degenerate
// configurations.
func optimize(cfg *mayfly.Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mayfly panic: %v", r)
		}
	}()
	_, err = mayfly.Optimize(cfg)
	return err
}

// Polish runs seeded Mayfly rounds until the evaluation budget is spent.
// Mayfly minimizes, so the objective is negated; positions are mapped from
// the unit cube onto the axes' bounds.
func Polish[T any](opts PolishOptions, eval Objective[T]) (SearchResult[T], error) {
	var res SearchResult[T]
	opts, err := opts.normalize()
	if err != nil {
		return res, err
	}

	budget := &evalBudget{limit: int64(opts.Evals)}
	var (
		mu    sync.Mutex
		found bool
	)
	worst := func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if !found {
			return 1
		}
		return -res.Best.Score + 1
	}

	for n := 0; budget.remaining() > 0; n++ {
		iters := fitcommon.MaxInt(1, budget.remaining()/(2*opts.Pop))
		cfg := opts.round(n, iters)
		cfg.ObjectiveFunc = func(pos []float64) float64 {
			num, ok := budget.take()
			if !ok {
				return worst()
			}
			point := fromNormalized(pos, opts.Axes)
			o := evaluate(eval, point)
			evalNum := opts.EvalOffset + num

			mu.Lock()
			defer mu.Unlock()
			res.Evaluations++
			if o.err != nil {
				res.Failed++
				if found {
					return -res.Best.Score + 0.8
				}
				return 1
			}
			res.Top = updateTopCandidates(res.Top, opts.TopK, evalNum, o.score, opts.Axes, point)
			if !found || o.score > res.Best.Score {
				found = true
				res.Best = Candidate[T]{Eval: evalNum, Point: point, Score: o.score, Artifact: o.artifact}
				if opts.Progress != nil {
					fmt.Fprintf(opts.Progress, "[mayfly] Improved eval=%d score=%.4f\n", evalNum, o.score)
				}
			}
			return -o.score
		}
		before := budget.remaining()
		if err := optimize(cfg); err != nil {
			if opts.Progress != nil {
				fmt.Fprintf(opts.Progress, "mayfly round %d failed: %v\n", n, err)
			}
			break
		}
		if budget.remaining() == before {
			break
		}
	}
	if !found {
		return res, fmt.Errorf("%w: mayfly found no scorable point", apperr.ErrNoCandidates)
	}
	return res, nil
}
