package fit

import (
	"math"
	"sort"

	"github.com/cwbudde/algo-tab/internal/fitcommon"
)

// Axis is one searched dimension. Values is the coarse grid; Delta, Min and
// Max shape the refinement grid around a winner.
type Axis struct {
	Name   string
	Values []float64
	Delta  float64
	Min    float64
	Max    float64
	IsInt  bool
}

// Product enumerates the Cartesian product of the axes' values with the
// first axis outermost and the last varying fastest.
func Product(axes []Axis) [][]float64 {
	if len(axes) == 0 {
		return nil
	}
	total := 1
	for _, a := range axes {
		if len(a.Values) == 0 {
			return nil
		}
		total *= len(a.Values)
	}
	out := make([][]float64, 0, total)
	idx := make([]int, len(axes))
	for {
		p := make([]float64, len(axes))
		for i, a := range axes {
			p[i] = a.Values[idx[i]]
		}
		out = append(out, p)

		k := len(axes) - 1
		for k >= 0 {
			idx[k]++
			if idx[k] < len(axes[k].Values) {
				break
			}
			idx[k] = 0
			k--
		}
		if k < 0 {
			return out
		}
	}
}

// RefineAxes returns axes whose values are {c-Delta, c, c+Delta} around
// center, clamped to each axis' [Min, Max], de-duplicated and sorted.
func RefineAxes(axes []Axis, center []float64) []Axis {
	out := make([]Axis, len(axes))
	for i, a := range axes {
		c := center[i]
		vals := []float64{
			fitcommon.Clamp(c-a.Delta, a.Min, a.Max),
			c,
			fitcommon.Clamp(c+a.Delta, a.Min, a.Max),
		}
		if a.IsInt {
			for j := range vals {
				vals[j] = math.Round(vals[j])
			}
		}
		sort.Float64s(vals)
		uniq := vals[:1]
		for _, v := range vals[1:] {
			if math.Abs(v-uniq[len(uniq)-1]) > 1e-12 {
				uniq = append(uniq, v)
			}
		}
		a.Values = uniq
		out[i] = a
	}
	return out
}

// fromNormalized maps a position in [0,1]^n onto the axes' [Min, Max].
func fromNormalized(pos []float64, axes []Axis) []float64 {
	vals := make([]float64, len(axes))
	for i := range axes {
		x := 0.0
		if i < len(pos) {
			x = fitcommon.Clamp(pos[i], 0, 1)
		}
		v := axes[i].Min + x*(axes[i].Max-axes[i].Min)
		if axes[i].IsInt {
			v = math.Round(v)
		}
		vals[i] = v
	}
	return vals
}

// Knobs names the coordinates of a point.
func Knobs(axes []Axis, point []float64) map[string]float64 {
	out := make(map[string]float64, len(axes))
	for i, a := range axes {
		if i < len(point) {
			out[a.Name] = point[i]
		}
	}
	return out
}
