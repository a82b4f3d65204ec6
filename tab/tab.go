// Package tab holds the six-string tablature grid and its text codec.
package tab

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cwbudde/algo-tab/internal/apperr"
)

const (
	// NumStrings is the number of guitar strings, row 0 being the high e.
	NumStrings = 6
	// Rest marks a silent cell.
	Rest = -1
)

// Labels are the row labels from string 1 (high e) to string 6 (low E).
var Labels = [NumStrings]string{"e", "B", "G", "D", "A", "E"}

const ruleWidth = 60

// Column is one time slot: Column[s] is the fret on string s+1 or Rest.
type Column [NumStrings]int

// EmptyColumn returns a column of rests.
func EmptyColumn() Column {
	var c Column
	for i := range c {
		c[i] = Rest
	}
	return c
}

// Grid is a sequence of columns; every row has the same length by construction.
type Grid struct {
	Columns []Column
}

// Len returns the number of columns.
func (g Grid) Len() int {
	return len(g.Columns)
}

// Clone returns a deep copy.
func (g Grid) Clone() Grid {
	return Grid{Columns: append([]Column(nil), g.Columns...)}
}

// At returns the fret of string (1..6) at column col.
func (g Grid) At(col, str int) int {
	return g.Columns[col][str-1]
}

// MaxFret returns the highest fret used, or Rest for an all-rest grid.
func (g Grid) MaxFret() int {
	max := Rest
	for _, c := range g.Columns {
		for _, f := range c {
			if f > max {
				max = f
			}
		}
	}
	return max
}

// Validate checks every cell is Rest or within [0, maxFret].
func (g Grid) Validate(maxFret int) error {
	for ci, c := range g.Columns {
		for s, f := range c {
			if f == Rest {
				continue
			}
			if f < 0 || f > maxFret {
				return fmt.Errorf("%w: column %d string %d fret %d outside [0,%d]",
					apperr.ErrInvalidParams, ci, s+1, f, maxFret)
			}
		}
	}
	return nil
}

// Cell is a non-rest position of a grid.
type Cell struct {
	Column int
	String int // 1..6
	Fret   int
}

// Notes lists the sounding cells column by column, high string first.
func (g Grid) Notes() []Cell {
	var out []Cell
	for ci, c := range g.Columns {
		for s, f := range c {
			if f != Rest {
				out = append(out, Cell{Column: ci, String: s + 1, Fret: f})
			}
		}
	}
	return out
}

// FormatError reports tablature text that cannot be parsed.
type FormatError struct {
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%v: line %d: %s", apperr.ErrMalformedTab, e.Line, e.Reason)
	}
	return fmt.Sprintf("%v: %s", apperr.ErrMalformedTab, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return apperr.ErrMalformedTab
}

// Format renders a grid as framed ASCII tablature. Fret cells are two
// characters wide, rests are "--" and cells are joined by "-".
func Format(g Grid) string {
	rule := strings.Repeat("=", ruleWidth)
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("GUITAR TABS\n")
	b.WriteString(rule + "\n")
	cells := make([]string, len(g.Columns))
	for s := 0; s < NumStrings; s++ {
		for ci, c := range g.Columns {
			cells[ci] = formatCell(c[s])
		}
		b.WriteString(Labels[s])
		b.WriteString("|")
		b.WriteString(strings.Join(cells, "-"))
		b.WriteString("|\n")
	}
	b.WriteString(rule + "\n")
	return b.String()
}

func formatCell(f int) string {
	if f == Rest {
		return "--"
	}
	return fmt.Sprintf("%2d", f)
}

var (
	rowPattern   = regexp.MustCompile(`^[eBGDAE]\|`)
	tokenPattern = regexp.MustCompile(`\s*(\d+|--)-?`)
)

// Parse reads the first six string rows of a tab text. Each digit run is a
// fret and each "--" a rest; one separator dash after a token is consumed
// with it. Shorter rows are right-padded with rests.
func Parse(text string) (Grid, error) {
	var rows [][]int
	for n, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !rowPattern.MatchString(trimmed) {
			continue
		}
		row, err := parseRow(trimmed)
		if err != nil {
			return Grid{}, &FormatError{Line: n + 1, Reason: err.Error()}
		}
		rows = append(rows, row)
		if len(rows) == NumStrings {
			break
		}
	}
	if len(rows) < NumStrings {
		return Grid{}, &FormatError{Reason: fmt.Sprintf("found %d of %d string rows", len(rows), NumStrings)}
	}

	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	g := Grid{Columns: make([]Column, width)}
	for ci := range g.Columns {
		g.Columns[ci] = EmptyColumn()
	}
	for s, r := range rows {
		for ci, f := range r {
			g.Columns[ci][s] = f
		}
	}
	return g, nil
}

func parseRow(line string) ([]int, error) {
	first := strings.Index(line, "|")
	last := strings.LastIndex(line, "|")
	body := line[first+1:]
	if last > first {
		body = line[first+1 : last]
	}
	var out []int
	for _, m := range tokenPattern.FindAllStringSubmatch(body, -1) {
		if m[1] == "--" {
			out = append(out, Rest)
			continue
		}
		f, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("fret %q: %w", m[1], err)
		}
		out = append(out, f)
	}
	return out, nil
}
