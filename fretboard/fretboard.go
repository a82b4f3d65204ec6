// Package fretboard places notes on a standard-tuned six-string neck.
package fretboard

import (
	"sort"

	"github.com/cwbudde/algo-tab/segment"
	"github.com/cwbudde/algo-tab/tab"
)

// DefaultMaxFret is the highest fret considered unless configured.
const DefaultMaxFret = 24

// OpenMIDI holds the open-string MIDI numbers, indexed by string 1..6.
var OpenMIDI = [tab.NumStrings + 1]int{0, 64, 59, 55, 50, 45, 40}

// Position is a string (1 = high e) and fret.
type Position struct {
	String int `json:"string"`
	Fret   int `json:"fret"`
}

// MIDI returns the pitch sounded at p.
func (p Position) MIDI() int {
	return OpenMIDI[p.String] + p.Fret
}

// Event is a note placed on the neck.
type Event struct {
	Position
	Time     float64 `json:"time"`
	Name     string  `json:"note"`
	Duration float64 `json:"duration"`
	// Fallback marks a note that had no playable position.
	Fallback bool `json:"fallback,omitempty"`
}

var fallback = Position{String: 1, Fret: 0}

// Candidates lists every (string, fret) sounding midi with fret in
// [0, maxFret], ordered by string.
func Candidates(midi, maxFret int) []Position {
	var out []Position
	for s := 1; s <= tab.NumStrings; s++ {
		fret := midi - OpenMIDI[s]
		if fret >= 0 && fret <= maxFret {
			out = append(out, Position{String: s, Fret: fret})
		}
	}
	return out
}

// Mapper assigns positions greedily, keeping the hand near its last spot.
type Mapper struct {
	MaxFret int
}

// NewMapper returns a mapper limited to maxFret (DefaultMaxFret if negative).
func NewMapper(maxFret int) Mapper {
	if maxFret < 0 {
		maxFret = DefaultMaxFret
	}
	return Mapper{MaxFret: maxFret}
}

// Map places notes in order. The first playable note takes the lowest fret
// (then the lowest string number); every later note minimises
// (|dfret|, |dstring|, fret) from the previous placement.
func (m Mapper) Map(notes []segment.Note) []Event {
	events := make([]Event, 0, len(notes))
	var hand *Position
	for _, n := range notes {
		ev := Event{Time: n.Start, Name: n.Name, Duration: n.Duration}
		cands := Candidates(n.MIDI, m.MaxFret)
		if len(cands) == 0 {
			ev.Position = fallback
			ev.Fallback = true
			events = append(events, ev)
			continue
		}
		var best Position
		if hand == nil {
			best = firstChoice(cands)
		} else {
			best = nearest(cands, *hand)
		}
		ev.Position = best
		hand = &best
		events = append(events, ev)
	}
	return events
}

func firstChoice(cands []Position) Position {
	best := cands[0]
	for _, c := range cands[1:] {
		if c.Fret < best.Fret || (c.Fret == best.Fret && c.String < best.String) {
			best = c
		}
	}
	return best
}

func nearest(cands []Position, from Position) Position {
	key := func(p Position) [3]int {
		return [3]int{abs(p.Fret - from.Fret), abs(p.String - from.String), p.Fret}
	}
	best := cands[0]
	bestKey := key(best)
	for _, c := range cands[1:] {
		k := key(c)
		if less(k, bestKey) {
			best, bestKey = c, k
		}
	}
	return best
}

func less(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// ColumnTolerance is the onset distance below which events share a column.
const ColumnTolerance = 0.01

// Grid lays events out as tablature: one column per distinct onset time,
// the event's fret on its string and rests elsewhere. When two events land
// on the same string of a column the earlier one is kept.
func Grid(events []Event) tab.Grid {
	if len(events) == 0 {
		return tab.Grid{}
	}
	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })

	var g tab.Grid
	colStart := 0.0
	for i, ev := range sorted {
		if i == 0 || ev.Time-colStart >= ColumnTolerance {
			g.Columns = append(g.Columns, tab.EmptyColumn())
			colStart = ev.Time
		}
		last := g.Len() - 1
		if g.At(last, ev.String) == tab.Rest {
			g.Columns[last][ev.String-1] = ev.Fret
		}
	}
	return g
}

// Times returns the onset time of each grid column built by Grid.
func Times(events []Event) []float64 {
	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	var out []float64
	for i, ev := range sorted {
		if i == 0 || ev.Time-out[len(out)-1] >= ColumnTolerance {
			out = append(out, ev.Time)
		}
	}
	return out
}
