package tab

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func column(cells map[int]int) Column {
	c := EmptyColumn()
	for s, f := range cells {
		c[s-1] = f
	}
	return c
}

func TestFormatLayout(t *testing.T) {
	g := Grid{Columns: []Column{
		column(map[int]int{6: 0}),
		column(map[int]int{6: 2}),
		column(map[int]int{1: 12}),
	}}
	lines := strings.Split(strings.TrimRight(Format(g), "\n"), "\n")
	require.Len(t, lines, 10)

	rule := strings.Repeat("=", 60)
	assert.Equal(t, rule, lines[0])
	assert.Equal(t, "GUITAR TABS", lines[1])
	assert.Equal(t, rule, lines[2])
	assert.Equal(t, "e|------12|", lines[3])
	assert.Equal(t, "B|--------|", lines[4])
	assert.Equal(t, "E| 0- 2---|", lines[8])
	assert.Equal(t, rule, lines[9])
}

func TestParseScenario(t *testing.T) {
	text := strings.Join([]string{
		"e|--|", "B|--|", "G|--|", "D|--|", "A|--|", "E|0-2-3|",
	}, "\n")
	g, err := Parse(text)
	require.NoError(t, err)
	require.Equal(t, 3, g.Len())

	assert.Equal(t, 0, g.At(0, 6))
	assert.Equal(t, 2, g.At(1, 6))
	assert.Equal(t, 3, g.At(2, 6))
	for col := 0; col < 3; col++ {
		for str := 1; str <= 5; str++ {
			assert.Equal(t, Rest, g.At(col, str))
		}
	}
}

func TestParseTooFewRows(t *testing.T) {
	_, err := Parse("e|0|\nB|1|\nnot a row")
	require.Error(t, err)

	var fe *FormatError
	assert.True(t, errors.As(err, &fe))
	assert.True(t, errors.Is(err, apperr.ErrMalformedTab))
}

func TestParseIgnoresSurroundingText(t *testing.T) {
	text := "Song\n  e|1|\nB|--|\nG|--|\nD|--|\nA|--|\nE|--|\nX|9|\ne|7|\n"
	g, err := Parse(text)
	require.NoError(t, err)
	require.Equal(t, 1, g.Len())
	assert.Equal(t, 1, g.At(0, 1))
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		g := Grid{Columns: make([]Column, rng.Intn(20))}
		for ci := range g.Columns {
			g.Columns[ci] = EmptyColumn()
			for s := 0; s < NumStrings; s++ {
				if rng.Intn(3) == 0 {
					g.Columns[ci][s] = rng.Intn(25)
				}
			}
		}
		first := Format(g)
		parsed, err := Parse(first)
		require.NoError(t, err)
		assert.Equal(t, first, Format(parsed))
		assert.Equal(t, g.Len(), parsed.Len())
	}
}

func TestEmptyGridRoundTrip(t *testing.T) {
	out := Format(Grid{})
	assert.Contains(t, out, "e||")
	g, err := Parse(out)
	require.NoError(t, err)
	assert.Zero(t, g.Len())
}

func TestGridHelpers(t *testing.T) {
	g := Grid{Columns: []Column{column(map[int]int{2: 5}), EmptyColumn(), column(map[int]int{6: 0, 3: 7})}}
	assert.Equal(t, 7, g.MaxFret())
	assert.NoError(t, g.Validate(24))
	assert.True(t, errors.Is(g.Validate(6), apperr.ErrInvalidParams))

	notes := g.Notes()
	require.Len(t, notes, 3)
	assert.Equal(t, Cell{Column: 0, String: 2, Fret: 5}, notes[0])
	assert.Equal(t, Cell{Column: 2, String: 3, Fret: 7}, notes[1])

	c := g.Clone()
	c.Columns[0][1] = 9
	assert.Equal(t, 5, g.At(0, 2))
	assert.Equal(t, Rest, Grid{}.MaxFret())
}
