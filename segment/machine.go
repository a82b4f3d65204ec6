package segment

import "github.com/cwbudde/algo-tab/pitch"

// State of the segmentation machine.
type State int

const (
	Silent State = iota
	Sounding
)

func (s State) String() string {
	if s == Sounding {
		return "sounding"
	}
	return "silent"
}

// machine is the two-state note segmenter. The current run is tracked
// whether or not it ends up long enough to be emitted, so MinDuration only
// filters output and never changes run boundaries.
type machine struct {
	state       State
	minDuration float64
	minProb     float64

	midi  int
	freq  float64
	start float64

	out []Note
}

func newMachine(minDuration, minVoicedProb float64) *machine {
	return &machine{minDuration: minDuration, minProb: minVoicedProb}
}

// step consumes one frame.
//
//	Silent   + unlabeled        -> Silent
//	Silent   + label            -> Sounding (open run)
//	Sounding + unlabeled        -> Silent   (close run)
//	Sounding + same label       -> Sounding
//	Sounding + different label  -> Sounding (close run, open run)
func (m *machine) step(f Frame) {
	midi, ok := Label(f, m.minProb)
	switch m.state {
	case Silent:
		if ok {
			m.open(midi, f)
		}
	case Sounding:
		switch {
		case !ok:
			m.close(f.Time)
			m.state = Silent
		case midi != m.midi:
			m.close(f.Time)
			m.open(midi, f)
		}
	}
}

// flush closes an open run at the time of the last frame.
func (m *machine) flush(lastTime float64) []Note {
	if m.state == Sounding {
		m.close(lastTime)
		m.state = Silent
	}
	return m.out
}

func (m *machine) open(midi int, f Frame) {
	m.state = Sounding
	m.midi = midi
	m.freq = f.Frequency
	m.start = f.Time
}

func (m *machine) close(end float64) {
	d := end - m.start
	if d < m.minDuration {
		return
	}
	m.out = append(m.out, Note{
		Name:      pitch.NoteName(m.midi),
		MIDI:      m.midi,
		Frequency: m.freq,
		Start:     m.start,
		End:       end,
		Duration:  d,
	})
}

// Segment runs the state machine over frames and returns the emitted notes
// in time order. Merging is left to MergeAdjacent.
func Segment(frames []Frame, minDuration, minVoicedProb float64) []Note {
	if len(frames) == 0 {
		return nil
	}
	m := newMachine(minDuration, minVoicedProb)
	for _, f := range frames {
		m.step(f)
	}
	return m.flush(frames[len(frames)-1].Time)
}
