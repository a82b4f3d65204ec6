// Package midifile exports transcribed notes as a Standard MIDI File.
package midifile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cwbudde/algo-tab/internal/apperr"
	"github.com/cwbudde/algo-tab/pitch"
	"github.com/cwbudde/algo-tab/segment"
)

// Resolution is the number of ticks per quarter note.
const Resolution = 480

// Options controls the exported track.
type Options struct {
	BPM      float64
	Channel  uint8
	Velocity uint8
	// Program is the General MIDI instrument; 25 is a steel string guitar.
	Program uint8
	Name    string
}

// DefaultOptions returns the export defaults.
func DefaultOptions() Options {
	return Options{BPM: 120, Velocity: 100, Program: 25, Name: "guitar"}
}

type event struct {
	tick uint32
	off  bool
	key  uint8
}

// Encode builds a single-track file holding one note on/off pair per note.
func Encode(notes []segment.Note, opt Options) (*smf.SMF, error) {
	if !(opt.BPM > 0) || opt.Channel > 15 || opt.Velocity == 0 || opt.Velocity > 127 || opt.Program > 127 {
		return nil, fmt.Errorf("%w: midi options %+v", apperr.ErrInvalidParams, opt)
	}
	ticksPerSecond := opt.BPM / 60 * Resolution
	toTick := func(sec float64) uint32 {
		return uint32(math.Round(math.Max(sec, 0) * ticksPerSecond))
	}

	events := make([]event, 0, 2*len(notes))
	for _, n := range notes {
		if n.MIDI < 0 || n.MIDI > 127 {
			continue
		}
		on, off := toTick(n.Start), toTick(n.End)
		if off <= on {
			off = on + 1
		}
		key := uint8(n.MIDI)
		events = append(events, event{tick: on, key: key}, event{tick: off, off: true, key: key})
	}
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].tick != events[j].tick {
			return events[i].tick < events[j].tick
		}
		return events[i].off && !events[j].off
	})

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName(opt.Name))
	tr.Add(0, smf.MetaTempo(opt.BPM))
	tr.Add(0, midi.ProgramChange(opt.Channel, opt.Program))
	var last uint32
	for _, e := range events {
		delta := e.tick - last
		last = e.tick
		if e.off {
			tr.Add(delta, midi.NoteOff(opt.Channel, e.key))
		} else {
			tr.Add(delta, midi.NoteOn(opt.Channel, e.key, opt.Velocity))
		}
	}
	tr.Close(0)

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(Resolution)
	if err := s.Add(tr); err != nil {
		return nil, fmt.Errorf("add track: %w", err)
	}
	return s, nil
}

// WriteFile encodes notes and writes them to path.
func WriteFile(path string, notes []segment.Note, opt Options) error {
	s, err := Encode(notes, opt)
	if err != nil {
		return err
	}
	if err := s.WriteFile(path); err != nil {
		return fmt.Errorf("write midi %s: %w", path, err)
	}
	return nil
}

// ReadNotes reads the note on/off pairs of every track back as notes.
// Unterminated notes are dropped.
func ReadNotes(path string) (notes []segment.Note, err error) {
	// smf can panic on corrupt input.
	defer func() {
		if r := recover(); r != nil {
			err = apperr.InputPath("read midi", path, fmt.Errorf("%v", r))
		}
	}()
	s, err := smf.ReadFile(path)
	if err != nil {
		return nil, apperr.InputPath("read midi", path, err)
	}
	if s == nil {
		return nil, apperr.InputPath("read midi", path, errors.New("empty file"))
	}

	for _, track := range s.Tracks {
		var absTicks int64
		open := make(map[uint8]float64)
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			sec := float64(s.TimeAt(absTicks)) / 1e6
			var ch, key, vel uint8
			switch {
			case ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
				open[key] = sec
			case ev.Message.GetNoteOff(&ch, &key, &vel), ev.Message.GetNoteOn(&ch, &key, &vel):
				start, ok := open[key]
				if !ok {
					continue
				}
				delete(open, key)
				notes = append(notes, segment.Note{
					Name:      pitch.NoteName(int(key)),
					MIDI:      int(key),
					Frequency: pitch.MIDIToFrequency(float64(key)),
					Start:     start,
					End:       sec,
					Duration:  sec - start,
				})
			}
		}
	}
	sort.SliceStable(notes, func(i, j int) bool { return notes[i].Start < notes[j].Start })
	return notes, nil
}
