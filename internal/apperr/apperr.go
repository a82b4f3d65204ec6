package apperr

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected failure modes
var (
	ErrEmptyAudio      = errors.New("empty audio buffer")
	ErrTooShort        = errors.New("audio too short for analysis")
	ErrUnreadableAudio = errors.New("audio unreadable")
	ErrMalformedTab    = errors.New("malformed tablature")
	ErrInvalidParams   = errors.New("invalid parameters")
	ErrNoCandidates    = errors.New("no candidates evaluated")
)

// InputError reports bad caller input. It is never retried.
type InputError struct {
	Op   string // "segment", "match", "refine", "load"
	Path string // optional file path
	Err  error
}

func (e *InputError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// Input creates an InputError
func Input(op string, err error) *InputError {
	return &InputError{Op: op, Err: err}
}

// InputPath creates an InputError carrying the offending path
func InputPath(op, path string, err error) *InputError {
	return &InputError{Op: op, Path: path, Err: err}
}
