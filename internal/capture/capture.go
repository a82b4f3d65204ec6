// Package capture records mono audio from the default input device.
package capture

import (
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"

	"github.com/cwbudde/algo-tab/internal/apperr"
)

// FramesPerBuffer is the blocking read size.
const FramesPerBuffer = 1024

// Record captures seconds of mono audio at sampleRate from the default
// input device.
func Record(seconds float64, sampleRate int) (_ []float64, err error) {
	total, err := frameCount(seconds, sampleRate)
	if err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	buf := make([]float32, FramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close input stream: %w", cerr)
		}
	}()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("start input stream: %w", err)
	}
	out := make([]float64, 0, total)
	for len(out) < total {
		if err := stream.Read(); err != nil {
			_ = stream.Stop()
			return nil, fmt.Errorf("read input stream: %w", err)
		}
		out = appendFrames(out, buf, total)
	}
	if err := stream.Stop(); err != nil {
		return nil, fmt.Errorf("stop input stream: %w", err)
	}
	return out, nil
}

func frameCount(seconds float64, sampleRate int) (int, error) {
	if sampleRate <= 0 || !(seconds > 0) || math.IsInf(seconds, 0) {
		return 0, apperr.Input("record", fmt.Errorf("%w: %.2fs at %d Hz", apperr.ErrInvalidParams, seconds, sampleRate))
	}
	n := int(seconds * float64(sampleRate))
	if n < 1 {
		return 0, apperr.Input("record", apperr.ErrTooShort)
	}
	return n, nil
}

// appendFrames converts buf and appends it to dst without exceeding total.
func appendFrames(dst []float64, buf []float32, total int) []float64 {
	for _, v := range buf {
		if len(dst) >= total {
			break
		}
		dst = append(dst, float64(v))
	}
	return dst
}
