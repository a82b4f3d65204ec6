package fitcommon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	dspresample "github.com/cwbudde/algo-dsp/dsp/resample"
	"github.com/cwbudde/wav"
	"github.com/go-audio/audio"

	"github.com/cwbudde/algo-tab/internal/apperr"
)

// ReadWAVMono loads a WAV file and averages its channels.
func ReadWAVMono(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, apperr.InputPath("load", path, fmt.Errorf("%w: %v", apperr.ErrUnreadableAudio, err))
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, apperr.InputPath("load", path, fmt.Errorf("%w: invalid wav file", apperr.ErrUnreadableAudio))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, apperr.InputPath("load", path, fmt.Errorf("%w: %v", apperr.ErrUnreadableAudio, err))
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, 0, apperr.InputPath("load", path, fmt.Errorf("%w: invalid wav buffer", apperr.ErrUnreadableAudio))
	}
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	if frames == 0 {
		return nil, 0, apperr.InputPath("load", path, apperr.ErrEmptyAudio)
	}
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < ch; c++ {
			sum += float64(buf.Data[i*ch+c])
		}
		out[i] = sum / float64(ch)
	}
	return out, buf.Format.SampleRate, nil
}

// LoadMono reads a WAV file and converts it to sampleRate (0 keeps the
// file's rate).
func LoadMono(path string, sampleRate int) ([]float64, int, error) {
	samples, sr, err := ReadWAVMono(path)
	if err != nil {
		return nil, 0, err
	}
	if sampleRate <= 0 || sampleRate == sr {
		return samples, sr, nil
	}
	out, err := ResampleIfNeeded(samples, sr, sampleRate)
	if err != nil {
		return nil, 0, fmt.Errorf("resample %s: %w", path, err)
	}
	return out, sampleRate, nil
}

// ResampleIfNeeded converts between sample rates with the best-quality
// polyphase resampler.
func ResampleIfNeeded(in []float64, fromRate int, toRate int) ([]float64, error) {
	if fromRate == toRate {
		return in, nil
	}
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("%w: resample %d -> %d", apperr.ErrInvalidParams, fromRate, toRate)
	}
	r, err := dspresample.NewForRates(
		float64(fromRate),
		float64(toRate),
		dspresample.WithQuality(dspresample.QualityBest),
	)
	if err != nil {
		return nil, err
	}
	return r.Process(in), nil
}

// Preview truncates samples to at most seconds (no-op when seconds <= 0).
func Preview(samples []float64, sampleRate int, seconds float64) []float64 {
	if seconds <= 0 {
		return samples
	}
	n := int(seconds * float64(sampleRate))
	if n < len(samples) {
		return samples[:n]
	}
	return samples
}

// WriteMonoWAV writes 16-bit mono PCM, creating parent directories.
func WriteMonoWAV(path string, samples []float64, sampleRate int) (err error) {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", apperr.ErrInvalidParams, sampleRate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)

	data := make([]float32, len(samples))
	for i, v := range samples {
		data[i] = float32(Clamp(v, -1, 1))
	}
	buf := &audio.Float32Buffer{
		Format: &audio.Format{
			SampleRate:  sampleRate,
			NumChannels: 1,
		},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return err
	}
	return enc.Close()
}
