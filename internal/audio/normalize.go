package audio

import (
	"context"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Waveform is canonical audio: mono PCM samples at a fixed rate.
type Waveform struct {
	Samples []float64
	Rate    int
}

// Duration reports the waveform length in seconds.
func (w Waveform) Duration() float64 {
	if w.Rate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.Rate)
}

// Normalizer produces canonical waveforms from arbitrary uploaded audio:
// transcode via the external codec, decode, downmix, resample, then pad or
// truncate to exactly TargetSamples. The classifiers are calibrated to this
// shape, so the sample count must be exact.
type Normalizer struct {
	trans         *Transcoder
	rate          int
	targetSamples int
}

func NewNormalizer(trans *Transcoder, rate, targetSamples int) *Normalizer {
	return &Normalizer{trans: trans, rate: rate, targetSamples: targetSamples}
}

// Normalize decodes the file at path into a canonical waveform. Codec
// failures wrap ErrDecode.
func (n *Normalizer) Normalize(ctx context.Context, path string) (Waveform, error) {
	wavPath := path + ".norm.wav"
	// ffmpeg creates the output before a failure or timeout can kill it, so
	// the removal must be registered before the transcode runs.
	defer os.Remove(wavPath)
	if err := n.trans.Transcode(ctx, path, wavPath); err != nil {
		return Waveform{}, err
	}

	samples, rate, err := DecodeWAV(wavPath)
	if err != nil {
		return Waveform{}, err
	}
	if rate != n.rate {
		// ffmpeg already resampled; this only fires on hand-fed WAV input.
		samples = Resample(samples, rate, n.rate)
	}
	return Waveform{Samples: FitLength(samples, n.targetSamples), Rate: n.rate}, nil
}

// DecodeWAV reads a PCM WAV file into float64 samples in [-1, 1], downmixing
// multi-channel audio by averaging. Decode failures wrap ErrDecode.
func DecodeWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: %s is not a valid wav file", ErrDecode, path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read pcm: %v", ErrDecode, err)
	}

	channels := buf.Format.NumChannels
	if channels < 1 {
		return nil, 0, fmt.Errorf("%w: %s reports %d channels", ErrDecode, path, channels)
	}

	floats := buf.AsFloatBuffer().Data
	// Integer PCM decodes to raw sample values; scale to [-1, 1].
	scale := 1.0
	if dec.BitDepth > 1 {
		scale = 1.0 / float64(int(1)<<(dec.BitDepth-1))
	}

	frames := len(floats) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += floats[i*channels+c]
		}
		mono[i] = sum / float64(channels) * scale
	}
	return mono, buf.Format.SampleRate, nil
}

// FitLength truncates or zero-pads samples to exactly n. Truncation drops the
// tail; padding appends silence.
func FitLength(samples []float64, n int) []float64 {
	if len(samples) == n {
		return samples
	}
	if len(samples) > n {
		return samples[:n]
	}
	out := make([]float64, n)
	copy(out, samples)
	return out
}

// Resample converts samples between rates with linear interpolation. The
// codec collaborator resamples the normal path; this covers raw WAV input.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}
	ratio := float64(from) / float64(to)
	outLen := int(float64(len(samples))/ratio + 0.5)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
