package audio

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FeatureConfig fixes the layout of extracted feature vectors. The offline
// training procedure and the online scorer must use identical values: the
// vector layout is a cross-process contract, not a tunable.
type FeatureConfig struct {
	SampleRate int
	NumMFCC    int
	NumChroma  int
	NumMels    int
	FFTSize    int
	HopSize    int
}

// Dim is the feature vector length: mean and stdev per coefficient, for
// MFCC, chroma, and mel bands.
func (c FeatureConfig) Dim() int {
	return 2 * (c.NumMFCC + c.NumChroma + c.NumMels)
}

// Extractor computes fixed-layout spectral feature vectors from canonical
// waveforms. It is pure and deterministic; all derived tables (window, mel
// filterbank, DCT basis, chroma bin map) are built once at construction and
// never mutated, so a single Extractor is safe for concurrent use.
//
// Vector layout, in order:
//
//	[0, M)        MFCC mean        (M = NumMFCC)
//	[M, 2M)       MFCC stdev
//	[2M, 2M+C)    chroma mean      (C = NumChroma)
//	...           chroma stdev
//	...           mel mean         (L = NumMels)
//	...           mel stdev
type Extractor struct {
	cfg     FeatureConfig
	fft     *fourier.FFT
	window  []float64
	melBank [][]float64 // NumMels x (FFTSize/2+1) triangular weights
	dct     [][]float64 // NumMFCC x NumMels orthonormal DCT-II basis
	chroma  []int       // spectrum bin -> pitch class, -1 for DC
}

func NewExtractor(cfg FeatureConfig) *Extractor {
	bins := cfg.FFTSize/2 + 1
	return &Extractor{
		cfg:     cfg,
		fft:     fourier.NewFFT(cfg.FFTSize),
		window:  hannWindow(cfg.FFTSize),
		melBank: melFilterbank(cfg.NumMels, bins, cfg.FFTSize, cfg.SampleRate),
		dct:     dctBasis(cfg.NumMFCC, cfg.NumMels),
		chroma:  chromaBinMap(bins, cfg.FFTSize, cfg.SampleRate, cfg.NumChroma),
	}
}

// Extract computes the feature vector for a canonical waveform. The waveform
// is framed (no centering padding), each frame is Hann-windowed and
// transformed, and per-coefficient mean and stdev are taken across frames.
func (e *Extractor) Extract(w Waveform) []float64 {
	cfg := e.cfg
	bins := cfg.FFTSize/2 + 1

	numFrames := 0
	if len(w.Samples) >= cfg.FFTSize {
		numFrames = 1 + (len(w.Samples)-cfg.FFTSize)/cfg.HopSize
	}

	mfccStats := newRunningStats(cfg.NumMFCC)
	chromaStats := newRunningStats(cfg.NumChroma)
	melStats := newRunningStats(cfg.NumMels)

	frame := make([]float64, cfg.FFTSize)
	power := make([]float64, bins)
	mel := make([]float64, cfg.NumMels)
	logMel := make([]float64, cfg.NumMels)
	mfcc := make([]float64, cfg.NumMFCC)
	chroma := make([]float64, cfg.NumChroma)

	for f := 0; f < numFrames; f++ {
		off := f * cfg.HopSize
		for i := 0; i < cfg.FFTSize; i++ {
			frame[i] = w.Samples[off+i] * e.window[i]
		}
		spec := e.fft.Coefficients(nil, frame)
		for i := range power {
			re, im := real(spec[i]), imag(spec[i])
			power[i] = re*re + im*im
		}

		// Mel band energies.
		for m := range mel {
			var sum float64
			bank := e.melBank[m]
			for i, wgt := range bank {
				if wgt != 0 {
					sum += wgt * power[i]
				}
			}
			mel[m] = sum
			logMel[m] = 10 * math.Log10(sum+1e-10)
		}

		// MFCC: orthonormal DCT-II of the log-mel energies.
		for k := range mfcc {
			var sum float64
			basis := e.dct[k]
			for m, b := range basis {
				sum += b * logMel[m]
			}
			mfcc[k] = sum
		}

		// Chroma: fold spectrum energy onto pitch classes, scale each frame
		// so its strongest class is 1.
		for i := range chroma {
			chroma[i] = 0
		}
		for i, pc := range e.chroma {
			if pc >= 0 {
				chroma[pc] += power[i]
			}
		}
		peak := 0.0
		for _, v := range chroma {
			if v > peak {
				peak = v
			}
		}
		if peak > 0 {
			for i := range chroma {
				chroma[i] /= peak
			}
		}

		mfccStats.add(mfcc)
		chromaStats.add(chroma)
		melStats.add(mel)
	}

	// Concatenation order is fixed; see the type doc.
	out := make([]float64, 0, cfg.Dim())
	out = append(out, mfccStats.mean()...)
	out = append(out, mfccStats.stdev()...)
	out = append(out, chromaStats.mean()...)
	out = append(out, chromaStats.stdev()...)
	out = append(out, melStats.mean()...)
	out = append(out, melStats.stdev()...)
	return out
}

// runningStats accumulates per-coefficient mean and population stdev.
type runningStats struct {
	n     int
	sum   []float64
	sumSq []float64
}

func newRunningStats(dim int) *runningStats {
	return &runningStats{sum: make([]float64, dim), sumSq: make([]float64, dim)}
}

func (s *runningStats) add(v []float64) {
	s.n++
	for i, x := range v {
		s.sum[i] += x
		s.sumSq[i] += x * x
	}
}

func (s *runningStats) mean() []float64 {
	out := make([]float64, len(s.sum))
	if s.n == 0 {
		return out
	}
	for i := range out {
		out[i] = s.sum[i] / float64(s.n)
	}
	return out
}

func (s *runningStats) stdev() []float64 {
	out := make([]float64, len(s.sum))
	if s.n == 0 {
		return out
	}
	n := float64(s.n)
	for i := range out {
		m := s.sum[i] / n
		v := s.sumSq[i]/n - m*m
		if v > 0 {
			out[i] = math.Sqrt(v)
		}
	}
	return out
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// Slaney-style mel scale: linear below 1 kHz, logarithmic above.
func hzToMel(f float64) float64 {
	const (
		fSp      = 200.0 / 3.0
		minLogHz = 1000.0
	)
	logStep := math.Log(6.4) / 27.0
	if f < minLogHz {
		return f / fSp
	}
	return minLogHz/fSp + math.Log(f/minLogHz)/logStep
}

func melToHz(m float64) float64 {
	const (
		fSp      = 200.0 / 3.0
		minLogHz = 1000.0
	)
	logStep := math.Log(6.4) / 27.0
	minLogMel := minLogHz / fSp
	if m < minLogMel {
		return m * fSp
	}
	return minLogHz * math.Exp(logStep*(m-minLogMel))
}

// melFilterbank builds numMels triangular filters over the spectrum bins,
// area-normalized so each filter integrates to roughly constant energy.
func melFilterbank(numMels, bins, fftSize, sampleRate int) [][]float64 {
	edges := make([]float64, numMels+2)
	melMax := hzToMel(float64(sampleRate) / 2)
	for i := range edges {
		edges[i] = melToHz(melMax * float64(i) / float64(numMels+1))
	}

	bank := make([][]float64, numMels)
	for m := range bank {
		bank[m] = make([]float64, bins)
		lo, mid, hi := edges[m], edges[m+1], edges[m+2]
		norm := 2.0 / (hi - lo)
		for i := 0; i < bins; i++ {
			f := float64(i) * float64(sampleRate) / float64(fftSize)
			switch {
			case f <= lo || f >= hi:
				// outside the triangle
			case f < mid:
				bank[m][i] = norm * (f - lo) / (mid - lo)
			default:
				bank[m][i] = norm * (hi - f) / (hi - mid)
			}
		}
	}
	return bank
}

// dctBasis precomputes the orthonormal DCT-II rows used for MFCCs.
func dctBasis(numCoeffs, numMels int) [][]float64 {
	basis := make([][]float64, numCoeffs)
	scale0 := math.Sqrt(1.0 / float64(numMels))
	scale := math.Sqrt(2.0 / float64(numMels))
	for k := range basis {
		basis[k] = make([]float64, numMels)
		s := scale
		if k == 0 {
			s = scale0
		}
		for m := 0; m < numMels; m++ {
			basis[k][m] = s * math.Cos(math.Pi*float64(k)*(2*float64(m)+1)/(2*float64(numMels)))
		}
	}
	return basis
}

// chromaBinMap assigns each spectrum bin to a pitch class (A440 reference).
// DC and out-of-range bins map to -1.
func chromaBinMap(bins, fftSize, sampleRate, numChroma int) []int {
	m := make([]int, bins)
	for i := range m {
		if i == 0 {
			m[i] = -1
			continue
		}
		f := float64(i) * float64(sampleRate) / float64(fftSize)
		midi := 69 + 12*math.Log2(f/440.0)
		pc := int(math.Round(midi)) % numChroma
		if pc < 0 {
			pc += numChroma
		}
		m[i] = pc
	}
	return m
}
