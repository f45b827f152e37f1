package filterpipeline

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

func init() {
	RegisterStage("gain", newGainStage)
	RegisterStage("volume", newVolumeStage)
	RegisterStage("eq", newEQStage)
	RegisterStage("compressor", newCompressorStage)
}

// volumeStage is a linear scalar multiply, 0..1.
type volumeStage struct {
	level atomic.Uint64 // float64 bits
}

func newVolumeStage(params map[string]string) (Stage, error) {
	s := &volumeStage{}
	level := parseFloat(params["level"], 1.0)
	s.level.Store(math.Float64bits(level))
	return s, nil
}

func (s *volumeStage) Name() string { return "volume" }

func (s *volumeStage) Process(samples []float32, channels, sampleRate int) []float32 {
	level := float32(math.Float64frombits(s.level.Load()))
	for i := range samples {
		samples[i] *= level
	}
	return samples
}

func (s *volumeStage) UpdateParameter(key, value string) error {
	if key != "level" {
		return fmt.Errorf("volume: unknown parameter %q", key)
	}
	s.level.Store(math.Float64bits(parseFloat(value, 1.0)))
	return nil
}

// gainStage is a scalar multiply expressed in dB.
type gainStage struct {
	gainDB atomic.Uint64
}

func newGainStage(params map[string]string) (Stage, error) {
	s := &gainStage{}
	g := parseFloat(params["g"], 0.0)
	s.gainDB.Store(math.Float64bits(g))
	return s, nil
}

func (s *gainStage) Name() string { return "gain" }

func dbToLinear(db float64) float64 { return math.Pow(10, db/20) }

func (s *gainStage) Process(samples []float32, channels, sampleRate int) []float32 {
	lin := float32(dbToLinear(math.Float64frombits(s.gainDB.Load())))
	for i := range samples {
		samples[i] *= lin
	}
	return samples
}

func (s *gainStage) UpdateParameter(key, value string) error {
	if key != "g" {
		return fmt.Errorf("gain: unknown parameter %q", key)
	}
	s.gainDB.Store(math.Float64bits(parseFloat(value, 0.0)))
	return nil
}

// eqStage is a biquad peaking filter (RBJ cookbook form), one instance
// of coefficients shared across all channels with per-channel state.
type eqStage struct {
	mu            sync.Mutex
	freq, gain, q float64
	histIn        map[int][2]float64
	histOut       map[int][2]float64
	coeffs        biquadCoeffs
	lastRate      int
}

type biquadCoeffs struct {
	b0, b1, b2, a1, a2 float64
}

func newEQStage(params map[string]string) (Stage, error) {
	s := &eqStage{
		freq:    parseFloat(params["f"], 1000),
		gain:    parseFloat(params["g"], 0),
		q:       parseFloat(params["q"], 0.707),
		histIn:  make(map[int][2]float64),
		histOut: make(map[int][2]float64),
	}
	return s, nil
}

func (s *eqStage) Name() string { return "eq" }

// recomputeLocked derives RBJ peaking-EQ biquad coefficients,
// normalizing by a0 with gonum/floats.Scale.
func (s *eqStage) recomputeLocked(sampleRate int) {
	A := math.Pow(10, s.gain/40)
	w0 := 2 * math.Pi * s.freq / float64(sampleRate)
	alpha := math.Sin(w0) / (2 * s.q)
	cosw0 := math.Cos(w0)

	raw := []float64{
		1 + alpha*A, // b0
		-2 * cosw0,  // b1
		1 - alpha*A, // b2
		1 + alpha/A, // a0
		-2 * cosw0,  // a1
		1 - alpha/A, // a2
	}
	a0 := raw[3]
	norm := make([]float64, len(raw))
	copy(norm, raw)
	floats.Scale(1/a0, norm)

	s.coeffs = biquadCoeffs{b0: norm[0], b1: norm[1], b2: norm[2], a1: norm[4], a2: norm[5]}
	s.lastRate = sampleRate
}

func (s *eqStage) Process(samples []float32, channels, sampleRate int) []float32 {
	s.mu.Lock()
	if s.lastRate != sampleRate {
		s.recomputeLocked(sampleRate)
	}
	c := s.coeffs
	s.mu.Unlock()

	if channels <= 0 {
		return samples
	}
	for i := 0; i < len(samples); i += channels {
		for ch := 0; ch < channels && i+ch < len(samples); ch++ {
			x0 := float64(samples[i+ch])
			hin := s.histIn[ch]
			hout := s.histOut[ch]
			y0 := c.b0*x0 + c.b1*hin[0] + c.b2*hin[1] - c.a1*hout[0] - c.a2*hout[1]
			s.histIn[ch] = [2]float64{x0, hin[0]}
			s.histOut[ch] = [2]float64{y0, hout[0]}
			samples[i+ch] = float32(y0)
		}
	}
	return samples
}

func (s *eqStage) UpdateParameter(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "f":
		s.freq = parseFloat(value, s.freq)
	case "g":
		s.gain = parseFloat(value, s.gain)
	case "q":
		s.q = parseFloat(value, s.q)
	default:
		return fmt.Errorf("eq: unknown parameter %q", key)
	}
	s.lastRate = 0 // force recompute on next Process
	return nil
}

// compressorStage is a feed-forward peak compressor with no lookahead
// (zero added latency): envelope follower in dB domain, static
// knee-less ratio above threshold.
type compressorStage struct {
	mu                  sync.Mutex
	ratio, thresholdDB  float64
	attackMS, releaseMS float64
	envelopeDB          float64
}

func newCompressorStage(params map[string]string) (Stage, error) {
	return &compressorStage{
		ratio:       parseFloat(params["ratio"], 1.0),
		thresholdDB: parseFloat(params["threshold"], 0.0),
		attackMS:    parseFloat(params["attack"], 10.0),
		releaseMS:   parseFloat(params["release"], 100.0),
		envelopeDB:  -120,
	}, nil
}

func (s *compressorStage) Name() string { return "compressor" }

func (s *compressorStage) Process(samples []float32, channels, sampleRate int) []float32 {
	s.mu.Lock()
	ratio, threshold, attackMS, releaseMS := s.ratio, s.thresholdDB, s.attackMS, s.releaseMS
	env := s.envelopeDB
	s.mu.Unlock()

	attackCoeff := timeConstant(attackMS, sampleRate)
	releaseCoeff := timeConstant(releaseMS, sampleRate)

	for i, v := range samples {
		level := math.Abs(float64(v))
		levelDB := -120.0
		if level > 0 {
			levelDB = 20 * math.Log10(level)
		}
		if levelDB > env {
			env = attackCoeff*env + (1-attackCoeff)*levelDB
		} else {
			env = releaseCoeff*env + (1-releaseCoeff)*levelDB
		}
		gainDB := 0.0
		if env > threshold && ratio > 0 {
			gainDB = (threshold - env) * (1 - 1/ratio)
		}
		samples[i] = float32(float64(v) * dbToLinear(gainDB))
	}

	s.mu.Lock()
	s.envelopeDB = env
	s.mu.Unlock()
	return samples
}

func timeConstant(ms float64, sampleRate int) float64 {
	if ms <= 0 || sampleRate <= 0 {
		return 0
	}
	return math.Exp(-1.0 / (ms / 1000.0 * float64(sampleRate)))
}

func (s *compressorStage) UpdateParameter(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch key {
	case "ratio":
		s.ratio = parseFloat(value, s.ratio)
	case "threshold":
		s.thresholdDB = parseFloat(value, s.thresholdDB)
	case "attack":
		s.attackMS = parseFloat(value, s.attackMS)
	case "release":
		s.releaseMS = parseFloat(value, s.releaseMS)
	default:
		return fmt.Errorf("compressor: unknown parameter %q", key)
	}
	return nil
}
