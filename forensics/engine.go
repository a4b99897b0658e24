// Package forensics scores a grayscale document image for signs of digital
// tampering. Four independent detectors each produce a score in [0,1]; every
// detector whose score exceeds its threshold adds its weight to the confidence
// and records an issue.
package forensics

import (
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/wudi/rxverify/observability"
)

// Kind identifies a detector. Detectors are combined in Kind order.
type Kind int

const (
	Noise Kind = iota
	Alignment
	Compression
	Font
	numKinds
)

func (k Kind) String() string {
	switch k {
	case Noise:
		return "noise"
	case Alignment:
		return "alignment"
	case Compression:
		return "compression"
	case Font:
		return "font"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Issue messages recorded when a detector fires.
const (
	IssueNoise       = "High noise level detected"
	IssueAlignment   = "Inconsistent text alignment detected"
	IssueCompression = "Possible image splicing detected"
	IssueFont        = "Inconsistent font patterns detected"
)

// Detector scores an image in [0,1].
type Detector interface {
	Score(img *image.Gray) (float64, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(img *image.Gray) (float64, error)

func (f DetectorFunc) Score(img *image.Gray) (float64, error) { return f(img) }

func infallible(fn func(*image.Gray) float64) Detector {
	return DetectorFunc(func(img *image.Gray) (float64, error) { return fn(img), nil })
}

// DetectorScores are the raw detector outputs, kept for inspection.
type DetectorScores struct {
	Noise       float64 `json:"noise" bson:"noise"`
	Alignment   float64 `json:"alignment" bson:"alignment"`
	Compression float64 `json:"compression" bson:"compression"`
	Font        float64 `json:"font" bson:"font"`
}

// Report is the result of Detect. Confidence is the raw sum of the weights
// of the detectors that fired and may exceed 1.
type Report struct {
	IsTampered     bool           `json:"is_tampered" bson:"is_tampered"`
	Confidence     float64        `json:"confidence" bson:"confidence"`
	DetectedIssues []string       `json:"detected_issues" bson:"detected_issues"`
	Scores         DetectorScores `json:"detector_scores" bson:"detector_scores"`
}

// ClampedConfidence returns Confidence limited to [0,1].
func (r Report) ClampedConfidence() float64 {
	return math.Max(0, math.Min(r.Confidence, 1))
}

type Option func(*Engine)

// WithDetector replaces the implementation of one detector.
func WithDetector(kind Kind, p Detector) Option {
	return func(e *Engine) {
		if kind >= 0 && kind < numKinds && p != nil {
			e.detectors[kind] = p
		}
	}
}

func WithLogger(logger observability.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine runs the detectors. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	cfg    Config
	detectors [numKinds]Detector
	logger observability.Logger
}

func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: observability.NopLogger{},
	}
	e.detectors[Noise] = infallible(NoiseScore)
	e.detectors[Alignment] = infallible(AlignmentScore)
	e.detectors[Compression] = DetectorFunc(CompressionScore)
	e.detectors[Font] = infallible(FontScore)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Detect runs every detector on its own goroutine and fuses the scores in Kind
// order. A detector that fails or panics scores 0.
func (e *Engine) Detect(img *image.Gray) Report {
	var scores [numKinds]float64
	var wg sync.WaitGroup
	for k := Kind(0); k < numKinds; k++ {
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			scores[k] = e.run(k, img)
		}(k)
	}
	wg.Wait()

	rep := Report{
		DetectedIssues: []string{},
		Scores: DetectorScores{
			Noise:       scores[Noise],
			Alignment:   scores[Alignment],
			Compression: scores[Compression],
			Font:        scores[Font],
		},
	}
	rules := [numKinds]struct {
		threshold, weight float64
		issue             string
	}{
		Noise:       {e.cfg.NoiseThreshold, e.cfg.NoiseWeight, IssueNoise},
		Alignment:   {e.cfg.AlignmentThreshold, e.cfg.AlignmentWeight, IssueAlignment},
		Compression: {e.cfg.CompressionThreshold, e.cfg.CompressionWeight, IssueCompression},
		Font:        {e.cfg.FontThreshold, e.cfg.FontWeight, IssueFont},
	}
	for k, rule := range rules {
		if scores[k] > rule.threshold {
			rep.DetectedIssues = append(rep.DetectedIssues, rule.issue)
			rep.Confidence += rule.weight
		}
	}
	rep.IsTampered = rep.Confidence > e.cfg.TamperCutoff
	return rep
}

func (e *Engine) run(k Kind, img *image.Gray) (score float64) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tamper detector panicked",
				observability.String("detector", k.String()),
				observability.String("panic", fmt.Sprint(r)))
			score = 0
		}
	}()
	s, err := e.detectors[k].Score(img)
	if err != nil {
		e.logger.Warn("tamper detector failed",
			observability.String("detector", k.String()),
			observability.Error("error", err))
		return 0
	}
	if math.IsNaN(s) || math.IsInf(s, 0) {
		e.logger.Warn("tamper detector returned non-finite score",
			observability.String("detector", k.String()))
		return 0
	}
	e.logger.Debug("tamper detector scored",
		observability.String("detector", k.String()),
		observability.Float64("score", s),
		observability.Duration("elapsed", time.Since(start)))
	return s
}
