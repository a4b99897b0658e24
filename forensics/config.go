package forensics

import "fmt"

// Config holds the weight and firing threshold of every detector plus the
// cutoff the accumulated confidence must exceed. Engines copy it at
// construction.
type Config struct {
	NoiseWeight          float64
	NoiseThreshold       float64
	AlignmentWeight      float64
	AlignmentThreshold   float64
	CompressionWeight    float64
	CompressionThreshold float64
	FontWeight           float64
	FontThreshold        float64
	TamperCutoff         float64
}

func DefaultConfig() Config {
	return Config{
		NoiseWeight:          0.3,
		NoiseThreshold:       0.8,
		AlignmentWeight:      0.2,
		AlignmentThreshold:   0.7,
		CompressionWeight:    0.3,
		CompressionThreshold: 0.6,
		FontWeight:           0.2,
		FontThreshold:        0.7,
		TamperCutoff:         0.5,
	}
}

// Validate rejects negative weights and thresholds outside [0,1].
func (c Config) Validate() error {
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"noise weight", c.NoiseWeight},
		{"alignment weight", c.AlignmentWeight},
		{"compression weight", c.CompressionWeight},
		{"font weight", c.FontWeight},
		{"tamper cutoff", c.TamperCutoff},
	} {
		if w.value < 0 {
			return fmt.Errorf("%s must be >= 0, got %v", w.name, w.value)
		}
	}
	for _, th := range []struct {
		name  string
		value float64
	}{
		{"noise threshold", c.NoiseThreshold},
		{"alignment threshold", c.AlignmentThreshold},
		{"compression threshold", c.CompressionThreshold},
		{"font threshold", c.FontThreshold},
	} {
		if th.value < 0 || th.value > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", th.name, th.value)
		}
	}
	return nil
}
