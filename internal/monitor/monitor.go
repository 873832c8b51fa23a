// Package monitor turns raw trades into whale alerts and scored insight candidates.
package monitor

// Config holds the classification thresholds.
type Config struct {
	WhaleThreshold     float64
	MegaWhaleThreshold float64
	VolumeThreshold    float64
	MoveThreshold      float64
	MoveWeight         float64
}

// DefaultConfig returns the production thresholds.
// MoveWeight makes a 5 cent move roughly comparable to $500 of volume.
func DefaultConfig() Config {
	return Config{
		WhaleThreshold:     10000,
		MegaWhaleThreshold: 50000,
		VolumeThreshold:    5000,
		MoveThreshold:      0.05,
		MoveWeight:         10000,
	}
}
