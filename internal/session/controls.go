package session

import (
	"math"
	"sync"

	"github.com/ayusman/mudra/internal/config"
)

// Controls holds the state shared between the control surface and the loop:
// the confidence threshold and the pending stop request.
type Controls struct {
	mu            sync.RWMutex
	threshold     float64
	stopRequested bool
}

// NewControls creates Controls with the given initial threshold, normalized like SetThreshold.
func NewControls(threshold float64) *Controls {
	return &Controls{threshold: NormalizeThreshold(threshold)}
}

// NormalizeThreshold snaps v to the slider step and clamps it to the slider range.
func NormalizeThreshold(v float64) float64 {
	if math.IsNaN(v) {
		return config.DefaultThreshold
	}
	v = math.Round(v/config.ThresholdStep) * config.ThresholdStep
	// Round off float noise from the step multiplication.
	v = math.Round(v*100) / 100
	return math.Max(config.MinThreshold, math.Min(config.MaxThreshold, v))
}

// Threshold returns the current confidence threshold.
func (c *Controls) Threshold() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threshold
}

// SetThreshold stores v after normalizing it and returns the stored value.
func (c *Controls) SetThreshold(v float64) float64 {
	v = NormalizeThreshold(v)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = v
	return v
}

// RequestStop records a stop signal for the running session.
func (c *Controls) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
}

// StopRequested reports whether a stop signal is pending.
func (c *Controls) StopRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stopRequested
}

// ClearStop discards a pending stop signal. Called when a new session starts.
func (c *Controls) ClearStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = false
}
