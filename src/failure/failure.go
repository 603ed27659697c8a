package failure

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/mosaicnetworks/murmur/src/message"
)

const (
	// DefaultOmissionProbability is the drop probability installed by
	// SetMode(Omission, true).
	DefaultOmissionProbability = 0.3

	// DefaultDelayMin and DefaultDelayMax bound the delay installed by
	// SetMode(Delay, true).
	DefaultDelayMin = 1000 * time.Millisecond
	DefaultDelayMax = 5000 * time.Millisecond
)

// Strategy is applied to every inbound message before protocol processing.
// Process returns false if the message must be discarded. It may block.
//
// The set of strategies is closed: None, Omission and Delay.
type Strategy interface {
	Process(ctx context.Context, msg message.Message) bool
	Name() string
	String() string
	strategy()
}

// None lets every message through.
type None struct{}

// Omission drops a message with the given probability.
type Omission struct {
	Probability float64
}

// Delay holds a message for a uniformly random duration in [Min, Max].
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// NewOmission returns an Omission strategy. p is clamped to [0, 1].
func NewOmission(p float64) Omission {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return Omission{Probability: p}
}

// NewDelay returns a Delay strategy. min and max are swapped if needed.
func NewDelay(min, max time.Duration) Delay {
	if min < 0 {
		min = 0
	}
	if max < min {
		min, max = max, min
	}
	return Delay{Min: min, Max: max}
}

// Process implements Strategy.
func (None) Process(ctx context.Context, msg message.Message) bool {
	return true
}

// Name implements Strategy.
func (None) Name() string { return "none" }

func (None) String() string { return "None" }

func (None) strategy() {}

// Process implements Strategy.
func (o Omission) Process(ctx context.Context, msg message.Message) bool {
	if o.Probability <= 0 {
		return true
	}
	return rand.Float64() >= o.Probability
}

// Name implements Strategy.
func (Omission) Name() string { return "omission" }

func (o Omission) String() string {
	return fmt.Sprintf("Omission(p=%.2f)", o.Probability)
}

func (Omission) strategy() {}

// Process implements Strategy. It returns early if ctx is cancelled, still
// letting the message through.
func (d Delay) Process(ctx context.Context, msg message.Message) bool {
	wait := d.Sample()
	if wait <= 0 {
		return true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return true
}

// Sample returns a random duration in [Min, Max].
func (d Delay) Sample() time.Duration {
	span := d.Max - d.Min
	if span <= 0 {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(span)+1))
}

// Name implements Strategy.
func (Delay) Name() string { return "delay" }

func (d Delay) String() string {
	return fmt.Sprintf("Delay(%v-%v)", d.Min, d.Max)
}

func (Delay) strategy() {}
