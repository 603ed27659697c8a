package failure

import (
	"fmt"
	"sync"
)

// Mode names a fault-injection mode that an operator can toggle.
type Mode string

const (
	// ModeOmission toggles the default Omission strategy.
	ModeOmission Mode = "omission"
	// ModeDelay toggles the default Delay strategy.
	ModeDelay Mode = "delay"
)

// ParseMode converts a string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOmission, ModeDelay:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown failure mode %q", s)
	}
}

// Switch holds the single active Strategy of a node. Replacing the strategy
// is atomic from the point of view of concurrent readers.
type Switch struct {
	sync.RWMutex
	current Strategy
}

// NewSwitch returns a Switch with the None strategy installed.
func NewSwitch() *Switch {
	return &Switch{current: None{}}
}

// Get returns the active strategy.
func (s *Switch) Get() Strategy {
	s.RLock()
	defer s.RUnlock()
	return s.current
}

// Set replaces the active strategy. A nil strategy installs None.
func (s *Switch) Set(st Strategy) {
	if st == nil {
		st = None{}
	}
	s.Lock()
	defer s.Unlock()
	s.current = st
}

// SetMode turns a mode on or off. Turning a mode on installs its default
// variant, which implicitly turns the other mode off. Turning a mode off
// installs None only if that mode is the active one.
func (s *Switch) SetMode(mode Mode, on bool) error {
	var st Strategy
	switch mode {
	case ModeOmission:
		st = NewOmission(DefaultOmissionProbability)
	case ModeDelay:
		st = NewDelay(DefaultDelayMin, DefaultDelayMax)
	default:
		return fmt.Errorf("unknown failure mode %q", mode)
	}

	s.Lock()
	defer s.Unlock()

	if on {
		s.current = st
		return nil
	}
	if s.current.Name() == string(mode) {
		s.current = None{}
	}
	return nil
}
