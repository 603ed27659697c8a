package common

import (
	"sync"
	"time"
)

// RollingWindow keeps the last size duration samples, dropping the oldest
// once full. It is safe for concurrent use.
type RollingWindow struct {
	sync.Mutex
	size  int
	tot   int
	items []time.Duration
}

// NewRollingWindow creates a RollingWindow holding at most size samples.
func NewRollingWindow(size int) *RollingWindow {
	if size <= 0 {
		size = 1
	}
	return &RollingWindow{
		size:  size,
		items: make([]time.Duration, 0, size),
	}
}

// Add appends a sample, evicting the oldest one if the window is full.
func (r *RollingWindow) Add(d time.Duration) {
	r.Lock()
	defer r.Unlock()

	if len(r.items) >= r.size {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
	}
	r.items = append(r.items, d)
	r.tot++
}

// Get returns a copy of the current window and the total number of samples
// ever added.
func (r *RollingWindow) Get() (window []time.Duration, tot int) {
	r.Lock()
	defer r.Unlock()

	window = make([]time.Duration, len(r.items))
	copy(window, r.items)
	return window, r.tot
}

// Median returns the median of the current window.
func (r *RollingWindow) Median() time.Duration {
	w, _ := r.Get()
	return Median(w)
}
