package node

import (
	"context"
	"sync"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/peers"
)

// rttWindowSize is the number of round trip samples kept for stats.
const rttWindowSize = 100

type heartbeatHost interface {
	// probing reports whether probes should be sent at all.
	probing() bool
	neighbors() []*peers.Peer
	heartbeat(p *peers.Peer) error
	probeFailed(p *peers.Peer, err error)
	probeSucceeded(p *peers.Peer, rtt time.Duration)
}

// HeartbeatMonitor periodically probes every neighbor. Round trip times feed
// the AdaptiveTimeout; a neighbor that fails to answer is reported to the host
// without retry.
type HeartbeatMonitor struct {
	interval time.Duration
	timeout  *AdaptiveTimeout
	rtts     *common.RollingWindow
	host     heartbeatHost
}

// NewHeartbeatMonitor ...
func NewHeartbeatMonitor(interval time.Duration, timeout *AdaptiveTimeout, host heartbeatHost) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		interval: interval,
		timeout:  timeout,
		rtts:     common.NewRollingWindow(rttWindowSize),
		host:     host,
	}
}

// Run probes the neighbors every interval until ctx is done. The timer is
// only rearmed once a round of probes completed.
func (h *HeartbeatMonitor) Run(ctx context.Context) {
	timer := NewFixedControlTimer()
	go timer.Run(h.interval)
	defer timer.Shutdown()

	for {
		select {
		case <-timer.tickCh:
			h.Probe()
			timer.Reset(h.interval)
		case <-ctx.Done():
			return
		}
	}
}

// Probe sends one heartbeat to every neighbor concurrently and waits for all
// of them.
func (h *HeartbeatMonitor) Probe() {
	if !h.host.probing() {
		return
	}

	var wg sync.WaitGroup
	for _, p := range h.host.neighbors() {
		wg.Add(1)
		go func(p *peers.Peer) {
			defer wg.Done()

			start := time.Now()
			err := h.host.heartbeat(p)
			rtt := time.Since(start)

			if err != nil {
				h.host.probeFailed(p, err)
				return
			}

			h.timeout.Observe(rtt)
			h.rtts.Add(rtt)
			h.host.probeSucceeded(p, rtt)
		}(p)
	}
	wg.Wait()
}

// MedianRTT returns the median of the recent round trip times.
func (h *HeartbeatMonitor) MedianRTT() time.Duration {
	return h.rtts.Median()
}
