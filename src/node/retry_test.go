package node

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/message"
)

type fakeRetryHost struct {
	sync.Mutex
	ids       []string
	blocked   bool
	resends   []int
	targets   [][]string
	exhausted []message.Message
}

func (h *fakeRetryHost) neighborIDs() []string {
	h.Lock()
	defer h.Unlock()
	return h.ids
}

func (h *fakeRetryHost) acceptsOutbound() bool {
	h.Lock()
	defer h.Unlock()
	return !h.blocked
}

func (h *fakeRetryHost) resend(msg message.Message, peerIDs []string, attempt int) {
	h.Lock()
	defer h.Unlock()
	h.resends = append(h.resends, attempt)
	h.targets = append(h.targets, peerIDs)
}

func (h *fakeRetryHost) retryExhausted(msg message.Message, attempt int) {
	h.Lock()
	defer h.Unlock()
	h.exhausted = append(h.exhausted, msg)
}

// fakeClock records scheduled callbacks instead of running them.
type fakeClock struct {
	delays []time.Duration
	fns    []func()
}

func (c *fakeClock) schedule(d time.Duration, f func()) func() bool {
	c.delays = append(c.delays, d)
	c.fns = append(c.fns, f)
	return func() bool { return true }
}

// fire runs the i-th scheduled callback.
func (c *fakeClock) fire(t *testing.T, i int) {
	if i >= len(c.fns) {
		t.Fatalf("callback %d was never scheduled (%d scheduled)", i, len(c.fns))
	}
	c.fns[i]()
}

func newTestScheduler(t0 time.Duration, maxRetries int, ids ...string) (*RetryScheduler, *fakeRetryHost, *fakeClock) {
	host := &fakeRetryHost{ids: ids}
	clock := &fakeClock{}
	r := NewRetryScheduler(NewAdaptiveTimeout(t0), maxRetries, host)
	r.schedule = clock.schedule
	return r, host, clock
}

func newTestMessage(t *testing.T, sender string, seq uint32) message.Message {
	msg, err := message.NewMessageAt(sender, seq, "content", uint64(1000+seq))
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestRetryBackoff(t *testing.T) {
	t0 := 100 * time.Millisecond
	r, host, clock := newTestScheduler(t0, 3, "b")

	msg := newTestMessage(t, "a", 1)
	r.Register(msg)

	for i := 0; i < 4; i++ {
		clock.fire(t, i)
	}

	expectedDelays := []time.Duration{t0, t0, 2 * t0, 4 * t0}
	if !reflect.DeepEqual(clock.delays, expectedDelays) {
		t.Fatalf("delays should be %v, not %v", expectedDelays, clock.delays)
	}

	if !reflect.DeepEqual(host.resends, []int{1, 2, 3}) {
		t.Fatalf("resends should be [1 2 3], not %v", host.resends)
	}

	if len(host.exhausted) != 1 || host.exhausted[0].UniqueID() != msg.UniqueID() {
		t.Fatalf("message should be exhausted once, got %v", host.exhausted)
	}

	if r.IsPending(msg.UniqueID()) {
		t.Fatal("exhausted message should not be pending")
	}
}

func TestRetryReadsTimeoutOnEverySchedule(t *testing.T) {
	t0 := 100 * time.Millisecond
	r, _, clock := newTestScheduler(t0, 3, "b")

	r.Register(newTestMessage(t, "a", 1))
	r.timeout.Observe(150 * time.Millisecond)
	clock.fire(t, 0)

	if clock.delays[1] != 300*time.Millisecond {
		t.Fatalf("second delay should use the new timeout, got %v", clock.delays[1])
	}
}

func TestRetryConfirm(t *testing.T) {
	r, host, clock := newTestScheduler(time.Second, 3, "b", "c")

	msg := newTestMessage(t, "a", 1)
	r.Register(msg)

	if r.Confirm(msg.UniqueID(), "b", host.neighborIDs()) {
		t.Fatal("message should still wait for c")
	}

	clock.fire(t, 0)

	if !reflect.DeepEqual(host.targets, [][]string{{"c"}}) {
		t.Fatalf("only c should be retried, got %v", host.targets)
	}

	if !r.Confirm(msg.UniqueID(), "c", host.neighborIDs()) {
		t.Fatal("message should be complete")
	}

	if r.Len() != 0 {
		t.Fatalf("pending table should be empty, not %d", r.Len())
	}

	// stale timer
	clock.fire(t, 1)

	if len(host.resends) != 1 || len(host.exhausted) != 0 {
		t.Fatalf("stale timer should do nothing: %v %v", host.resends, host.exhausted)
	}

	if r.Confirm(msg.UniqueID(), "c", host.neighborIDs()) {
		t.Fatal("confirming an unknown message should return false")
	}
}

func TestRetryRemovedNeighbor(t *testing.T) {
	r, host, clock := newTestScheduler(time.Second, 3, "b")

	msg := newTestMessage(t, "a", 1)
	r.Register(msg)

	host.Lock()
	host.ids = []string{}
	host.Unlock()

	clock.fire(t, 0)

	if r.IsPending(msg.UniqueID()) {
		t.Fatal("message with no unconfirmed neighbor should be removed")
	}
	if len(host.resends) != 0 {
		t.Fatalf("nothing should be resent, got %v", host.resends)
	}
}

func TestRetryOutboundBlocked(t *testing.T) {
	r, host, clock := newTestScheduler(time.Second, 3, "b")

	msg := newTestMessage(t, "a", 1)
	r.Register(msg)

	host.Lock()
	host.blocked = true
	host.Unlock()

	clock.fire(t, 0)

	if len(host.resends) != 0 || len(clock.fns) != 1 {
		t.Fatalf("blocked node should neither resend nor reschedule")
	}

	r.Clear()
	if r.Len() != 0 {
		t.Fatal("Clear should empty the pending table")
	}
}

func TestRetryStop(t *testing.T) {
	r, host, clock := newTestScheduler(time.Second, 3, "b")

	r.Register(newTestMessage(t, "a", 1))
	r.Stop()

	clock.fire(t, 0)
	r.Register(newTestMessage(t, "a", 2))

	if r.Len() != 0 || len(host.resends) != 0 {
		t.Fatal("stopped scheduler should ignore timers and registrations")
	}

	r.Start()
	r.Register(newTestMessage(t, "a", 3))
	if r.Len() != 1 {
		t.Fatal("restarted scheduler should accept registrations")
	}
}

func TestPendingAfter(t *testing.T) {
	r, _, _ := newTestScheduler(time.Second, 3, "b")

	for _, seq := range []uint32{3, 1, 4, 2} {
		r.Register(newTestMessage(t, "a", seq))
	}
	r.Register(newTestMessage(t, "z", 9))

	var seqs []uint32
	for _, m := range r.PendingAfter("a", 1) {
		seqs = append(seqs, m.SequenceNumber())
	}

	if !reflect.DeepEqual(seqs, []uint32{2, 3, 4}) {
		t.Fatalf("PendingAfter should return [2 3 4], not %v", seqs)
	}
}

func TestAdaptiveTimeout(t *testing.T) {
	ms := time.Millisecond
	a := NewAdaptiveTimeout(100 * ms)

	for _, c := range []struct {
		rtt     time.Duration
		timeout time.Duration
		changed bool
	}{
		{50 * ms, 100 * ms, false},
		{100 * ms, 100 * ms, false},
		{150 * ms, 300 * ms, true},
		{200 * ms, 300 * ms, false},
		{10 * ms, 300 * ms, false},
		{400 * ms, 800 * ms, true},
	} {
		got, changed := a.Observe(c.rtt)
		if got != c.timeout || changed != c.changed {
			t.Fatalf("Observe(%v) => %v, %v; expected %v, %v", c.rtt, got, changed, c.timeout, c.changed)
		}
		if a.Get() != c.timeout {
			t.Fatalf("Get() should be %v, not %v", c.timeout, a.Get())
		}
	}
}

func TestAdaptiveTimeoutConcurrent(t *testing.T) {
	a := NewAdaptiveTimeout(time.Millisecond)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Observe(time.Duration(i) * time.Millisecond)
		}(i)
	}
	wg.Wait()

	if a.Get() < 50*time.Millisecond {
		t.Fatalf("timeout should cover the largest rtt, got %v", a.Get())
	}
}
