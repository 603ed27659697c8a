package node

import (
	"sort"
	"sync"
	"time"

	"github.com/mosaicnetworks/murmur/src/message"
)

// retryHost is what the RetryScheduler needs from the node. resend and
// retryExhausted are called without the scheduler lock held.
type retryHost interface {
	neighborIDs() []string
	acceptsOutbound() bool
	resend(msg message.Message, peerIDs []string, attempt int)
	retryExhausted(msg message.Message, attempt int)
}

// scheduleFunc runs f after d and returns a function cancelling it.
type scheduleFunc func(d time.Duration, f func()) (stop func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type pendingEntry struct {
	msg       message.Message
	confirmed map[string]struct{}
	attempt   int
	stop      func() bool
}

// RetryScheduler keeps the messages broadcast by this node until every
// neighbor confirmed them. Unconfirmed messages are resent with exponential
// backoff, based on the adaptive timeout T0: the first check happens T0
// after Register, the following ones T0, 2*T0, 4*T0... after each resend.
// After maxRetries resends the message is dropped.
type RetryScheduler struct {
	lock       sync.Mutex
	pending    map[string]*pendingEntry
	timeout    *AdaptiveTimeout
	maxRetries int
	host       retryHost
	schedule   scheduleFunc
	stopped    bool
}

// NewRetryScheduler ...
func NewRetryScheduler(timeout *AdaptiveTimeout, maxRetries int, host retryHost) *RetryScheduler {
	return &RetryScheduler{
		pending:    make(map[string]*pendingEntry),
		timeout:    timeout,
		maxRetries: maxRetries,
		host:       host,
		schedule:   afterFunc,
	}
}

// Register adds msg to the pending table and arms its first check.
func (r *RetryScheduler) Register(msg message.Message) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.stopped {
		return
	}

	uid := msg.UniqueID()
	if old, ok := r.pending[uid]; ok {
		old.stop()
	}

	e := &pendingEntry{
		msg:       msg,
		confirmed: make(map[string]struct{}),
	}
	r.pending[uid] = e
	e.stop = r.schedule(r.timeout.Get(), func() { r.check(uid, e, 0) })
}

func (r *RetryScheduler) check(uid string, e *pendingEntry, attempt int) {
	r.lock.Lock()

	if r.stopped || r.pending[uid] != e {
		r.lock.Unlock()
		return
	}

	if !r.host.acceptsOutbound() {
		r.lock.Unlock()
		return
	}

	if attempt >= r.maxRetries {
		delete(r.pending, uid)
		r.lock.Unlock()
		r.host.retryExhausted(e.msg, attempt)
		return
	}

	var targets []string
	for _, id := range r.host.neighborIDs() {
		if _, ok := e.confirmed[id]; !ok {
			targets = append(targets, id)
		}
	}

	if len(targets) == 0 {
		delete(r.pending, uid)
		r.lock.Unlock()
		return
	}

	e.attempt = attempt + 1
	delay := r.timeout.Get() * time.Duration(1<<uint(attempt))
	e.stop = r.schedule(delay, func() { r.check(uid, e, attempt+1) })
	r.lock.Unlock()

	r.host.resend(e.msg, targets, attempt+1)
}

// Confirm records that peerID acknowledged the message uid. current is the
// neighbor set at the time of the call; once all of them confirmed, the entry
// is removed and Confirm returns true.
func (r *RetryScheduler) Confirm(uid, peerID string, current []string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, ok := r.pending[uid]
	if !ok {
		return false
	}

	e.confirmed[peerID] = struct{}{}

	for _, id := range current {
		if _, ok := e.confirmed[id]; !ok {
			return false
		}
	}

	e.stop()
	delete(r.pending, uid)
	return true
}

// PendingAfter returns the pending messages sent by sender with a sequence
// number greater than seq, in ascending sequence order.
func (r *RetryScheduler) PendingAfter(sender string, seq uint32) []message.Message {
	r.lock.Lock()
	defer r.lock.Unlock()

	var res []message.Message
	for _, e := range r.pending {
		if e.msg.SenderID() == sender && e.msg.SequenceNumber() > seq {
			res = append(res, e.msg)
		}
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].SequenceNumber() < res[j].SequenceNumber()
	})

	return res
}

// IsPending reports whether the message uid awaits confirmations.
func (r *RetryScheduler) IsPending(uid string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	_, ok := r.pending[uid]
	return ok
}

// Attempt returns the number of resends of the message uid so far.
func (r *RetryScheduler) Attempt(uid string) (int, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	e, ok := r.pending[uid]
	if !ok {
		return 0, false
	}
	return e.attempt, true
}

// Len returns the number of pending messages.
func (r *RetryScheduler) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.pending)
}

// Clear cancels every timer and empties the pending table.
func (r *RetryScheduler) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clear()
}

func (r *RetryScheduler) clear() {
	for uid, e := range r.pending {
		e.stop()
		delete(r.pending, uid)
	}
}

// Stop clears the scheduler and ignores further registrations until Start.
func (r *RetryScheduler) Stop() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clear()
	r.stopped = true
}

// Start re-enables registrations after Stop.
func (r *RetryScheduler) Start() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.stopped = false
}
