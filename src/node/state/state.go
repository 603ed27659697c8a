package state

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies the variant of a node State: Inactive, Active, Failed, or
// Recovering.
type Kind uint32

const (
	// Inactive is the state of a node that is not running. It rejects all
	// protocol traffic. Nodes are created Inactive.
	Inactive Kind = iota

	// Active is the state in which a node broadcasts, receives, and answers
	// heartbeats normally.
	Active

	// Failed is the state of a node that was put into failure by an operator.
	// Outbound traffic is rejected, inbound traffic is processed in degraded
	// mode and heartbeats are still answered.
	Failed

	// Recovering is the state of a node coming back from a failure. It accepts
	// inbound and outbound traffic and counts attempts until it is promoted
	// back to Active.
	Recovering
)

// RecoveryThreshold is the number of attempts after which a Recovering node is
// automatically promoted to Active.
const RecoveryThreshold = 3

// WGLIMIT is the maximum number of goroutines that can be launched through
// Manager.GoFunc. Beyond this limit, functions run in the caller's goroutine.
const WGLIMIT = 64

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case Inactive:
		return "Inactive"
	case Active:
		return "Active"
	case Failed:
		return "Failed"
	case Recovering:
		return "Recovering"
	default:
		return "Unknown"
	}
}

// Op is an operation that may change the state of a node.
type Op string

const (
	// Activate starts the node, or forces a Recovering node back to Active.
	Activate Op = "activate"
	// Shutdown stops the node.
	Shutdown Op = "shutdown"
	// EnterFailure puts an Active node into failure.
	EnterFailure Op = "enterFailure"
	// Recover starts the recovery of a Failed node.
	Recover Op = "recover"
	// Promote is the automatic transition of a Recovering node that reached
	// RecoveryThreshold attempts.
	Promote Op = "promote"
)

// transitions is the complete table of legal transitions. Any (Kind, Op) pair
// that is absent is illegal and leaves the state unchanged.
var transitions = map[Kind]map[Op]Kind{
	Inactive: {
		Activate: Active,
	},
	Active: {
		Shutdown:     Inactive,
		EnterFailure: Failed,
	},
	Failed: {
		Recover:  Recovering,
		Shutdown: Inactive,
	},
	Recovering: {
		Promote:  Active,
		Activate: Active,
		Shutdown: Inactive,
	},
}

// Next returns the Kind reached by applying op to from, and whether the
// transition is legal.
func Next(from Kind, op Op) (Kind, bool) {
	to, ok := transitions[from][op]
	return to, ok
}

// State is the value of a node's state. It is replaced, never mutated, on
// every transition. Reason is set for Failed (the failure reason) and
// Recovering (the reason of the failure being recovered from). Attempts is
// only meaningful for Recovering.
type State struct {
	Kind     Kind
	Reason   string
	Since    time.Time
	Attempts int
}

// AcceptsInbound reports whether a node in this state processes received
// messages, acks, nacks and heartbeats.
func (s State) AcceptsInbound() bool {
	return s.Kind != Inactive
}

// AcceptsOutbound reports whether a node in this state sends messages.
func (s State) AcceptsOutbound() bool {
	return s.Kind == Active || s.Kind == Recovering
}

// String ...
func (s State) String() string {
	switch s.Kind {
	case Failed:
		return fmt.Sprintf("Failed(%s)", s.Reason)
	case Recovering:
		return fmt.Sprintf("Recovering(%s, %d)", s.Reason, s.Attempts)
	default:
		return s.Kind.String()
	}
}

// Manager wraps a State with transition methods. It is also used to limit the
// number of goroutines launched by the node, and to wait for all of them to
// complete.
type Manager struct {
	lock    sync.RWMutex
	state   State
	wg      sync.WaitGroup
	wgCount int32
}

// NewManager returns a Manager in the Inactive state.
func NewManager() *Manager {
	return &Manager{
		state: State{Kind: Inactive, Since: time.Now()},
	}
}

// GetState returns the current state.
func (m *Manager) GetState() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Kind returns the Kind of the current state.
func (m *Manager) Kind() Kind {
	return m.GetState().Kind
}

// Transition applies op to the current state. reason is recorded when
// entering Failed. It returns the previous and the resulting states; if the
// transition is illegal, ok is false and both are the unchanged current state.
func (m *Manager) Transition(op Op, reason string) (from State, to State, ok bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	from = m.state
	next, ok := Next(from.Kind, op)
	if !ok {
		return from, from, false
	}

	to = State{Kind: next, Since: time.Now()}
	switch next {
	case Failed:
		to.Reason = reason
	case Recovering:
		to.Reason = from.Reason
	}

	m.state = to
	return from, to, true
}

// RecordAttempt increments the attempt counter of a Recovering state and
// promotes it to Active once RecoveryThreshold is reached. It does nothing in
// any other state. promoted is true if this call caused the promotion.
func (m *Manager) RecordAttempt() (current State, promoted bool) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state.Kind != Recovering {
		return m.state, false
	}

	next := m.state
	next.Attempts++

	if next.Attempts >= RecoveryThreshold {
		to, _ := Next(Recovering, Promote)
		next = State{Kind: to, Since: time.Now()}
		promoted = true
	}

	m.state = next
	return next, promoted
}

// GoFunc launches a goroutine for a given function, if there are currently
// less than WGLIMIT running. Otherwise f runs in the caller's goroutine. It
// increments the waitgroup in both cases.
func (m *Manager) GoFunc(f func()) {
	m.wg.Add(1)
	if atomic.AddInt32(&m.wgCount, 1) > WGLIMIT {
		defer func() {
			atomic.AddInt32(&m.wgCount, -1)
			m.wg.Done()
		}()
		f()
		return
	}
	go func() {
		defer m.wg.Done()
		defer atomic.AddInt32(&m.wgCount, -1)
		f()
	}()
}

// Go launches f in a new goroutine regardless of WGLIMIT. It is meant for
// callers that must never run f themselves, such as a dispatch loop.
func (m *Manager) Go(f func()) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		f()
	}()
}

// WaitRoutines waits for all the goroutines in the waitgroup.
func (m *Manager) WaitRoutines() {
	m.wg.Wait()
}
