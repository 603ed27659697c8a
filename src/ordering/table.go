package ordering

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/murmur/src/message"
)

// Verdict is the outcome of admitting a message.
type Verdict int

const (
	// Discard means the message is stale or a duplicate. It requires neither
	// an ACK nor a NACK.
	Discard Verdict = iota
	// Buffer means the message arrived ahead of its turn. The sender is owed a
	// NACK carrying LastSeq.
	Buffer
	// Deliver means the message was delivered. The sender is owed an ACK.
	Deliver
	// Rejected means the delivery callback refused the message. Nothing was
	// recorded and the sender is owed neither an ACK nor a NACK.
	Rejected
)

// String ...
func (v Verdict) String() string {
	switch v {
	case Discard:
		return "Discard"
	case Buffer:
		return "Buffer"
	case Deliver:
		return "Deliver"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

type senderEntry struct {
	sync.Mutex
	lastSeq   uint32
	pending   map[uint32]message.Message
	delivered map[string]struct{}
}

func newSenderEntry() *senderEntry {
	return &senderEntry{
		pending:   make(map[uint32]message.Message),
		delivered: make(map[string]struct{}),
	}
}

// Table is the per-sender FIFO tracker of a node. The zero value is not
// usable, use NewTable.
type Table struct {
	lock    sync.RWMutex
	senders map[string]*senderEntry
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{
		senders: make(map[string]*senderEntry),
	}
}

func (t *Table) entry(sender string) *senderEntry {
	t.lock.RLock()
	e, ok := t.senders[sender]
	t.lock.RUnlock()
	if ok {
		return e
	}

	t.lock.Lock()
	defer t.lock.Unlock()
	if e, ok = t.senders[sender]; !ok {
		e = newSenderEntry()
		t.senders[sender] = e
	}
	return e
}

// Admit runs msg through the FIFO rules of its sender. deliver is called,
// under the sender's lock, for msg if it is the next expected message, and
// then for every buffered message that becomes contiguous. Only the first
// delivery is reflected in the returned Verdict.
//
// A message is only recorded as delivered once deliver returned true. If it
// refuses msg, Admit returns Rejected; if it refuses a buffered message, the
// drain stops and that message stays buffered.
func (t *Table) Admit(msg message.Message, deliver func(message.Message) bool) Verdict {
	e := t.entry(msg.SenderID())

	e.Lock()
	defer e.Unlock()

	seq := msg.SequenceNumber()
	expected := e.lastSeq + 1

	switch {
	case seq <= e.lastSeq:
		return Discard
	case seq > expected:
		if _, ok := e.pending[seq]; !ok {
			e.pending[seq] = msg
		}
		return Buffer
	}

	if _, ok := e.delivered[msg.UniqueID()]; ok {
		return Discard
	}

	if !e.deliver(msg, deliver) {
		return Rejected
	}
	delete(e.pending, seq)

	for {
		next, ok := e.pending[e.lastSeq+1]
		if !ok {
			break
		}
		if _, dup := e.delivered[next.UniqueID()]; dup {
			delete(e.pending, next.SequenceNumber())
			continue
		}
		if !e.deliver(next, deliver) {
			break
		}
		delete(e.pending, next.SequenceNumber())
	}

	return Deliver
}

func (e *senderEntry) deliver(msg message.Message, deliver func(message.Message) bool) bool {
	if deliver != nil && !deliver(msg) {
		return false
	}
	e.delivered[msg.UniqueID()] = struct{}{}
	e.lastSeq = msg.SequenceNumber()
	return true
}

// LastSeq returns the sequence number of the last message delivered from
// sender, 0 if none.
func (t *Table) LastSeq(sender string) uint32 {
	t.lock.RLock()
	e, ok := t.senders[sender]
	t.lock.RUnlock()
	if !ok {
		return 0
	}

	e.Lock()
	defer e.Unlock()
	return e.lastSeq
}

// Buffered returns the sequence numbers of the out-of-order messages held for
// sender, in ascending order.
func (t *Table) Buffered(sender string) []uint32 {
	t.lock.RLock()
	e, ok := t.senders[sender]
	t.lock.RUnlock()
	if !ok {
		return nil
	}

	e.Lock()
	defer e.Unlock()

	res := make([]uint32, 0, len(e.pending))
	for seq := range e.pending {
		res = append(res, seq)
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// Delivered reports whether the message with the given unique id was
// delivered.
func (t *Table) Delivered(sender, uniqueID string) bool {
	t.lock.RLock()
	e, ok := t.senders[sender]
	t.lock.RUnlock()
	if !ok {
		return false
	}

	e.Lock()
	defer e.Unlock()
	_, ok = e.delivered[uniqueID]
	return ok
}

// SenderInfo summarises the state of one sender.
type SenderInfo struct {
	LastSeq  uint32
	Buffered int
}

// Snapshot returns a summary of every sender known to the table.
func (t *Table) Snapshot() map[string]SenderInfo {
	t.lock.RLock()
	defer t.lock.RUnlock()

	res := make(map[string]SenderInfo, len(t.senders))
	for id, e := range t.senders {
		e.Lock()
		res[id] = SenderInfo{
			LastSeq:  e.lastSeq,
			Buffered: len(e.pending),
		}
		e.Unlock()
	}
	return res
}
