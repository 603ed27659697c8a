package node

import (
	"context"
	"sync"

	"github.com/mosaicnetworks/murmur/src/message"
)

// deliveryQueue stages admitted messages before they are handed to the
// application. Messages are kept in one FIFO lane per sender; Pop returns the
// head of the lane whose head has the smallest timestamp. Per-sender order is
// therefore preserved whatever the clocks say, while the order across senders
// only follows the senders' unsynchronised clocks.
type deliveryQueue struct {
	lock   sync.Mutex
	lanes  map[string][]message.Message
	size   int
	notify chan struct{}
	closed bool
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		lanes:  make(map[string][]message.Message),
		notify: make(chan struct{}, 1),
	}
}

// Push appends msg to its sender's lane. It returns false if the queue is
// closed.
func (q *deliveryQueue) Push(msg message.Message) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return false
	}

	s := msg.SenderID()
	q.lanes[s] = append(q.lanes[s], msg)
	q.size++

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Requeue puts msg back at the head of its sender's lane. It is used by a
// consumer that popped msg but could not hand it over.
func (q *deliveryQueue) Requeue(msg message.Message) bool {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return false
	}

	s := msg.SenderID()
	q.lanes[s] = append([]message.Message{msg}, q.lanes[s]...)
	q.size++

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Pop blocks until a message is available, the queue is closed, or ctx is
// done.
func (q *deliveryQueue) Pop(ctx context.Context) (message.Message, bool) {
	for {
		q.lock.Lock()
		if q.closed {
			q.lock.Unlock()
			return message.Message{}, false
		}
		if q.size > 0 {
			msg := q.popLocked()
			q.lock.Unlock()
			return msg, true
		}
		q.lock.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return message.Message{}, false
		}
	}
}

func (q *deliveryQueue) popLocked() message.Message {
	var best string
	found := false
	for s, lane := range q.lanes {
		if len(lane) == 0 {
			continue
		}
		if !found ||
			lane[0].Timestamp() < q.lanes[best][0].Timestamp() ||
			(lane[0].Timestamp() == q.lanes[best][0].Timestamp() && s < best) {
			best = s
			found = true
		}
	}

	lane := q.lanes[best]
	msg := lane[0]
	if len(lane) == 1 {
		delete(q.lanes, best)
	} else {
		q.lanes[best] = lane[1:]
	}
	q.size--
	return msg
}

// Len returns the number of staged messages.
func (q *deliveryQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.size
}

// Close wakes up Pop and rejects further pushes. It returns the messages
// still staged, in the order Pop would have returned them.
func (q *deliveryQueue) Close() []message.Message {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return nil
	}

	staged := make([]message.Message, 0, q.size)
	for q.size > 0 {
		staged = append(staged, q.popLocked())
	}

	q.closed = true
	close(q.notify)
	return staged
}
