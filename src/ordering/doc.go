// Package ordering implements per-sender FIFO admission of broadcast messages.
//
// A Table tracks, for every sender, the sequence number of the last delivered
// message, a buffer of messages that arrived ahead of their turn, and the set
// of delivered message ids. Admit decides whether an inbound message is
// delivered, buffered, or discarded as stale, and drains the buffer whenever a
// gap is filled.
//
// Messages from one sender are processed under that sender's lock, so
// concurrent receives from the same sender reach the delivery callback in
// sequence order, while different senders proceed independently. No order is
// imposed across senders.
package ordering
