package message

import (
	"bytes"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/ugorji/go/codec"
)

// MaxContentLength is the maximum number of characters in a Message's
// content.
const MaxContentLength = 1000

var (
	// ErrEmptySender is returned when a Message is created without a sender.
	ErrEmptySender = errors.New("message sender id is empty")

	// ErrContentTooLong is returned when the content exceeds MaxContentLength
	// characters.
	ErrContentTooLong = fmt.Errorf("message content exceeds %d characters", MaxContentLength)
)

// Message is the unit of broadcast. It is immutable once created: all fields
// are private and only exposed through accessors. Sequence numbers from one
// sender start at 1 and increase by 1 per broadcast.
type Message struct {
	senderID  string
	seq       uint32
	content   string
	timestamp uint64 //unix milliseconds
}

// NewMessage creates a Message stamped with the current time.
func NewMessage(senderID string, seq uint32, content string) (Message, error) {
	return NewMessageAt(senderID, seq, content, uint64(time.Now().UnixNano()/int64(time.Millisecond)))
}

// NewMessageAt creates a Message with an explicit timestamp in unix
// milliseconds.
func NewMessageAt(senderID string, seq uint32, content string, timestamp uint64) (Message, error) {
	m := Message{
		senderID:  senderID,
		seq:       seq,
		content:   content,
		timestamp: timestamp,
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// SenderID returns the id of the node that created the Message.
func (m Message) SenderID() string {
	return m.senderID
}

// SequenceNumber returns the Message's position in its sender's stream.
func (m Message) SequenceNumber() uint32 {
	return m.seq
}

// Content returns the payload.
func (m Message) Content() string {
	return m.content
}

// Timestamp returns the creation time in unix milliseconds.
func (m Message) Timestamp() uint64 {
	return m.timestamp
}

// Time returns the creation time as a time.Time.
func (m Message) Time() time.Time {
	ms := int64(m.timestamp)
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond))
}

// UniqueID is the deduplication and acknowledgement key of a Message:
// "<sender>-<seq>-<timestamp>".
func (m Message) UniqueID() string {
	return fmt.Sprintf("%s-%d-%d", m.senderID, m.seq, m.timestamp)
}

// IsZero reports whether m is the zero Message.
func (m Message) IsZero() bool {
	return m.senderID == "" && m.seq == 0 && m.content == "" && m.timestamp == 0
}

// Validate checks the sender id and the content length.
func (m Message) Validate() error {
	if m.senderID == "" {
		return ErrEmptySender
	}
	if utf8.RuneCountInString(m.content) > MaxContentLength {
		return ErrContentTooLong
	}
	return nil
}

// String implements fmt.Stringer
func (m Message) String() string {
	return fmt.Sprintf("[%s#%d] %s", m.senderID, m.seq, m.content)
}

/*******************************************************************************
Wire
*******************************************************************************/

// WireMessage is the exported representation of a Message used by encoders.
type WireMessage struct {
	SenderID       string
	SequenceNumber uint32
	Content        string
	Timestamp      uint64
}

// ToWire converts a Message to its WireMessage representation.
func (m Message) ToWire() WireMessage {
	return WireMessage{
		SenderID:       m.senderID,
		SequenceNumber: m.seq,
		Content:        m.content,
		Timestamp:      m.timestamp,
	}
}

// ReadWire converts a WireMessage back to a Message, validating it on the way.
func ReadWire(w WireMessage) (Message, error) {
	return NewMessageAt(w.SenderID, w.SequenceNumber, w.Content, w.Timestamp)
}

// Marshal returns the JSON encoding of a Message.
func (m Message) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(m.ToWire()); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a JSON encoded Message.
func Unmarshal(data []byte) (Message, error) {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	var w WireMessage
	if err := dec.Decode(&w); err != nil {
		return Message{}, err
	}

	return ReadWire(w)
}
